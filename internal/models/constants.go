package models

const (
	// DefaultSnapshotTTL время жизни зеркала состояния в Redis, в секундах
	DefaultSnapshotTTL = 15 * 60

	// DefaultSnapshotKey ключ зеркала состояния в Redis
	DefaultSnapshotKey = "sheetsync:snapshot"

	// DefaultHistoryLimit сколько записей архива выводить по умолчанию
	DefaultHistoryLimit = 50

	// DefaultSheetsRPS темп запросов к Google Sheets API
	DefaultSheetsRPS = 5.0

	// DefaultSheetsBurst размер всплеска запросов к Google Sheets API
	DefaultSheetsBurst = 10
)
