package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const memoryPath = ":memory:"

// DB is the local SQLite database holding the archive of cleared operations.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != memoryPath {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == memoryPath {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Архив завершённых операций
		`CREATE TABLE IF NOT EXISTS operation_archive (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL,
            store_id TEXT NOT NULL,
            range_a1 TEXT NOT NULL,
            payload TEXT,
            status TEXT NOT NULL,
            error_code TEXT,
            error_message TEXT,
            error_cause TEXT,
            submitted_at DATETIME NOT NULL,
            started_at DATETIME,
            finished_at DATETIME,
            archived_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_archive_archived_at ON operation_archive(archived_at)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_status ON operation_archive(status)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_store_id ON operation_archive(store_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// PingContext проверяет соединение с базой
func (db *DB) PingContext(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}
