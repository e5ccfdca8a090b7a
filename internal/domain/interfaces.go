package domain

import (
	"context"

	"sheetsync/internal/models"
)

// RemoteStore is the spreadsheet-like service the sync engine reads from and
// writes to. Implementations do not retry; a returned error is final for the call.
type RemoteStore interface {
	ReadRange(ctx context.Context, storeID, rangeA1 string) (*models.ReadResult, error)
	WriteRange(ctx context.Context, storeID, rangeA1 string, values models.Matrix) (*models.WriteSummary, error)
	AppendRange(ctx context.Context, storeID, rangeA1 string, values models.Matrix) (*models.WriteSummary, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SnapshotStore mirrors engine snapshots for out-of-process status polling.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, state *models.EngineState) error
	LoadSnapshot(ctx context.Context) (*models.EngineState, error)
}

// OperationArchive keeps operations removed from the ledger by ClearCompleted.
type OperationArchive interface {
	ArchiveOperations(ctx context.Context, ops []models.Operation) error
	ListArchivedOperations(ctx context.Context, limit int) ([]models.Operation, error)
}

// SyncEngine is the surface the HTTP API and CLI drive.
type SyncEngine interface {
	EnqueueRead(storeID, rangeA1 string) models.OperationID
	EnqueueWrite(storeID, rangeA1 string, values models.Matrix) models.OperationID
	EnqueueAppend(storeID, rangeA1 string, values models.Matrix) models.OperationID
	Drain(ctx context.Context)
	Cancel(id models.OperationID) bool
	Resubmit(id models.OperationID) (models.OperationID, bool)
	ClearCompleted() int
	Configure(patch models.SyncConfigPatch) error
	Snapshot() models.EngineState
	ByStatus(status models.OperationStatus) []models.Operation
	Get(id models.OperationID) (models.Operation, bool)
	Reconcile(ctx context.Context, sourceStoreID, sourceRange, targetStoreID, targetRange string) (*models.ReconcileResult, error)
}
