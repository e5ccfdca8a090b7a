package repository

import (
	"time"

	"sheetsync/internal/models"
)

func sampleState() *models.EngineState {
	drained := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.EngineState{
		IsActive:              false,
		LastSuccessfulDrainAt: &drained,
		Config:                models.DefaultSyncConfig(),
		QueueLength:           1,
		Ledger: []models.Operation{
			{
				ID:          "op-1",
				Kind:        models.KindWrite,
				StoreID:     "sheet-1",
				Range:       "Data!A1",
				Payload:     models.Matrix{{"a", "b"}},
				SubmittedAt: drained.Add(-time.Minute),
				Status:      models.StatusPending,
			},
			{
				ID:          "op-2",
				Kind:        models.KindRead,
				StoreID:     "sheet-1",
				Range:       "Data!A1:B9",
				SubmittedAt: drained.Add(-2 * time.Minute),
				Status:      models.StatusFailed,
				Error:       &models.OperationError{Code: models.CodeNotAuthenticated, Message: "token expired"},
			},
		},
		TakenAt: drained.Add(time.Second),
	}
}
