package service

import (
	"context"
	"fmt"
	"time"

	"sheetsync/internal/domain"
	"sheetsync/internal/events"

	"github.com/rs/zerolog"
)

const archiveTimeout = 10 * time.Second

// Archiver persists operations removed from the ledger by ClearCompleted.
type Archiver struct {
	archive domain.OperationArchive
	logger  *zerolog.Logger
}

func NewArchiver(archive domain.OperationArchive, logger *zerolog.Logger) *Archiver {
	return &Archiver{archive: archive, logger: logger}
}

// Subscribe hooks the archiver to operations_cleared events.
func (a *Archiver) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventOperationsCleared, a.HandleCleared)
}

// HandleCleared decodes a cleared batch and writes it to the archive.
func (a *Archiver) HandleCleared(event *events.Event) error {
	var payload events.OperationsClearedPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode cleared payload: %w", err)
	}
	if len(payload.Operations) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := a.archive.ArchiveOperations(ctx, payload.Operations); err != nil {
		a.logger.Error().Err(err).Int("count", len(payload.Operations)).Msg("failed to archive cleared operations")
		return err
	}
	a.logger.Info().Int("count", len(payload.Operations)).Msg("cleared operations archived")
	return nil
}
