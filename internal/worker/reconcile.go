package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sheetsync/internal/events"
	"sheetsync/internal/metrics"
	"sheetsync/internal/models"

	"golang.org/x/sync/errgroup"
)

// Reconcile reads both ranges concurrently and, if they differ, writes each
// side's data onto the other. It does not decide which side is newer: any
// difference propagates in both directions.
//
// If either read fails nothing is written and a ReconciliationReadError is
// returned. Write failures are logged and published as
// reconcile_write_failed events; the result always carries the data as read.
func (e *Engine) Reconcile(ctx context.Context, sourceStoreID, sourceRange, targetStoreID, targetRange string) (*models.ReconcileResult, error) {
	log := e.logger.With().
		Str("source_store_id", sourceStoreID).
		Str("source_range", sourceRange).
		Str("target_store_id", targetStoreID).
		Str("target_range", targetRange).
		Logger()

	summary := events.ReconcilePayload{
		SourceStoreID: sourceStoreID,
		SourceRange:   sourceRange,
		TargetStoreID: targetStoreID,
		TargetRange:   targetRange,
		Direction:     string(e.Config().Direction),
	}

	var (
		source, target *models.ReadResult
		srcErr, tgtErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		srcErr = safeCall(func() error {
			var err error
			source, err = e.store.ReadRange(gctx, sourceStoreID, sourceRange)
			return err
		})
		return srcErr
	})
	g.Go(func() error {
		tgtErr = safeCall(func() error {
			var err error
			target, err = e.store.ReadRange(gctx, targetStoreID, targetRange)
			return err
		})
		return tgtErr
	})
	if err := g.Wait(); err != nil {
		readErr := models.NewOperationError(models.CodeReconciliationReadError, readFailure(ctx, srcErr, tgtErr),
			"reconcile read failed")
		metrics.IncReconcile("read_error")
		log.Warn().Err(readErr.Cause).Msg("reconcile aborted before writes")
		summary.Error = readErr.Error()
		e.publish(events.EventReconcileCompleted, summary)
		return nil, readErr
	}

	sourceData := valuesOf(source)
	targetData := valuesOf(target)
	result := &models.ReconcileResult{
		SourceData: sourceData.Clone(),
		TargetData: targetData.Clone(),
	}

	if sourceData.Equal(targetData) {
		metrics.IncReconcile("unchanged")
		log.Debug().Msg("reconcile found no differences")
		e.publish(events.EventReconcileCompleted, summary)
		return result, nil
	}

	result.Changed = true
	summary.Changed = true

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.reconcileWrite(ctx, targetStoreID, targetRange, sourceData, "source_to_target")
	}()
	go func() {
		defer wg.Done()
		e.reconcileWrite(ctx, sourceStoreID, sourceRange, targetData, "target_to_source")
	}()
	wg.Wait()

	metrics.IncReconcile("propagated")
	log.Info().Msg("reconcile propagated differences")
	e.publish(events.EventReconcileCompleted, summary)
	return result, nil
}

func (e *Engine) reconcileWrite(ctx context.Context, storeID, rangeA1 string, values models.Matrix, leg string) {
	err := safeCall(func() error {
		_, err := e.store.WriteRange(ctx, storeID, rangeA1, values)
		return err
	})
	if err == nil {
		return
	}

	metrics.IncReconcileWriteFailure()
	e.logger.Error().
		Err(err).
		Str("leg", leg).
		Str("store_id", storeID).
		Str("range", rangeA1).
		Msg("reconcile write failed")
	e.publish(events.EventReconcileWriteFail, events.ReconcilePayload{
		TargetStoreID: storeID,
		TargetRange:   rangeA1,
		Changed:       true,
		Error:         err.Error(),
	})
}

func valuesOf(r *models.ReadResult) models.Matrix {
	if r == nil {
		return nil
	}
	return r.Values
}

// readFailure names the side whose read failed. When only one side failed,
// the other read was cancelled by the group and its context.Canceled is
// dropped so the cause points at the real failure.
func readFailure(ctx context.Context, srcErr, tgtErr error) error {
	if ctx.Err() == nil && srcErr != nil && tgtErr != nil {
		srcCancelled := errors.Is(srcErr, context.Canceled)
		tgtCancelled := errors.Is(tgtErr, context.Canceled)
		switch {
		case tgtCancelled && !srcCancelled:
			tgtErr = nil
		case srcCancelled && !tgtCancelled:
			srcErr = nil
		}
	}
	if srcErr != nil {
		srcErr = fmt.Errorf("source read: %w", srcErr)
	}
	if tgtErr != nil {
		tgtErr = fmt.Errorf("target read: %w", tgtErr)
	}
	return errors.Join(srcErr, tgtErr)
}
