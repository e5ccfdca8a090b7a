package worker

import (
	"context"
	"time"

	"sheetsync/internal/models"
)

// scheduledTask is the handle of the single repeating drain timer.
type scheduledTask struct {
	ticker   Ticker
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
}

// Configure merges patch into the engine config and re-evaluates the timer.
// The previous timer is always stopped before a new one is armed, so at most
// one is live. An invalid patch returns a ConfigurationError and changes nothing.
func (e *Engine) Configure(patch models.SyncConfigPatch) error {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()

	e.mu.Lock()
	merged, err := patch.Apply(e.config)
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn().Err(err).Msg("configuration rejected")
		return err
	}
	e.config = merged
	e.mu.Unlock()

	e.disarm()

	interval, ok := merged.Frequency.Interval()
	if !merged.Scheduled() || !ok {
		e.logger.Info().
			Bool("enabled", merged.Enabled).
			Bool("auto_run", merged.AutoRun).
			Str("frequency", string(merged.Frequency)).
			Msg("sync configured without timer")
		return nil
	}

	e.arm(interval)
	e.logger.Info().
		Str("frequency", string(merged.Frequency)).
		Dur("interval", interval).
		Msg("sync timer armed")
	return nil
}

// Config returns the current engine configuration.
func (e *Engine) Config() models.SyncConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// ScheduledInterval reports the period of the live timer, if any.
func (e *Engine) ScheduledInterval() (time.Duration, bool) {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	if e.schedule == nil {
		return 0, false
	}
	return e.schedule.interval, true
}

// arm starts the timer goroutine. Caller holds schedMu.
func (e *Engine) arm(interval time.Duration) {
	ctx, cancel := context.WithCancel(e.baseCtx)
	task := &scheduledTask{
		ticker:   e.clock.NewTicker(interval),
		cancel:   cancel,
		done:     make(chan struct{}),
		interval: interval,
	}
	e.schedule = task

	go func() {
		defer close(task.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-task.ticker.C():
				if ctx.Err() != nil {
					return
				}
				// Drains run on the engine context so that re-arming the
				// timer does not abort an operation already in flight.
				e.Drain(e.baseCtx)
			}
		}
	}()
}

// disarm stops the live timer, if any. Caller holds schedMu. It does not wait
// for a drain started by the old timer; the drain guard keeps passes apart.
func (e *Engine) disarm() {
	if e.schedule == nil {
		return
	}
	e.schedule.ticker.Stop()
	e.schedule.cancel()
	e.schedule = nil
}
