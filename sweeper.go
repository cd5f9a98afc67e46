package tokenauth

import (
	"context"
	"errors"

	"github.com/robfig/cron"
)

var errSweepDisabled = errors.New("sweep disabled in configuration")

// StartSweeper schedules SweepExpired every Sweep.Interval on its own
// goroutine. Runs never overlap; a tick that fires while a sweep is still
// running is skipped. Calling StartSweeper on a running sweeper is a no-op.
func (e *Engine) StartSweeper() error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if !e.config.Sweep.Enabled {
		return errSweepDisabled
	}

	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	if e.sweeper != nil {
		return nil
	}

	c := cron.New()
	if err := c.AddFunc("@every "+e.config.Sweep.Interval.String(), func() { e.runScheduledSweep(c) }); err != nil {
		return err
	}
	c.Start()
	e.sweeper = c

	e.logger.Info().
		Dur("interval", e.config.Sweep.Interval).
		Msg("tokenauth: expiry sweeper started")
	return nil
}

// StopSweeper stops the schedule and waits for an in-flight sweep to end.
// Jobs the schedule launched but had not yet started do nothing.
func (e *Engine) StopSweeper() {
	if e == nil {
		return
	}

	e.sweepMu.Lock()
	c := e.sweeper
	e.sweeper = nil
	e.sweepMu.Unlock()

	if c == nil {
		return
	}
	c.Stop()

	e.sweepBusy.Lock()
	e.sweepBusy.Unlock()
}

// runScheduledSweep runs one sweep for schedule c. cron does not wait for
// launched jobs on Stop, so a job only proceeds while c is still current.
func (e *Engine) runScheduledSweep(c *cron.Cron) {
	if !e.sweepBusy.TryLock() {
		return
	}
	defer e.sweepBusy.Unlock()

	e.sweepMu.Lock()
	current := e.sweeper == c
	e.sweepMu.Unlock()
	if !current {
		return
	}

	ctx := context.Background()
	if e.config.Sweep.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Sweep.Timeout)
		defer cancel()
	}

	// Failures are already logged and counted by SweepExpired.
	_, _ = e.SweepExpired(ctx)
}
