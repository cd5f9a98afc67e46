package tokenauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSweeperRemovesExpiredSessions(t *testing.T) {
	cfg := testConfig()
	cfg.Sweep.Enabled = true
	cfg.Sweep.Interval = time.Second
	e := newTestEngine(t, cfg)

	_, err := e.Login(context.Background(), alice())
	require.NoError(t, err)
	e.clock.Advance(25 * time.Hour)

	require.NoError(t, e.StartSweeper())
	require.NoError(t, e.StartSweeper(), "second start is a no-op")

	require.Eventually(t, func() bool {
		return e.store.Len() == 0
	}, 5*time.Second, 50*time.Millisecond)

	e.StopSweeper()
	require.GreaterOrEqual(t, e.MetricsSnapshot().Counters[MetricSweepRun], uint64(1))
}

func TestSweepJobAfterStopDoesNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Sweep.Enabled = true
	cfg.Sweep.Interval = time.Hour
	e := newTestEngine(t, cfg)

	_, err := e.Login(context.Background(), alice())
	require.NoError(t, err)
	e.clock.Advance(25 * time.Hour)

	require.NoError(t, e.StartSweeper())
	e.sweepMu.Lock()
	schedule := e.sweeper
	e.sweepMu.Unlock()
	require.NotNil(t, schedule)

	e.StopSweeper()

	// A job the stopped schedule had already launched.
	e.runScheduledSweep(schedule)

	require.Equal(t, 1, e.store.Len())
	require.Zero(t, e.MetricsSnapshot().Counters[MetricSweepRun])
}

func TestSweeperDisabled(t *testing.T) {
	e := newTestEngine(t, testConfig())
	require.ErrorIs(t, e.StartSweeper(), errSweepDisabled)
	e.StopSweeper()
}
