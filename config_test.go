package mend

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func resetDefaultConfig(t *testing.T) {
	t.Helper()
	prev := defaultConfig.Swap(nil)
	t.Cleanup(func() { defaultConfig.Store(prev) })
}

func TestConfigure_Once(t *testing.T) {
	resetDefaultConfig(t)

	_, err := DefaultConfig()
	require.ErrorIs(t, err, ErrProgrammer)

	require.NoError(t, Configure(WithVerbose(false)))
	cfg, err := DefaultConfig()
	require.NoError(t, err)
	require.False(t, cfg.Verbose())

	err = Configure(WithVerbose(true))
	require.ErrorIs(t, err, ErrProgrammer)
	cfg, err = DefaultConfig()
	require.NoError(t, err)
	require.False(t, cfg.Verbose(), "second Configure must not replace the first")
}

func TestNew_RequiresConfiguration(t *testing.T) {
	resetDefaultConfig(t)

	task, err := New(func(context.Context) (int, error) { return 1, nil },
		func(int) bool { return true }, NoRevert())
	require.Nil(t, task)
	require.ErrorIs(t, err, ErrProgrammer)

	require.NoError(t, Configure(WithVerbose(false)))
	task, err = New(func(context.Context) (int, error) { return 1, nil },
		func(int) bool { return true }, NoRevert())
	require.NoError(t, err)
	v, err := task.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	require.True(t, cfg.Verbose())
	require.Equal(t, DefaultPolicy(), cfg.Policy())
	require.IsType(t, noopLogger{}, cfg.logger)
	require.Nil(t, cfg.observer)

	cfg = NewConfig(WithLogger(nil), WithClock(nil))
	require.IsType(t, noopLogger{}, cfg.logger)
	require.NotNil(t, cfg.clock)
}

func TestConfig_PolicyIsInherited(t *testing.T) {
	cfg := testConfig(WithPolicy(Policy{MaxRetryAttempts: 1, RetryDelay: 0, MaxRevertAttempts: 2}))
	calls := 0
	task, err := New(func(context.Context) (int, error) { calls++; return 0, nil },
		func(int) bool { return false }, UseConfig(cfg), NoRevert())
	require.NoError(t, err)

	_, err = task.Await(context.Background())
	require.ErrorIs(t, err, ErrFailed)
	require.Equal(t, 2, calls)
}

func TestConfig_SleepHonoursHaltAndContext(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := testConfig(WithClock(clock))

	halt := make(chan struct{})
	close(halt)
	require.ErrorIs(t, cfg.sleep(context.Background(), time.Hour, halt), errHalted)
	require.ErrorIs(t, cfg.sleep(context.Background(), 0, halt), errHalted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, cfg.sleep(ctx, time.Hour, nil), context.Canceled)
	require.NoError(t, cfg.sleep(context.Background(), 0, nil))

	done := make(chan error, 1)
	go func() { done <- cfg.sleep(context.Background(), time.Second, nil) }()
	wait, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	require.NoError(t, clock.BlockUntilContext(wait, 1))
	clock.Advance(time.Second)
	require.NoError(t, <-done)
}
