package mend

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_ZapSugarLogsPhases(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := NewConfig(WithLogger(zap.New(core).Sugar()))

	task, err := New(func(context.Context) (int, error) { return 0, nil },
		func(int) bool { return false },
		UseConfig(cfg), RetryDelay(0), MaxRetryAttempts(2),
		Revert(func(context.Context) (bool, error) { return true, nil }))
	require.NoError(t, err)
	_, err = task.Await(context.Background())
	require.ErrorIs(t, err, ErrFailedAndReverted)

	require.Equal(t, 1, logs.FilterMessageSnippet("task created with id: "+task.ID()).Len())
	require.Equal(t, 1, logs.FilterMessageSnippet("retried for the 1st time").Len())
	require.Equal(t, 1, logs.FilterMessageSnippet("retried for the 2nd time").Len())
	require.Equal(t, 1, logs.FilterMessageSnippet("was reverted successfully").Len())
}

func TestLogger_VerboseOffIsSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := NewConfig(WithLogger(zap.New(core).Sugar()), WithVerbose(false))

	task, err := New(func(context.Context) (int, error) { return 1, nil },
		func(int) bool { return true }, UseConfig(cfg), NoRevert())
	require.NoError(t, err)
	_, err = task.Await(context.Background())
	require.NoError(t, err)
	require.Zero(t, logs.Len())
}

type panickingLogger struct{}

func (panickingLogger) Debugf(string, ...any) { panic("log sink closed") }
func (panickingLogger) Infof(string, ...any)  { panic("log sink closed") }
func (panickingLogger) Warnf(string, ...any)  { panic("log sink closed") }
func (panickingLogger) Errorf(string, ...any) { panic("log sink closed") }

func TestLogger_PanicDoesNotMaskOutcome(t *testing.T) {
	cfg := NewConfig(WithLogger(panickingLogger{}))

	task, err := New(func(context.Context) (int, error) { return 0, nil },
		func(int) bool { return false },
		UseConfig(cfg), RetryDelay(0), MaxRetryAttempts(1), MaxRevertAttempts(2),
		Revert(func(context.Context) (bool, error) { return false, nil }))
	require.NoError(t, err)

	_, err = task.Await(context.Background())
	require.ErrorIs(t, err, ErrFatalNotReverted)
}

func TestSlogLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	l.Debugf("hidden %d", 1)
	l.Infof("task %s finished", "t1")
	l.Errorf("task %s failed", "t2")

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "task t1 finished")
	require.Contains(t, out, "level=ERROR")
	require.Equal(t, 2, strings.Count(out, "\n"))
}
