package mend

import (
	"context"

	"github.com/UniQw/mend-go/internal/taskctx"
)

// TaskIDFromContext returns the id of the task whose executor or revert
// function received ctx.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	info, ok := taskctx.From(ctx)
	if !ok {
		return "", false
	}
	return info.TaskID, true
}

// GroupIDFromContext returns the group id, if the task runs inside a group.
func GroupIDFromContext(ctx context.Context) (string, bool) {
	info, ok := taskctx.From(ctx)
	if !ok || info.GroupID == "" {
		return "", false
	}
	return info.GroupID, true
}

// AttemptFromContext returns 0 for the first run and n for the nth retry.
// Inside a revert function it is the last forward attempt.
func AttemptFromContext(ctx context.Context) (int, bool) {
	info, ok := taskctx.From(ctx)
	if !ok {
		return 0, false
	}
	return info.Attempt, true
}
