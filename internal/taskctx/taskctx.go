package taskctx

import "context"

// Info identifies the task attempt a context belongs to.
type Info struct {
	TaskID  string
	GroupID string
	// Attempt is 0 for the first run and N for the Nth retry.
	Attempt int
}

type ctxKey struct{}

// With returns a child context carrying info.
func With(parent context.Context, info Info) context.Context {
	return context.WithValue(parent, ctxKey{}, info)
}

// From extracts the attempt info from context if present.
func From(ctx context.Context) (Info, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return Info{}, false
	}
	info, ok := v.(Info)
	return info, ok
}
