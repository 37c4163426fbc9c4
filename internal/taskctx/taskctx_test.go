package taskctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfo_WithFrom(t *testing.T) {
	in := Info{TaskID: "t-1", GroupID: "g-1", Attempt: 2}
	ctx := With(context.Background(), in)
	got, ok := From(ctx)
	require.True(t, ok, "From should find info")
	require.Equal(t, in, got)

	// nested contexts shadow the outer value
	inner := With(ctx, Info{TaskID: "t-2"})
	got, ok = From(inner)
	require.True(t, ok)
	require.Equal(t, "t-2", got.TaskID)
}

func TestInfo_From_Absent(t *testing.T) {
	got, ok := From(context.Background())
	require.False(t, ok)
	require.Zero(t, got)
}
