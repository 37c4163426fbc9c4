package mend

import (
	"context"
	"strconv"
	"testing"
)

func BenchmarkTask_Await(b *testing.B) {
	cfg := testConfig()
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		i := i
		task, err := New(func(context.Context) (int, error) { return i, nil },
			func(int) bool { return true }, UseConfig(cfg), NoRevert())
		if err != nil {
			b.Fatal(err)
		}
		if _, err := task.Await(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAll(b *testing.B) {
	cfg := testConfig()
	ctx := context.Background()
	for _, size := range []int{2, 8, 32} {
		size := size
		b.Run("members_"+strconv.Itoa(size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				tasks := make([]*Task[int], size)
				for j := range tasks {
					j := j
					task, err := New(func(context.Context) (int, error) { return j, nil },
						func(int) bool { return true }, UseConfig(cfg),
						Revert(func(context.Context) (bool, error) { return true, nil }))
					if err != nil {
						b.Fatal(err)
					}
					tasks[j] = task
				}
				if _, err := All(ctx, tasks); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
