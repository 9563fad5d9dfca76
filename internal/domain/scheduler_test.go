package domain

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_Parallelism(t *testing.T) {
	assert.Equal(t, DefaultParallelism(), NewScheduler(0).Parallelism())
	assert.Equal(t, DefaultParallelism(), NewScheduler(-3).Parallelism())
	assert.Equal(t, 4, NewScheduler(4).Parallelism())
	assert.GreaterOrEqual(t, DefaultParallelism(), 1)
}

func TestScheduler_Run(t *testing.T) {
	t.Run("clean batch returns nil", func(t *testing.T) {
		var ran atomic.Int32

		tasks := make([]Task, 20)
		for i := range tasks {
			tasks[i] = func(context.Context) error {
				ran.Add(1)
				return nil
			}
		}

		require.NoError(t, NewScheduler(3).Run(context.Background(), tasks))
		assert.Equal(t, int32(20), ran.Load())
	})

	t.Run("empty batch", func(t *testing.T) {
		require.NoError(t, NewScheduler(2).Run(context.Background(), nil))
	})

	t.Run("failures are aggregated and siblings still run", func(t *testing.T) {
		var ran atomic.Int32

		errA := errors.New("a failed")
		errB := errors.New("b failed")

		tasks := []Task{
			func(context.Context) error { ran.Add(1); return errA },
			func(context.Context) error { ran.Add(1); return nil },
			func(context.Context) error { ran.Add(1); return errB },
			func(context.Context) error { ran.Add(1); return nil },
		}

		err := NewScheduler(2).Run(context.Background(), tasks)
		require.Error(t, err)
		assert.Equal(t, int32(4), ran.Load())

		var batch *BatchError
		require.ErrorAs(t, err, &batch)
		assert.Len(t, batch.Errs, 2)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
	})

	t.Run("panics become errors", func(t *testing.T) {
		tasks := []Task{
			func(context.Context) error { panic("kaboom") },
			func(context.Context) error { return nil },
		}

		err := NewScheduler(1).Run(context.Background(), tasks)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("cancellation only batch is suppressed", func(t *testing.T) {
		tasks := []Task{
			func(context.Context) error { return context.Canceled },
			func(context.Context) error { return fmt.Errorf("wrapped: %w", context.Canceled) },
		}

		require.NoError(t, NewScheduler(2).Run(context.Background(), tasks))
	})

	t.Run("cancelled context skips tasks", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Int32

		tasks := []Task{
			func(context.Context) error { ran.Add(1); return errors.New("should not run") },
		}

		require.NoError(t, NewScheduler(1).Run(ctx, tasks))
		assert.Equal(t, int32(0), ran.Load())
	})

	t.Run("nested batch errors are flattened", func(t *testing.T) {
		inner := &BatchError{Errs: []error{errors.New("x"), errors.New("y")}}

		tasks := []Task{
			func(context.Context) error { return inner },
			func(context.Context) error { return errors.New("z") },
		}

		err := NewScheduler(2).Run(context.Background(), tasks)

		var batch *BatchError
		require.ErrorAs(t, err, &batch)
		assert.Len(t, batch.Errs, 3)
	})

	t.Run("concurrency never exceeds the limit", func(t *testing.T) {
		var (
			current atomic.Int32
			peak    atomic.Int32
		)

		tasks := make([]Task, 16)
		for i := range tasks {
			tasks[i] = func(context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}

				time.Sleep(5 * time.Millisecond)
				current.Add(-1)

				return nil
			}
		}

		require.NoError(t, NewScheduler(3).Run(context.Background(), tasks))
		assert.LessOrEqual(t, peak.Load(), int32(3))
	})
}
