package domain

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one independent unit of work in a batch.
type Task func(ctx context.Context) error

// Scheduler runs batches of independent tasks with bounded parallelism.
type Scheduler interface {
	// Run executes every task and returns once all of them finished. Task
	// failures are collected and returned together as a *BatchError;
	// batches whose only failures are cancellations return nil.
	Run(ctx context.Context, tasks []Task) error
	// Parallelism returns the concurrency cap.
	Parallelism() int
}

type scheduler struct {
	limit int
}

// DefaultParallelism leaves one core free for the rest of the system.
func DefaultParallelism() int {
	return max(runtime.NumCPU()-1, 1)
}

// NewScheduler creates a Scheduler. A non-positive parallelism selects
// DefaultParallelism.
func NewScheduler(parallelism int) Scheduler {
	if parallelism <= 0 {
		parallelism = DefaultParallelism()
	}

	return &scheduler{limit: parallelism}
}

func (s *scheduler) Parallelism() int {
	return s.limit
}

func (s *scheduler) Run(ctx context.Context, tasks []Task) error {
	var (
		errs      []error
		errsMutex sync.Mutex
	)

	var group errgroup.Group
	group.SetLimit(s.limit)

	for i, task := range tasks {
		group.Go(func() error {
			err := runTask(ctx, i, task)
			if err != nil {
				errsMutex.Lock()

				errs = append(errs, err)

				errsMutex.Unlock()
			}

			return nil
		})
	}

	_ = group.Wait()

	errs = flattenErrors(errs)
	if len(errs) == 0 {
		return nil
	}

	return &BatchError{Errs: errs}
}

// runTask converts panics into errors and skips tasks once ctx is done.
func runTask(ctx context.Context, index int, task Task) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "index", index, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("task %d panicked: %v", index, r)
		}
	}()

	return task(ctx)
}
