package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// WorkerPool runs independent files through the pipeline with bounded
// parallelism. Files share no state, so no coordination beyond the
// concurrency limit is needed.
type WorkerPool struct {
	maxConcurrent int
	logger        *zap.Logger
}

// NewWorkerPool creates a pool running at most maxConcurrent items at once.
func NewWorkerPool(maxConcurrent int, logger *zap.Logger) *WorkerPool {
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}
	return &WorkerPool{
		maxConcurrent: maxConcurrent,
		logger:        logger.Named("worker-pool"),
	}
}

// WorkItem is one unit of work.
type WorkItem[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// WorkResult is the outcome of a work item.
type WorkResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Run executes all items and returns their results in submission order.
// A failing item never stops the others. Items not started before ctx is
// cancelled report ctx.Err().
func Run[T any](
	ctx context.Context,
	pool *WorkerPool,
	items []WorkItem[T],
	onProgress func(completed, total int),
) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]WorkResult[T], len(items))
	sem := make(chan struct{}, pool.maxConcurrent)
	var completed atomic.Int64
	var progressMu sync.Mutex
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item WorkItem[T]) {
			defer wg.Done()
			results[i].ID = item.ID

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
				results[i].Result, results[i].Err = item.Execute(ctx)
			case <-ctx.Done():
				results[i].Err = ctx.Err()
			}

			if results[i].Err != nil {
				pool.logger.Debug("Work item failed",
					zap.String("id", item.ID),
					zap.Error(results[i].Err))
			}
			if onProgress != nil {
				progressMu.Lock()
				onProgress(int(completed.Add(1)), len(items))
				progressMu.Unlock()
			}
		}(i, item)
	}

	wg.Wait()
	return results
}
