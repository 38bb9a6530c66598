// Package batch runs independent work items with bounded concurrency
// and aggregate progress reporting. One item failing never stops the
// rest; cancellation stops new items from starting but lets in-flight
// items finish.
package batch

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxConcurrency caps the worker count regardless of the requested
// limit, so a large batch cannot flood the package manager.
const maxConcurrency = 8

// Item is one unit of batch work.
type Item interface {
	// Name identifies the item in progress reports.
	Name() string

	// Run performs the work.
	Run(ctx context.Context) error
}

// Reporter receives progress callbacks. ItemStarted and ItemFinished may
// be called concurrently from worker goroutines; BatchFinished is called
// exactly once, after every started item has finished.
type Reporter interface {
	ItemStarted(name string)
	ItemFinished(name string, err error)
	BatchFinished(succeeded, failed []string)
}

// Summary is the aggregate outcome of a batch. Both lists are sorted.
type Summary struct {
	Succeeded []string
	Failed    []string
}

// Errors maps failed item names to their errors.
type Errors map[string]error

// Run executes items with at most limit concurrent workers, clamped to
// the batch size and to the global cap. A non-positive limit means the
// global cap. rep may be nil.
func Run(ctx context.Context, items []Item, limit int, rep Reporter) (Summary, Errors) {
	if limit <= 0 || limit > maxConcurrency {
		limit = maxConcurrency
	}

	if limit > len(items) {
		limit = len(items)
	}

	queue := make(chan Item, len(items))
	for _, item := range items {
		queue <- item
	}

	close(queue)

	var (
		mu      sync.Mutex
		summary Summary
		errs    = make(Errors)
	)

	g, ctx := errgroup.WithContext(ctx)

	for range limit {
		g.Go(func() error {
			for item := range queue {
				if ctx.Err() != nil {
					return nil
				}

				if rep != nil {
					rep.ItemStarted(item.Name())
				}

				err := item.Run(ctx)

				if rep != nil {
					rep.ItemFinished(item.Name(), err)
				}

				mu.Lock()
				if err != nil {
					summary.Failed = append(summary.Failed, item.Name())
					errs[item.Name()] = err
				} else {
					summary.Succeeded = append(summary.Succeeded, item.Name())
				}
				mu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait() // workers never return errors

	sort.Strings(summary.Succeeded)
	sort.Strings(summary.Failed)

	if rep != nil {
		rep.BatchFinished(summary.Succeeded, summary.Failed)
	}

	if len(errs) == 0 {
		errs = nil
	}

	return summary, errs
}

// Func adapts a named function into an Item.
type Func struct {
	ItemName string
	Do       func(ctx context.Context) error
}

func (f Func) Name() string { return f.ItemName }

func (f Func) Run(ctx context.Context) error { return f.Do(ctx) }
