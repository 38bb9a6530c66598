package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingReporter captures the reporting callbacks for assertions.
type recordingReporter struct {
	mu        sync.Mutex
	started   []string
	finished  []string
	completed int
	succeeded []string
	failed    []string
}

func (r *recordingReporter) ItemStarted(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, name)
}

func (r *recordingReporter) ItemFinished(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, name)
}

func (r *recordingReporter) BatchFinished(succeeded, failed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	r.succeeded = succeeded
	r.failed = failed
}

func namedItems(n int, do func(ctx context.Context) error) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Func{ItemName: fmt.Sprintf("item-%02d", i), Do: do}
	}
	return items
}

// --- accounting ---

func TestRun_EveryItemAccountedForExactlyOnce(t *testing.T) {
	var runs atomic.Int32
	items := namedItems(10, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	rep := &recordingReporter{}
	summary, errs := Run(context.Background(), items, 0, rep)

	assert.Equal(t, int32(10), runs.Load())
	assert.Len(t, summary.Succeeded, 10)
	assert.Empty(t, summary.Failed)
	assert.Nil(t, errs)
	assert.Len(t, rep.started, 10)
	assert.Len(t, rep.finished, 10)
}

func TestRun_SummaryListsSorted(t *testing.T) {
	items := namedItems(5, func(ctx context.Context) error { return nil })

	summary, _ := Run(context.Background(), items, 2, nil)

	assert.IsIncreasing(t, summary.Succeeded)
}

func TestRun_BatchFinishedCalledExactlyOnce(t *testing.T) {
	items := namedItems(10, func(ctx context.Context) error { return nil })

	rep := &recordingReporter{}
	Run(context.Background(), items, 0, rep)

	assert.Equal(t, 1, rep.completed)
	assert.Len(t, rep.succeeded, 10)
}

// --- failure isolation ---

func TestRun_FailuresDoNotStopOtherItems(t *testing.T) {
	boom := errors.New("boom")
	items := []Item{
		Func{ItemName: "bad", Do: func(ctx context.Context) error { return boom }},
		Func{ItemName: "good-1", Do: func(ctx context.Context) error { return nil }},
		Func{ItemName: "good-2", Do: func(ctx context.Context) error { return nil }},
	}

	summary, errs := Run(context.Background(), items, 1, nil)

	assert.Equal(t, []string{"good-1", "good-2"}, summary.Succeeded)
	assert.Equal(t, []string{"bad"}, summary.Failed)
	require.Contains(t, errs, "bad")
	assert.ErrorIs(t, errs["bad"], boom)
}

// --- concurrency ---

func TestRun_ConcurrencyNeverExceedsCap(t *testing.T) {
	var current, peak atomic.Int32

	items := namedItems(40, func(ctx context.Context) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return nil
	})

	summary, _ := Run(context.Background(), items, 100, nil)

	assert.Len(t, summary.Succeeded, 40)
	assert.LessOrEqual(t, peak.Load(), int32(maxConcurrency))
}

func TestRun_LimitClampedToBatchSize(t *testing.T) {
	var peak atomic.Int32
	var current atomic.Int32

	items := namedItems(2, func(ctx context.Context) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		return nil
	})

	Run(context.Background(), items, 8, nil)

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

// --- cancellation ---

func TestRun_CancellationStopsNewItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	items := namedItems(20, func(ctx context.Context) error {
		runs.Add(1)
		cancel()
		return nil
	})

	summary, _ := Run(ctx, items, 1, nil)

	// The first item cancels the context; the remaining queued items
	// never start.
	assert.Equal(t, int32(1), runs.Load())
	assert.Len(t, summary.Succeeded, 1)
}

func TestRun_EmptyBatch(t *testing.T) {
	rep := &recordingReporter{}
	summary, errs := Run(context.Background(), nil, 0, rep)

	assert.Empty(t, summary.Succeeded)
	assert.Empty(t, summary.Failed)
	assert.Nil(t, errs)
	assert.Equal(t, 1, rep.completed)
}
