package itsm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BatchOptions throttles per-item request pacing. Size -1 means the whole
// input is one batch (no pauses); 0 is treated as 1. Interval is the pause
// inserted between batches.
type BatchOptions struct {
	Size     int
	Interval time.Duration
}

// effectiveSize resolves the sentinel values against the input length.
func (o BatchOptions) effectiveSize(total int) int {
	switch {
	case o.Size == -1:
		return total
	case o.Size < 1:
		return 1
	default:
		return o.Size
	}
}

// ItemResult is the outcome for one input item: either output items or an
// error, never both. Errors stay attached to their item so one bad item
// cannot hide which input produced it.
type ItemResult struct {
	Input int
	Items []Item
	Err   error
}

// ItemFunc performs the operation for one input item.
type ItemFunc func(ctx context.Context, itemIndex int) ([]Item, error)

// BatchRunner walks the input batch in order, pausing between batches.
// The sleep function is injectable for tests; it must honour context
// cancellation.
type BatchRunner struct {
	Options BatchOptions
	Logger  *zap.Logger

	sleep func(context.Context, time.Duration)
}

// NewBatchRunner builds a runner with a context-aware sleeper.
func NewBatchRunner(opts BatchOptions, logger *zap.Logger) *BatchRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRunner{Options: opts, Logger: logger, sleep: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Run executes fn once per input item, in input order. A pause of
// Options.Interval is inserted after every Options.Size-th item as long as
// more items remain; the final item never triggers a pause. Results are
// returned in input order. continueOnFail keeps going after a failed item;
// otherwise the first failure stops the run and is returned alongside the
// results collected so far.
func (r *BatchRunner) Run(ctx context.Context, total int, continueOnFail bool, fn ItemFunc) ([]ItemResult, error) {
	size := r.Options.effectiveSize(total)
	results := make([]ItemResult, 0, total)

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		items, err := fn(ctx, i)
		if err != nil {
			r.Logger.Warn("item failed",
				zap.Int("item", i),
				zap.Error(err))
			if !continueOnFail {
				return results, err
			}
			results = append(results, ItemResult{Input: i, Err: err})
		} else {
			results = append(results, ItemResult{Input: i, Items: items})
		}

		if r.Options.Interval > 0 && (i+1)%size == 0 && i+1 < total {
			r.Logger.Debug("batch pause",
				zap.Int("after", i+1),
				zap.Duration("interval", r.Options.Interval))
			r.sleep(ctx, r.Options.Interval)
		}
	}
	return results, nil
}

// RunConcurrent is Run with the items of each batch slice started
// together. Results keep input order via indexed slots; the inter-batch
// pause is applied only after the whole slice has finished. Errors are
// captured per item, so continueOnFail behaves exactly as in Run, except
// that an aborting error still lets the rest of its slice finish first.
func (r *BatchRunner) RunConcurrent(ctx context.Context, total int, continueOnFail bool, fn ItemFunc) ([]ItemResult, error) {
	size := r.Options.effectiveSize(total)
	results := make([]ItemResult, total)

	for start := 0; start < total; start += size {
		if err := ctx.Err(); err != nil {
			return results[:start], err
		}
		end := start + size
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				items, err := fn(ctx, i)
				if err != nil {
					r.Logger.Warn("item failed",
						zap.Int("item", i),
						zap.Error(err))
					results[i] = ItemResult{Input: i, Err: err}
					return
				}
				results[i] = ItemResult{Input: i, Items: items}
			}(i)
		}
		wg.Wait()

		if !continueOnFail {
			for i := start; i < end; i++ {
				if results[i].Err != nil {
					return results[:i], results[i].Err
				}
			}
		}

		if r.Options.Interval > 0 && end < total {
			r.Logger.Debug("batch pause",
				zap.Int("after", end),
				zap.Duration("interval", r.Options.Interval))
			r.sleep(ctx, r.Options.Interval)
		}
	}
	return results, nil
}

// Flatten collapses item results into a flat output slice, converting
// errors into error items. Only meaningful under continue-on-fail, where
// errors are part of the output stream.
func Flatten(results []ItemResult) []Item {
	var out []Item
	for _, res := range results {
		if res.Err != nil {
			out = append(out, errorItem(res.Input, ClassifyError(res.Err)))
			continue
		}
		out = append(out, res.Items...)
	}
	return out
}
