package itsm

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// PaginationOptions throttles page fetching, independently of item-level
// batch pacing. PagesPerBatch -1 disables pauses entirely; 0 is treated
// as 1 (pause after every page).
type PaginationOptions struct {
	PagesPerBatch int
	Interval      time.Duration
}

func (o PaginationOptions) pauseAfter(pages int) bool {
	switch {
	case o.PagesPerBatch == -1 || o.Interval <= 0:
		return false
	case o.PagesPerBatch < 1:
		// Treated as 1: pause after every page.
		return true
	default:
		return pages%o.PagesPerBatch == 0
	}
}

// FetchPage retrieves one page of records at the given offset. top is the
// number of records wanted; shorter results signal the end of the dataset.
type FetchPage func(ctx context.Context, skip, top int) ([]gjson.Result, error)

// Paginator walks an offset/limit dataset. PageSize is clamped to the
// server maximum.
type Paginator struct {
	Options  PaginationOptions
	PageSize int
	Logger   *zap.Logger

	sleep func(context.Context, time.Duration)
}

// NewPaginator builds a paginator with a context-aware sleeper.
func NewPaginator(opts PaginationOptions, pageSize int, logger *zap.Logger) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &Paginator{Options: opts, PageSize: pageSize, Logger: logger, sleep: sleepContext}
}

// Collect fetches pages until the dataset is exhausted or limit records
// have been gathered. limit 0 means unbounded. The final page request asks
// for exactly the remaining count, so a bounded collection never
// over-fetches. A short page ends the walk.
func (p *Paginator) Collect(ctx context.Context, limit int, fetch FetchPage) ([]gjson.Result, error) {
	var collected []gjson.Result
	skip := 0
	pages := 0

	for {
		if err := ctx.Err(); err != nil {
			return collected, err
		}

		top := p.PageSize
		if limit > 0 {
			remaining := limit - len(collected)
			if remaining <= 0 {
				return collected, nil
			}
			if remaining < top {
				top = remaining
			}
		}

		records, err := fetch(ctx, skip, top)
		if err != nil {
			return collected, err
		}
		collected = append(collected, records...)
		pages++
		p.Logger.Debug("page fetched",
			zap.Int("page", pages),
			zap.Int("records", len(records)),
			zap.Int("total", len(collected)))

		if len(records) < top {
			return collected, nil
		}
		if limit > 0 && len(collected) >= limit {
			return collected, nil
		}
		skip += len(records)

		if p.Options.pauseAfter(pages) {
			p.Logger.Debug("pagination pause",
				zap.Int("pages", pages),
				zap.Duration("interval", p.Options.Interval))
			p.sleep(ctx, p.Options.Interval)
		}
	}
}
