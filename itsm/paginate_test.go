package itsm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// backendOf fakes an offset/limit dataset of n records.
func backendOf(n int) FetchPage {
	return func(_ context.Context, skip, top int) ([]gjson.Result, error) {
		var page []gjson.Result
		for i := skip; i < skip+top && i < n; i++ {
			page = append(page, gjson.Parse(fmt.Sprintf(`{"RecId":"R%d"}`, i)))
		}
		return page, nil
	}
}

func newTestPaginator(opts PaginationOptions, pageSize int) (*Paginator, *fakeSleep) {
	paginator := NewPaginator(opts, pageSize, nil)
	fake := &fakeSleep{}
	paginator.sleep = fake.sleep
	return paginator, fake
}

func TestPaginator_UnboundedDrainsBackend(t *testing.T) {
	paginator, _ := newTestPaginator(PaginationOptions{PagesPerBatch: -1}, 100)
	records, err := paginator.Collect(context.Background(), 0, backendOf(250))
	require.NoError(t, err)
	assert.Len(t, records, 250)
	assert.Equal(t, "R0", records[0].Get("RecId").String())
	assert.Equal(t, "R249", records[249].Get("RecId").String())
}

func TestPaginator_BoundedCountIsExact(t *testing.T) {
	var tops []int
	fetch := func(ctx context.Context, skip, top int) ([]gjson.Result, error) {
		tops = append(tops, top)
		return backendOf(250)(ctx, skip, top)
	}
	paginator, _ := newTestPaginator(PaginationOptions{PagesPerBatch: -1}, 100)
	records, err := paginator.Collect(context.Background(), 150, fetch)
	require.NoError(t, err)
	assert.Len(t, records, 150)
	// The final page asks for exactly the remainder.
	assert.Equal(t, []int{100, 50}, tops)
}

func TestPaginator_ShortPageTerminates(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, skip, top int) ([]gjson.Result, error) {
		calls++
		return backendOf(30)(ctx, skip, top)
	}
	paginator, _ := newTestPaginator(PaginationOptions{PagesPerBatch: -1}, 100)
	records, err := paginator.Collect(context.Background(), 0, fetch)
	require.NoError(t, err)
	assert.Len(t, records, 30)
	assert.Equal(t, 1, calls)
}

func TestPaginator_PausesBetweenPageBatches(t *testing.T) {
	paginator, fake := newTestPaginator(PaginationOptions{PagesPerBatch: 2, Interval: time.Millisecond}, 100)
	_, err := paginator.Collect(context.Background(), 0, backendOf(450))
	require.NoError(t, err)
	// Five pages: pauses after pages 2 and 4; the short final page ends
	// the walk before another pause is due.
	assert.Equal(t, 2, fake.count())
}

func TestPaginator_PausesDisabled(t *testing.T) {
	paginator, fake := newTestPaginator(PaginationOptions{PagesPerBatch: -1, Interval: time.Second}, 100)
	_, err := paginator.Collect(context.Background(), 0, backendOf(450))
	require.NoError(t, err)
	assert.Equal(t, 0, fake.count())
}

func TestPaginator_PageSizeClampedToServerMax(t *testing.T) {
	paginator, _ := newTestPaginator(PaginationOptions{PagesPerBatch: -1}, 5000)
	assert.Equal(t, maxPageSize, paginator.PageSize)
}

func TestPaginator_FetchErrorPropagates(t *testing.T) {
	boom := errors.New("backend down")
	paginator, _ := newTestPaginator(PaginationOptions{PagesPerBatch: -1}, 100)
	_, err := paginator.Collect(context.Background(), 0, func(context.Context, int, int) ([]gjson.Result, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestPaginator_ZeroLimitMeansUnbounded(t *testing.T) {
	paginator, _ := newTestPaginator(PaginationOptions{PagesPerBatch: -1}, 100)
	records, err := paginator.Collect(context.Background(), 0, backendOf(101))
	require.NoError(t, err)
	assert.Len(t, records, 101)
}
