package itsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Date fields a poll trigger can watch.
const (
	DateFieldCreated  = "CreatedDateTime"
	DateFieldModified = "LastModDateTime"
)

// ErrNoData marks the manual-trigger case of a filter matching nothing.
// It is an error because a manual run exists to show the operator a
// sample record.
var ErrNoData = errors.New("No data with the current filter could be found")

// PollOptions configures one trigger instance.
type PollOptions struct {
	ObjectName string
	// DateField is the timestamp the trigger watches, DateFieldCreated or
	// DateFieldModified.
	DateField string
	// Filter is an optional extra expression ANDed onto the cursor
	// condition.
	Filter      string
	ReturnAll   bool
	Limit       int
	RawKeyOrder bool
	StripNull   bool
	Pagination  PaginationOptions
}

// PollCursor is the persistent high-water mark of one trigger instance.
type PollCursor struct {
	LastTimeChecked time.Time
}

// Poller drives the incremental trigger. Cursors live for the process
// lifetime, keyed by trigger instance, so overlapping workflows can poll
// independently.
type Poller struct {
	Client *Client
	Logger *zap.Logger

	cursors sync.Map

	// now is replaceable in tests.
	now func() time.Time
}

// NewPoller builds a Poller. A nil logger is replaced with the client's.
func NewPoller(client *Client, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = client.Logger
	}
	return &Poller{Client: client, Logger: logger, now: time.Now}
}

// Cursor returns the trigger's cursor, seeding it with the current time
// on first use. Seeding with now means a fresh trigger only ever reports
// records that change after it was switched on.
func (p *Poller) Cursor(triggerID string) PollCursor {
	seeded := PollCursor{LastTimeChecked: p.now().UTC()}
	actual, _ := p.cursors.LoadOrStore(triggerID, seeded)
	return actual.(PollCursor)
}

// SetCursor overwrites the trigger's cursor, for hosts that persist
// cursors across restarts.
func (p *Poller) SetCursor(triggerID string, cursor PollCursor) {
	p.cursors.Store(triggerID, cursor)
}

// Poll fetches everything that changed since the cursor, in change order,
// and advances the cursor to the last record's timestamp. An empty result
// means no new data: (nil, nil), cursor untouched.
func (p *Poller) Poll(ctx context.Context, triggerID string, opts PollOptions) ([]Item, error) {
	cursor := p.Cursor(triggerID)

	filter := fmt.Sprintf("%s gt %s", opts.DateField, cursor.LastTimeChecked.UTC().Format(time.RFC3339))
	if opts.Filter != "" {
		// Parenthesized so an "or" in the user expression cannot escape
		// the cursor conjunction.
		filter = fmt.Sprintf("%s and (%s)", filter, opts.Filter)
	}
	query := ListQuery{Filter: filter, OrderBy: opts.DateField}

	limit := opts.Limit
	if opts.ReturnAll {
		limit = 0
	}
	paginator := NewPaginator(opts.Pagination, maxPageSize, p.Logger)
	records, err := paginator.Collect(ctx, limit, func(ctx context.Context, skip, top int) ([]gjson.Result, error) {
		return p.Client.fetchListPage(ctx, opts.ObjectName+"s", query, skip, top, "poll")
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		p.Logger.Debug("poll found no new data",
			zap.String("trigger", triggerID),
			zap.Time("cursor", cursor.LastTimeChecked))
		return nil, nil
	}

	// A record with a missing or unparseable timestamp still ships; the
	// cursor just stays put until a readable one comes through.
	last := records[len(records)-1].Get(opts.DateField).String()
	if advanced, err := parsePollTimestamp(last); err == nil {
		p.SetCursor(triggerID, PollCursor{LastTimeChecked: advanced.UTC()})
		p.Logger.Info("poll advanced cursor",
			zap.String("trigger", triggerID),
			zap.Int("records", len(records)),
			zap.Time("cursor", advanced.UTC()))
	} else {
		p.Logger.Warn("poll cursor not advanced",
			zap.String("trigger", triggerID),
			zap.String("value", last),
			zap.Error(err))
	}

	return p.shape(records, opts), nil
}

// pollTimestampLayouts are the timestamp renderings tenants have been seen
// to produce for date fields; zoneless values are read as UTC.
var pollTimestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parsePollTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	var err error
	for _, layout := range pollTimestampLayouts {
		var ts time.Time
		if ts, err = time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}

// PollNewest is the manual-trigger path: it returns the single newest
// record matching the filter so the operator can inspect a sample. No
// cursor is involved. A filter matching nothing is ErrNoData.
func (p *Poller) PollNewest(ctx context.Context, opts PollOptions) ([]Item, error) {
	query := ListQuery{Filter: opts.Filter, OrderBy: opts.DateField, Descending: true}
	records, err := p.Client.fetchListPage(ctx, opts.ObjectName+"s", query, 0, 1, "poll.manual")
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}
	return p.shape(records, opts), nil
}

func (p *Poller) shape(records []gjson.Result, opts PollOptions) []Item {
	items := make([]Item, 0, len(records))
	for _, record := range records {
		doc := NormalizeRecord(record, !opts.RawKeyOrder)
		if opts.StripNull {
			doc = StripNullValues(doc)
		}
		items = append(items, Item{JSON: doc})
	}
	return items
}
