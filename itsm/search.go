package itsm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

type fullTextRequest struct {
	Text       string `json:"Text"`
	ObjectType string `json:"ObjectType"`
	Top        int    `json:"Top"`
	Skip       int    `json:"Skip"`
}

// handleSearchFullText runs the tenant's full-text index over one dataset.
// The endpoint pages in fixed chunks regardless of the requested Top, so
// the paginator is pinned to that size.
func handleSearchFullText(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	limit := p.Limit
	if p.ReturnAll {
		limit = 0
	}
	paginator := NewPaginator(p.Pagination, fullTextPageSize, ec.Logger)
	records, err := paginator.Collect(ctx, limit, func(ctx context.Context, skip, top int) ([]gjson.Result, error) {
		req := fullTextRequest{
			Text:       p.SearchText,
			ObjectType: p.ObjectName,
			Top:        top,
			Skip:       skip,
		}
		var body string
		err := ec.Client.APIBuilder().
			Path("/api/rest/search/fulltext").
			BodyJSON(&req).
			Post().
			Handle(captureJSON(&body, "search.fullText")).
			Fetch(ctx)
		if err != nil {
			return nil, err
		}
		parsed := gjson.Parse(body)
		if items := parsed.Get("Items"); items.Exists() {
			return items.Array(), nil
		}
		return parsed.Array(), nil
	})
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(records))
	for _, record := range records {
		items = append(items, shapeRecord(record, p, itemIndex))
	}
	return items, nil
}

// handleSearchSaved executes a saved search by name. The host encodes the
// selection as "SearchName|ActionId" (see Client.SavedSearches).
func handleSearchSaved(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	name, actionID := splitSavedSearch(p.SavedSearch)
	if name == "" {
		return nil, fmt.Errorf("saved search name is empty (item %d)", itemIndex)
	}
	limit := p.Limit
	if p.ReturnAll {
		limit = 0
	}
	paginator := NewPaginator(p.Pagination, maxPageSize, ec.Logger)
	records, err := paginator.Collect(ctx, limit, func(ctx context.Context, skip, top int) ([]gjson.Result, error) {
		var body string
		err := ec.Client.APIBuilder().
			Pathf("/api/odata/businessobject/%s/%s", p.objectPlural(), name).
			Param("ActionId", actionID).
			Param("$skip", fmt.Sprint(skip)).
			Param("$top", fmt.Sprint(top)).
			Handle(captureJSON(&body, "search.saved")).
			Fetch(ctx)
		if err != nil {
			return nil, err
		}
		return gjson.Get(body, "value").Array(), nil
	})
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(records))
	for _, record := range records {
		items = append(items, shapeRecord(record, p, itemIndex))
	}
	return items, nil
}

func splitSavedSearch(value string) (name, actionID string) {
	name, actionID, _ = strings.Cut(value, "|")
	return name, actionID
}
