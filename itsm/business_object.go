package itsm

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

// fetchListPage issues one dataset page request and returns the records of
// the OData value envelope. Shared by the list handlers and the poll
// trigger.
func (c *Client) fetchListPage(ctx context.Context, object string, query ListQuery, skip, top int, opContext string) ([]gjson.Result, error) {
	var body string
	b := c.APIBuilder().
		Pathf("/api/odata/businessobject/%s", object).
		Param("$skip", fmt.Sprint(skip)).
		Param("$top", fmt.Sprint(top))
	b = query.apply(b)
	err := b.
		Handle(captureJSON(&body, opContext)).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return gjson.Get(body, "value").Array(), nil
}

// shape applies the output options to a fetched record.
func shapeRecord(record gjson.Result, p OperationParams, input int) Item {
	doc := NormalizeRecord(record, !p.RawKeyOrder)
	if p.StripNull {
		doc = StripNullValues(doc)
	}
	return Item{JSON: doc, Input: input}
}

func handleBusinessObjectGet(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	// With a field projection the record endpoint cannot be used; the
	// dataset endpoint with a RecId filter carries $select instead.
	if len(p.Select) > 0 {
		query := ListQuery{
			Filter: fmt.Sprintf("RecId eq '%s'", p.RecID),
			Select: p.Select,
		}
		records, err := ec.Client.fetchListPage(ctx, p.objectPlural(), query, 0, 1, "businessObject.get")
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("item with ID '%s' not found", p.RecID)
		}
		return []Item{shapeRecord(records[0], p, itemIndex)}, nil
	}

	var body string
	err := ec.Client.APIBuilder().
		Pathf("/api/odata/businessobject/%s('%s')", p.objectPlural(), p.RecID).
		Handle(captureJSON(&body, "businessObject.get")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return []Item{shapeRecord(gjson.Parse(body), p, itemIndex)}, nil
}

func handleBusinessObjectGetAll(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	query := ListQuery{
		Filter:     p.Filter,
		Select:     p.Select,
		OrderBy:    p.OrderBy,
		Descending: p.OrderDesc,
	}
	limit := p.Limit
	if p.ReturnAll {
		limit = 0
	}
	paginator := NewPaginator(p.Pagination, maxPageSize, ec.Logger)
	records, err := paginator.Collect(ctx, limit, func(ctx context.Context, skip, top int) ([]gjson.Result, error) {
		return ec.Client.fetchListPage(ctx, p.objectPlural(), query, skip, top, "businessObject.getAll")
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

// mutationBody resolves the request body for create/update: a raw JSON
// document when provided, otherwise a payload built from the assignments.
func mutationBody(p OperationParams, itemIndex int) (string, error) {
	if p.RawBody != "" {
		if !gjson.Valid(p.RawBody) {
			return "", fmt.Errorf("request body is not valid JSON (item %d)", itemIndex)
		}
		return p.RawBody, nil
	}
	return BuildPayload(p.Assignments, p.IgnoreConversionErrors, itemIndex)
}

func handleBusinessObjectCreate(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	payload, err := mutationBody(p, itemIndex)
	if err != nil {
		return nil, err
	}
	var body string
	err = ec.Client.APIBuilder().
		Pathf("/api/odata/businessobject/%s", p.objectPlural()).
		BodyBytes([]byte(payload)).
		ContentType("application/json").
		Post().
		Handle(captureJSON(&body, "businessObject.create")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return []Item{shapeRecord(gjson.Parse(body), p, itemIndex)}, nil
}

func handleBusinessObjectUpdate(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	payload, err := mutationBody(p, itemIndex)
	if err != nil {
		return nil, err
	}
	var body string
	err = ec.Client.APIBuilder().
		Pathf("/api/odata/businessobject/%s('%s')", p.objectPlural(), p.RecID).
		BodyBytes([]byte(payload)).
		ContentType("application/json").
		Put().
		Handle(captureJSON(&body, "businessObject.update")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return []Item{shapeRecord(gjson.Parse(body), p, itemIndex)}, nil
}

func handleBusinessObjectDelete(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	var body string
	err := ec.Client.APIBuilder().
		Pathf("/api/odata/businessobject/%s('%s')", p.objectPlural(), p.RecID).
		Delete().
		Handle(captureJSON(&body, "businessObject.delete")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return []Item{successItem(itemIndex, "Successfully deleted the record",
		member{"recId", mustJSONString(p.RecID)})}, nil
}
