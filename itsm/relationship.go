package itsm

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
)

func handleRelationshipLink(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	var body string
	err := ec.Client.APIBuilder().
		Pathf("/api/odata/businessobject/%s('%s')/%s('%s')/$Ref",
			p.objectPlural(), p.RecID, p.RelationshipName, p.RelatedRecID).
		Patch().
		Handle(captureJSON(&body, "relationship.link")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return []Item{successItem(itemIndex, "Successfully created the link",
		member{"recId", mustJSONString(p.RecID)},
		member{"relatedRecId", mustJSONString(p.RelatedRecID)})}, nil
}

func handleRelationshipUnlink(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	var body string
	err := ec.Client.APIBuilder().
		Pathf("/api/odata/businessobject/%s('%s')/%s('%s')/$Ref",
			p.objectPlural(), p.RecID, p.RelationshipName, p.RelatedRecID).
		Delete().
		Handle(captureJSON(&body, "relationship.unlink")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return []Item{successItem(itemIndex, "Successfully removed the link",
		member{"recId", mustJSONString(p.RecID)},
		member{"relatedRecId", mustJSONString(p.RelatedRecID)})}, nil
}

// handleRelationshipGetRelated lists the records on the far side of a
// relationship, through the same pagination engine as getAll.
func handleRelationshipGetRelated(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	limit := p.Limit
	if p.ReturnAll {
		limit = 0
	}
	paginator := NewPaginator(p.Pagination, maxPageSize, ec.Logger)
	records, err := paginator.Collect(ctx, limit, func(ctx context.Context, skip, top int) ([]gjson.Result, error) {
		var body string
		err := ec.Client.APIBuilder().
			Pathf("/api/odata/businessobject/%s('%s')/%s",
				p.objectPlural(), p.RecID, p.RelationshipName).
			Param("$skip", fmt.Sprint(skip)).
			Param("$top", fmt.Sprint(top)).
			Handle(captureJSON(&body, "relationship.getRelated")).
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
