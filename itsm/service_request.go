package itsm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
	"github.com/tidwall/gjson"
)

// templateParam is one parameter definition of a service request
// subscription's template.
type templateParam struct {
	Name        string
	RecID       string
	DisplayType string
}

// parameterKey is the wire name of the parameter in the submission body.
func (p templateParam) parameterKey() string {
	key := "par-" + strcase.ToLowerCamel(p.Name)
	if p.RecID != "" {
		key += "-" + p.RecID
	}
	return key
}

// assignmentType maps the parameter's display type onto the coercion
// engine. Display types the tenant invents stay untyped and pass values
// through unconverted.
func (p templateParam) assignmentType() AssignmentType {
	switch strings.ToLower(p.DisplayType) {
	case "number", "numeric", "int", "integer", "decimal", "currency":
		return TypeNumber
	case "boolean", "logical", "checkbox":
		return TypeBoolean
	case "text", "string", "picklist", "datetime", "date", "time":
		return TypeString
	default:
		return TypeUntyped
	}
}

// templateCache resolves a subscription's parameter schema at most once
// per execution, even when the items of a concurrent batch slice race for
// the same subscription: the first item stores a pending entry, later
// items wait on it.
type templateCache struct {
	mu      sync.Mutex
	entries map[string]*templateEntry
}

type templateEntry struct {
	ready  chan struct{}
	params []templateParam
	err    error
}

func (c *templateCache) resolve(ctx context.Context, ec *ExecutionContext, subscriptionID string) ([]templateParam, error) {
	c.mu.Lock()
	if c.entries == nil {
		c.entries = make(map[string]*templateEntry)
	}
	entry, ok := c.entries[subscriptionID]
	if ok {
		c.mu.Unlock()
		select {
		case <-entry.ready:
			return entry.params, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	entry = &templateEntry{ready: make(chan struct{})}
	c.entries[subscriptionID] = entry
	c.mu.Unlock()

	entry.params, entry.err = fetchTemplateParams(ctx, ec, subscriptionID)
	close(entry.ready)
	return entry.params, entry.err
}

// fetchTemplateParams pulls the template parameter definitions attached to
// one subscription.
func fetchTemplateParams(ctx context.Context, ec *ExecutionContext, subscriptionID string) ([]templateParam, error) {
	query := ListQuery{Filter: fmt.Sprintf("ParentLink_RecID eq '%s'", subscriptionID)}
	paginator := NewPaginator(PaginationOptions{PagesPerBatch: -1}, maxPageSize, ec.Logger)
	records, err := paginator.Collect(ctx, 0, func(ctx context.Context, skip, top int) ([]gjson.Result, error) {
		return ec.Client.fetchListPage(ctx, "ServiceReqTemplateParams", query, skip, top, "serviceRequest.templateParams")
	})
	if err != nil {
		return nil, err
	}
	params := make([]templateParam, 0, len(records))
	for _, record := range records {
		params = append(params, templateParam{
			Name:        record.Get("Name").String(),
			RecID:       record.Get("RecId").String(),
			DisplayType: record.Get("DisplayType").String(),
		})
	}
	return params, nil
}

type serviceRequestBody struct {
	StrUserID           string                 `json:"strUserId"`
	StrCustomerLocation string                 `json:"strCustomerLocation,omitempty"`
	SubscriptionID      string                 `json:"subscriptionId"`
	ServiceReqData      serviceReqData         `json:"serviceReqData"`
	DelayedFulfill      bool                   `json:"delayedFulfill"`
	SaveReqState        bool                   `json:"saveReqState"`
	FormName            string                 `json:"formName,omitempty"`
	LocalOffset         int                    `json:"localOffset"`
	Parameters          map[string]interface{} `json:"parameters"`
	AttachmentsToUpload []string               `json:"attachmentsToUpload"`
	AttachmentsToDelete []string               `json:"attachmentsToDelete"`
}

type serviceReqData struct {
	Subject string `json:"Subject,omitempty"`
	Symptom string `json:"Symptom,omitempty"`
}

// handleServiceRequestCreate submits one templated service request. The
// user selection may carry the requester's location after a '|'; parameter
// values are keyed by template field name, coerced to the display type the
// schema declares, and translated to the wire keys. Dispatch runs this
// handler concurrently within each batch slice.
func handleServiceRequestCreate(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	userID, location, _ := strings.Cut(p.UserID, "|")

	parameters := map[string]interface{}{}
	if len(p.Parameters) > 0 {
		schema, err := ec.templates.resolve(ctx, ec, p.SubscriptionID)
		if err != nil {
			return nil, err
		}
		byName := make(map[string]templateParam, len(schema))
		for _, param := range schema {
			byName[strings.ToLower(param.Name)] = param
		}
		for name, value := range p.Parameters {
			param, ok := byName[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("template has no parameter %q (item %d)", name, itemIndex)
			}
			coerced, err := coerceValue(Assignment{
				Name:  param.Name,
				Value: value,
				Type:  param.assignmentType(),
			}, p.IgnoreConversionErrors, itemIndex)
			if err != nil {
				return nil, err
			}
			parameters[param.parameterKey()] = coerced
		}
	}

	req := serviceRequestBody{
		StrUserID:           userID,
		StrCustomerLocation: location,
		SubscriptionID:      p.SubscriptionID,
		ServiceReqData: serviceReqData{
			Subject: p.Subject,
			Symptom: p.Symptom,
		},
		DelayedFulfill: p.DelayedFulfill,
		SaveReqState:   p.SaveReqState,
		FormName:       p.FormName,
		LocalOffset:    p.LocalOffset,
		Parameters:     parameters,
		// Attachments ride on the attachment resource, not the
		// submission body, but the endpoint requires the keys.
		AttachmentsToUpload: []string{},
		AttachmentsToDelete: []string{},
	}

	var body string
	err := ec.Client.APIBuilder().
		Path("/api/rest/ServiceRequest/new").
		BodyJSON(&req).
		Post().
		Handle(captureJSON(&body, "serviceRequest.create")).
		Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return []Item{shapeRecord(gjson.Parse(body), p, itemIndex)}, nil
}

// handleServiceRequestGetAllParams lists the parameters submitted with one
// service request. An extra user filter nests inside the parent-link
// condition so the conjunction cannot be broken up.
func handleServiceRequestGetAllParams(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error) {
	filter := fmt.Sprintf("ParentLink_RecID eq '%s'", p.RecID)
	if p.Filter != "" {
		filter = fmt.Sprintf("(%s) and (%s)", filter, p.Filter)
	}
	query := ListQuery{
		Filter:     filter,
		Select:     p.Select,
		OrderBy:    p.OrderBy,
		Descending: p.OrderDesc,
	}
	paginator := NewPaginator(p.Pagination, maxPageSize, ec.Logger)
	records, err := paginator.Collect(ctx, 0, func(ctx context.Context, skip, top int) ([]gjson.Result, error) {
		return ec.Client.fetchListPage(ctx, "ServiceReqParams", query, skip, top, "serviceRequest.getAll")
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
