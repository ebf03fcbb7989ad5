package itsm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Resource names an API surface of the tenant.
type Resource string

const (
	ResourceBusinessObject Resource = "businessObject"
	ResourceRelationship   Resource = "relationship"
	ResourceAttachment     Resource = "attachment"
	ResourceSearch         Resource = "search"
	ResourceServiceRequest Resource = "serviceRequest"
)

// Operation names an action on a resource.
type Operation string

const (
	OperationCreate     Operation = "create"
	OperationGet        Operation = "get"
	OperationGetAll     Operation = "getAll"
	OperationUpdate     Operation = "update"
	OperationDelete     Operation = "delete"
	OperationLink       Operation = "link"
	OperationUnlink     Operation = "unlink"
	OperationGetRelated Operation = "getRelated"
	OperationUpload     Operation = "upload"
	OperationFullText   Operation = "fullText"
	OperationSaved      Operation = "saved"
)

// Handler performs one operation for one input item.
type Handler func(ctx context.Context, ec *ExecutionContext, itemIndex int, p OperationParams) ([]Item, error)

type dispatchKey struct {
	Resource  Resource
	Operation Operation
}

// handlers is the static dispatch table. Pairs not present here fall back
// to identity passthrough.
var handlers = map[dispatchKey]Handler{
	{ResourceBusinessObject, OperationCreate}: handleBusinessObjectCreate,
	{ResourceBusinessObject, OperationGet}:    handleBusinessObjectGet,
	{ResourceBusinessObject, OperationGetAll}: handleBusinessObjectGetAll,
	{ResourceBusinessObject, OperationUpdate}: handleBusinessObjectUpdate,
	{ResourceBusinessObject, OperationDelete}: handleBusinessObjectDelete,

	{ResourceRelationship, OperationLink}:       handleRelationshipLink,
	{ResourceRelationship, OperationUnlink}:     handleRelationshipUnlink,
	{ResourceRelationship, OperationGetRelated}: handleRelationshipGetRelated,

	{ResourceAttachment, OperationUpload}: handleAttachmentUpload,
	{ResourceAttachment, OperationGet}:    handleAttachmentGet,
	{ResourceAttachment, OperationDelete}: handleAttachmentDelete,

	{ResourceSearch, OperationFullText}: handleSearchFullText,
	{ResourceSearch, OperationSaved}:    handleSearchSaved,

	{ResourceServiceRequest, OperationCreate}: handleServiceRequestCreate,
	{ResourceServiceRequest, OperationGetAll}: handleServiceRequestGetAllParams,
}

// passthroughHandler returns the input item unchanged. Unknown
// resource/operation pairs deliberately do not fail: the host may route
// items through the adapter with operations it does not implement, and
// those items should flow on untouched.
func passthroughHandler(_ context.Context, ec *ExecutionContext, itemIndex int, _ OperationParams) ([]Item, error) {
	if itemIndex < len(ec.Items) {
		item := ec.Items[itemIndex]
		item.Input = itemIndex
		return []Item{item}, nil
	}
	return nil, nil
}

// Execute runs one operation over the whole input batch and returns the
// per-item results in input order. Item pacing comes from the first
// item's resolved batch options. Templated service request creation runs
// the items of each batch slice concurrently; everything else is
// strictly sequential.
func Execute(ctx context.Context, ec *ExecutionContext, resource Resource, operation Operation) ([]ItemResult, error) {
	handler, known := handlers[dispatchKey{resource, operation}]
	if !known {
		ec.Logger.Debug("no handler, passing input through",
			zap.String("resource", string(resource)),
			zap.String("operation", string(operation)))
		handler = passthroughHandler
	}

	total := len(ec.Items)
	if total == 0 {
		return nil, nil
	}

	first, err := ec.Params(0)
	if err != nil {
		return nil, fmt.Errorf("resolving parameters for item 0: %w", err)
	}

	runner := NewBatchRunner(first.Batch, ec.Logger.With(
		zap.String("resource", string(resource)),
		zap.String("operation", string(operation))))

	fn := func(ctx context.Context, itemIndex int) ([]Item, error) {
		p, err := ec.Params(itemIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving parameters for item %d: %w", itemIndex, err)
		}
		return handler(ctx, ec, itemIndex, p)
	}

	if resource == ResourceServiceRequest && operation == OperationCreate {
		return runner.RunConcurrent(ctx, total, ec.ContinueOnFail, fn)
	}
	return runner.Run(ctx, total, ec.ContinueOnFail, fn)
}
