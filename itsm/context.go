package itsm

import (
	"go.uber.org/zap"

	"github.com/google/uuid"
)

// ExecutionContext carries everything one adapter execution needs: the
// tenant client, a parameter resolver, the failure policy and logging.
// The host constructs one per execution.
type ExecutionContext struct {
	Client *Client

	// Params resolves the operation parameters for one input item.
	// Expressions in the host workflow can make parameters vary per item,
	// which is why resolution is deferred to item time.
	Params func(itemIndex int) (OperationParams, error)

	// ContinueOnFail turns per-item failures into error items instead of
	// aborting the execution.
	ContinueOnFail bool

	// Items is the input batch. Operations that consume input payloads
	// (attachment upload, raw-body mutations) read from here.
	Items []Item

	Logger *zap.Logger

	// ExecutionID correlates log lines across one execution.
	ExecutionID string

	// templates caches service request parameter schemas for the duration
	// of one execution.
	templates templateCache
}

// NewExecutionContext wires a context with a fresh execution ID and a
// usable logger.
func NewExecutionContext(client *Client, items []Item, params func(int) (OperationParams, error)) *ExecutionContext {
	logger := zap.NewNop()
	if client != nil && client.Logger != nil {
		logger = client.Logger
	}
	id := uuid.NewString()
	return &ExecutionContext{
		Client:      client,
		Params:      params,
		Items:       items,
		Logger:      logger.With(zap.String("execution", id)),
		ExecutionID: id,
	}
}

// OperationParams is the resolved parameter set for one item. Only the
// fields relevant to the dispatched operation are consulted; the rest
// keep their zero values.
type OperationParams struct {
	// ObjectName is the dataset name without the plural suffix, e.g.
	// "incident". Endpoint paths append "s".
	ObjectName string
	// RecID addresses one record for get/update/delete and is the parent
	// record for relationship and attachment operations.
	RecID string

	// Relationship operation addressing.
	RelationshipName string
	RelatedRecID     string

	// Dataset query shaping.
	Filter    string
	Select    []string
	OrderBy   string
	OrderDesc bool
	ReturnAll bool
	Limit     int

	// RawKeyOrder keeps fields in the order the tenant sent them;
	// when false, fields are sorted alphabetically (RecId stays first).
	RawKeyOrder bool
	// StripNull removes null-valued fields from output records.
	StripNull bool

	Batch      BatchOptions
	Pagination PaginationOptions

	// Assignments is the field list for create/update when the request
	// body is built field by field.
	Assignments []Assignment
	// RawBody, when non-empty, is sent verbatim instead of Assignments.
	RawBody string
	// IgnoreConversionErrors downgrades field coercion failures to
	// passing the original value through.
	IgnoreConversionErrors bool

	// Full-text and saved search.
	SearchText  string
	SavedSearch string

	// Service request creation.
	UserID         string
	SubscriptionID string
	Subject        string
	Symptom        string
	DelayedFulfill bool
	SaveReqState   bool
	FormName       string
	LocalOffset    int
	// Parameters are the template parameter values keyed by field name.
	Parameters map[string]string

	// Attachment operations.
	BinaryData   []byte
	FileName     string
	MimeType     string
	AttachmentID string
}

// objectPlural returns the dataset path segment for the object, e.g.
// "incident" -> "incidents".
func (p OperationParams) objectPlural() string {
	return p.ObjectName + "s"
}
