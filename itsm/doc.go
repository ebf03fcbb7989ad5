// Package itsm is an integration adapter for the Ivanti Neurons for ITSM
// OData/REST API, intended to be embedded in a host workflow engine.
//
// The host resolves per-item operation parameters (OperationParams) and
// provides an ExecutionContext; the adapter turns a batch of input items
// into a sequence of outbound HTTP calls with item-level throttling
// (BatchRunner), offset/limit pagination with its own independent cadence
// (Paginator), canonical response shaping (NormalizeRecord) and best-effort
// error classification (ClassifyError).
//
// Entry points:
//
//   - Execute dispatches a (Resource, Operation) pair over a batch of input
//     items. Unknown pairs pass input through unchanged.
//   - Poller drives the incremental trigger: it keeps a high-water-mark
//     timestamp cursor across poll cycles; the host persists the cursor
//     between invocations.
//   - Client exposes the field / saved-search / employee / subscription
//     discovery lookups used to populate host dropdowns.
//
// All outbound calls authenticate with the tenant's REST API key
// (Authorization: rest_api_key=...) and honour the tenant's TLS settings.
package itsm
