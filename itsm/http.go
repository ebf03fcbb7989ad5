package itsm

import "time"

// HTTPRequestTimeout bounds every outbound call to the tenant, including
// attachment uploads. Slow tenants surface as a timeout error on the item
// rather than stalling the whole batch.
const HTTPRequestTimeout = 2 * time.Minute

// maxPageSize is the dataset page size the OData endpoints accept per
// request. Larger values are silently truncated by the server, so the
// paginator never asks for more.
const maxPageSize = 100

// fullTextPageSize is the fixed page size of the full-text search endpoint.
const fullTextPageSize = 20
