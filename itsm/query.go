package itsm

import (
	"strings"

	"github.com/carlmjohnson/requests"
)

// ListQuery shapes a dataset list request into OData system query options.
type ListQuery struct {
	Filter     string
	Select     []string
	OrderBy    string
	Descending bool
}

// apply sets the query options on a builder. When a field projection is
// active and the sort field is not part of it, the sort field is added to
// the projection: the server rejects ordering by an unselected field.
func (q ListQuery) apply(b *requests.Builder) *requests.Builder {
	if q.Filter != "" {
		b = b.Param("$filter", q.Filter)
	}
	sel := q.Select
	if len(sel) > 0 && q.OrderBy != "" && !containsField(sel, q.OrderBy) {
		sel = append(append([]string{}, sel...), q.OrderBy)
	}
	if len(sel) > 0 {
		b = b.Param("$select", strings.Join(sel, ","))
	}
	if q.OrderBy != "" {
		direction := "asc"
		if q.Descending {
			direction = "desc"
		}
		b = b.Param("$orderby", q.OrderBy+" "+direction)
	}
	return b
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if strings.EqualFold(strings.TrimSpace(f), name) {
			return true
		}
	}
	return false
}
