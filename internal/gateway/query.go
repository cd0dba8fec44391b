package gateway

import (
	"fmt"
	"net/url"
	"strings"
)

// Query describes a filtered read or targeted write in the data layer's
// query-string dialect.
type Query struct {
	filters    []filter
	selects    string
	order      string
	limit      int
	offset     int
	onConflict string

	// Count requests an exact total via the Prefer header.
	Count bool
}

type filter struct {
	column string
	expr   string
}

// Eq filters column = value.
func (q Query) Eq(column string, value any) Query {
	return q.add(column, fmt.Sprintf("eq.%v", value))
}

// In filters column membership in values. The dialect rejects an empty list
// as a parse error, so callers must short-circuit empty sets before building
// the query.
func (q Query) In(column string, values []string) Query {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = quoteListItem(v)
	}
	return q.add(column, "in.("+strings.Join(escaped, ",")+")")
}

// NotIn filters column not in values.
func (q Query) NotIn(column string, values []string) Query {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = quoteListItem(v)
	}
	return q.add(column, "not.in.("+strings.Join(escaped, ",")+")")
}

// Is filters column against null / true / false.
func (q Query) Is(column string, value string) Query {
	return q.add(column, "is."+value)
}

// Gte filters column >= value.
func (q Query) Gte(column string, value any) Query {
	return q.add(column, fmt.Sprintf("gte.%v", value))
}

// Lte filters column <= value.
func (q Query) Lte(column string, value any) Query {
	return q.add(column, fmt.Sprintf("lte.%v", value))
}

// ILike filters column by case-insensitive pattern match.
func (q Query) ILike(column, pattern string) Query {
	return q.add(column, "ilike."+pattern)
}

// Select restricts returned columns.
func (q Query) Select(columns string) Query {
	q.selects = columns
	return q
}

// Order sets ordering, e.g. "created_at.asc".
func (q Query) Order(order string) Query {
	q.order = order
	return q
}

// Page applies limit/offset pagination.
func (q Query) Page(limit, offset int) Query {
	q.limit = limit
	q.offset = offset
	return q
}

// WithCount requests an exact total count alongside the page.
func (q Query) WithCount() Query {
	q.Count = true
	return q
}

// OnConflict names the unique columns a merge-duplicates write resolves
// against. Without it the data layer merges on the primary key only, so
// natural-key upserts would insert duplicates.
func (q Query) OnConflict(columns string) Query {
	q.onConflict = columns
	return q
}

func (q Query) add(column, expr string) Query {
	q.filters = append(q.filters, filter{column: column, expr: expr})
	return q
}

// Encode renders the query string. Filter order is preserved so scoped lookups
// produce stable, comparable request URLs.
func (q Query) Encode() string {
	var parts []string
	for _, f := range q.filters {
		parts = append(parts, url.QueryEscape(f.column)+"="+url.QueryEscape(f.expr))
	}
	if q.onConflict != "" {
		parts = append(parts, "on_conflict="+url.QueryEscape(q.onConflict))
	}
	if q.selects != "" {
		parts = append(parts, "select="+url.QueryEscape(q.selects))
	}
	if q.order != "" {
		parts = append(parts, "order="+url.QueryEscape(q.order))
	}
	if q.limit > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d", q.limit))
	}
	if q.offset > 0 {
		parts = append(parts, fmt.Sprintf("offset=%d", q.offset))
	}
	return strings.Join(parts, "&")
}

// quoteListItem quotes values containing the dialect's list delimiters.
func quoteListItem(v string) string {
	if strings.ContainsAny(v, ",()\" ") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}
