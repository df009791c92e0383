package model

import (
	"fmt"
	"strings"
)

// FilterOp enumerates the comparison operators a Filter may use.
type FilterOp int

// Supported filter operators.
const (
	FilterEqual FilterOp = iota
	FilterLessThan
	FilterLessThanOrEqual
	FilterGreaterThan
	FilterGreaterThanOrEqual
)

// Filter is a single field-comparison clause of a Query.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

// SortDirection orders an OrderBy clause.
type SortDirection int

// Supported sort directions.
const (
	Ascending SortDirection = iota
	Descending
)

// OrderBy is a single sort clause of a Query.
type OrderBy struct {
	Field     string
	Direction SortDirection
}

// Query is an opaque, equatable, hashable description of a query
// against a collection: a path, a set of filters, an explicit
// ordering, and an optional result limit. Two Querys built from equal
// inputs compare equal and hash to the same CacheKey, which is what
// the Query View Registry uses as its map key (Go slices inside Query
// are not themselves comparable, so Query cannot be used directly as a
// map key).
type Query struct {
	CollectionPath string
	Filters        []Filter
	OrderBy        []OrderBy
	Limit          int // 0 means unlimited
}

// HasLimit reports whether the query restricts its result size.
func (q Query) HasLimit() bool { return q.Limit > 0 }

// CacheKey returns a canonical string uniquely identifying the query,
// suitable for use as a map key in the Query View Registry.
func (q Query) CacheKey() string {
	var b strings.Builder
	b.WriteString(q.CollectionPath)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, "|f:%s%d%v", f.Field, f.Op, f.Value)
	}
	for _, o := range q.OrderBy {
		fmt.Fprintf(&b, "|o:%s%d", o.Field, o.Direction)
	}
	fmt.Fprintf(&b, "|l:%d", q.Limit)
	return b.String()
}

// EffectiveOrderBy returns the query's explicit ordering with
// DocumentKey ascending appended as the final tie-break.
func (q Query) EffectiveOrderBy() []OrderBy {
	ordered := make([]OrderBy, 0, len(q.OrderBy)+1)
	ordered = append(ordered, q.OrderBy...)
	ordered = append(ordered, OrderBy{Field: "__key__", Direction: Ascending})
	return ordered
}
