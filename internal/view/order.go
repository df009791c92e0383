package view

import (
	"fmt"

	"github.com/docsync/syncengine/internal/model"
)

// comparator orders two documents according to a query's effective
// ordering. Evaluating the actual query predicate/sort plan is
// the query execution engine's job; this is
// the minimal amount of ordering the View needs to merge an
// incremental delta into an already-ordered document set without
// re-running the query.
type comparator struct {
	orderBy []model.OrderBy
}

func newComparator(q model.Query) *comparator {
	return &comparator{orderBy: q.EffectiveOrderBy()}
}

// less reports whether a sorts before b.
func (c *comparator) less(a, b model.MaybeDocument) bool {
	for _, ob := range c.orderBy {
		var cmp int
		if ob.Field == "__key__" {
			cmp = a.Key.Compare(b.Key)
		} else {
			cmp = compareValues(a.Fields[ob.Field], b.Fields[ob.Field])
		}
		if cmp == 0 {
			continue
		}
		if ob.Direction == model.Descending {
			cmp = -cmp
		}
		return cmp < 0
	}
	return false
}

// compareValues orders two arbitrary field values. It supports the
// handful of JSON-ish scalar types a document field commonly holds;
// anything else falls back to comparing their formatted
// representation so ordering is at least total and deterministic.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return compareFloat(av, bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			return compareFloat(float64(av), float64(bv))
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return compareFloat(float64(av), float64(bv))
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return compareBool(av, bv)
		}
	}
	return compareValues(fmt.Sprint(a), fmt.Sprint(b))
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}
