package engine

import (
	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/status"
	"github.com/docsync/syncengine/internal/view"
)

// queryView binds {Query, TargetId, View}.
type queryView struct {
	query    model.Query
	targetId model.TargetId
	view     *view.View
}

// registry is the bidirectional Query ↔ TargetId ↔ View index backing
// the Query View Registry. byQuery and byTarget always contain exactly
// the same set of queryViews, keyed differently. registry enforces
// this itself rather than trusting callers to keep both maps in sync.
type registry struct {
	byQuery  map[string]*queryView // keyed by Query.CacheKey()
	byTarget map[model.TargetId]*queryView
}

func newRegistry() *registry {
	return &registry{
		byQuery:  make(map[string]*queryView),
		byTarget: make(map[model.TargetId]*queryView),
	}
}

func (r *registry) get(q model.Query) (*queryView, bool) {
	qv, ok := r.byQuery[q.CacheKey()]
	return qv, ok
}

func (r *registry) getByTarget(targetId model.TargetId) (*queryView, bool) {
	qv, ok := r.byTarget[targetId]
	return qv, ok
}

func (r *registry) add(qv *queryView) {
	status.Assert(qv != nil, "add: nil queryView")
	r.byQuery[qv.query.CacheKey()] = qv
	r.byTarget[qv.targetId] = qv
}

func (r *registry) remove(qv *queryView) {
	delete(r.byQuery, qv.query.CacheKey())
	delete(r.byTarget, qv.targetId)
}

func (r *registry) all() []*queryView {
	out := make([]*queryView, 0, len(r.byTarget))
	for _, qv := range r.byTarget {
		out = append(out, qv)
	}
	return out
}

func (r *registry) len() int { return len(r.byTarget) }
