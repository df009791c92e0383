// Package limbo tracks documents that some View believes should exist
// (the server has confirmed they're in a query's result) but that the
// Local Store has no content for. For each such document it maintains
// exactly one resolution listen against the Remote Store,
// reference-counted across every View that reported it.
package limbo

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/docsync/syncengine/internal/metrics"
	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/view"
)

// Resolution is the Sync Engine's bookkeeping for a single limbo
// document's resolution listen.
type Resolution struct {
	Key              model.DocumentKey
	ReceivedDocument bool

	startedAt time.Time
}

// TargetAllocator allocates the Sync Engine's own TargetIds (the odd
// half of the range, per targetid.Generator) for resolution listens.
type TargetAllocator interface {
	Next() model.TargetId
}

// RemoteListener is the subset of remote.Store the Tracker drives
// directly: starting and stopping limbo resolution listens.
type RemoteListener interface {
	Listen(target model.QueryData) error
	StopListening(targetId model.TargetId) error
}

// Tracker owns limboTargetsByKey, limboResolutionsByTarget and
// limboDocumentRefs. It is not safe for concurrent use; like View, it
// is only ever touched from the Sync Engine's single worker.
type Tracker struct {
	allocator TargetAllocator
	remote    RemoteListener

	limboTargetsByKey        map[model.DocumentKey]model.TargetId
	limboResolutionsByTarget map[model.TargetId]*Resolution

	// limboDocumentRefs[key] is the set of view TargetIds that have
	// currently reported key ADDED and not yet REMOVED.
	limboDocumentRefs map[model.DocumentKey]map[model.TargetId]struct{}
}

// NewTracker returns an empty Tracker. allocator hands out resolution
// TargetIds; remote receives the listen/stopListening control signals.
func NewTracker(allocator TargetAllocator, remote RemoteListener) *Tracker {
	return &Tracker{
		allocator:                allocator,
		remote:                   remote,
		limboTargetsByKey:        make(map[model.DocumentKey]model.TargetId),
		limboResolutionsByTarget: make(map[model.TargetId]*Resolution),
		limboDocumentRefs:        make(map[model.DocumentKey]map[model.TargetId]struct{}),
	}
}

// UpdateTrackedLimboDocuments applies limboChanges, reported by a
// single View whose query now listens under viewTargetId.
func (t *Tracker) UpdateTrackedLimboDocuments(changes []view.LimboChange, viewTargetId model.TargetId) error {
	for _, c := range changes {
		switch c.Type {
		case view.LimboAdded:
			if err := t.addReference(c.Key, viewTargetId); err != nil {
				return err
			}
		case view.LimboRemoved:
			t.removeReference(c.Key, viewTargetId)
		}
	}
	return nil
}

func (t *Tracker) addReference(key model.DocumentKey, viewTargetId model.TargetId) error {
	refs, ok := t.limboDocumentRefs[key]
	if !ok {
		refs = make(map[model.TargetId]struct{})
		t.limboDocumentRefs[key] = refs
	}
	refs[viewTargetId] = struct{}{}

	if _, tracked := t.limboTargetsByKey[key]; tracked {
		return nil
	}

	targetId := t.allocator.Next()
	// A query rooted at the document's own path, rather than its
	// parent collection, matches exactly that one document — the
	// point-lookup encoding for a single-key listen.
	query := model.Query{CollectionPath: key.Path()}
	target := model.QueryData{
		Query:          query,
		TargetId:       targetId,
		SequenceNumber: model.InvalidSequenceNumber,
		Purpose:        model.PurposeLimboResolution,
	}
	if err := t.remote.Listen(target); err != nil {
		delete(refs, viewTargetId)
		if len(refs) == 0 {
			delete(t.limboDocumentRefs, key)
		}
		return err
	}

	t.limboTargetsByKey[key] = targetId
	t.limboResolutionsByTarget[targetId] = &Resolution{Key: key, startedAt: time.Now()}
	metrics.LimboTargetsOutstanding.Set(float64(len(t.limboTargetsByKey)))

	log.WithFields(log.Fields{
		"key":      key,
		"targetId": targetId,
	}).Debug("started limbo resolution listen")

	return nil
}

func (t *Tracker) removeReference(key model.DocumentKey, viewTargetId model.TargetId) {
	refs, ok := t.limboDocumentRefs[key]
	if !ok {
		return
	}
	delete(refs, viewTargetId)
	if len(refs) == 0 {
		delete(t.limboDocumentRefs, key)
		t.RemoveLimboTarget(key)
	}
}

// RemoveLimboTarget tears down key's resolution listen, if any.
// Idempotent: key's target may already be gone because the listen was
// rejected out from under the Tracker.
func (t *Tracker) RemoveLimboTarget(key model.DocumentKey) {
	targetId, ok := t.limboTargetsByKey[key]
	if !ok {
		return
	}
	if res, ok := t.limboResolutionsByTarget[targetId]; ok {
		metrics.LimboResolutionDurations.Observe(time.Since(res.startedAt).Seconds())
	}
	delete(t.limboTargetsByKey, key)
	delete(t.limboResolutionsByTarget, targetId)
	delete(t.limboDocumentRefs, key)
	metrics.LimboTargetsOutstanding.Set(float64(len(t.limboTargetsByKey)))

	if err := t.remote.StopListening(targetId); err != nil {
		log.WithFields(log.Fields{
			"key":      key,
			"targetId": targetId,
			"error":    err,
		}).Warn("stopListening failed while removing limbo target")
	}
}

// RemoveViewTarget drops every limbo reference owned by viewTargetId.
// Call this from stopListening before the View itself is discarded.
func (t *Tracker) RemoveViewTarget(viewTargetId model.TargetId) {
	for key, refs := range t.limboDocumentRefs {
		if _, owns := refs[viewTargetId]; !owns {
			continue
		}
		delete(refs, viewTargetId)
		if len(refs) == 0 {
			delete(t.limboDocumentRefs, key)
			t.RemoveLimboTarget(key)
		}
	}
}

// ResolutionForTarget returns the Resolution tracked for targetId, if
// any — used by the Sync Controller to recognize a RemoteEvent or
// rejected listen against a limbo resolution target.
func (t *Tracker) ResolutionForTarget(targetId model.TargetId) (*Resolution, bool) {
	r, ok := t.limboResolutionsByTarget[targetId]
	return r, ok
}

// TargetForKey returns the resolution TargetId tracking key, if any.
func (t *Tracker) TargetForKey(key model.DocumentKey) (model.TargetId, bool) {
	id, ok := t.limboTargetsByKey[key]
	return id, ok
}

// ViewTargetsReferencing returns the TargetIds of every View currently
// holding a limbo reference to key — used by the Sync Controller to
// synthesize a deletion across every View affected when key's
// resolution listen is rejected.
func (t *Tracker) ViewTargetsReferencing(key model.DocumentKey) []model.TargetId {
	refs, ok := t.limboDocumentRefs[key]
	if !ok {
		return nil
	}
	out := make([]model.TargetId, 0, len(refs))
	for id := range refs {
		out = append(out, id)
	}
	return out
}

// MarkReceivedDocument records that a resolution listen has now seen
// content for its key at least once — the receivedDocument flag,
// used by the Sync Controller to distinguish a genuine remote deletion
// (receivedDocument already true) from a listen that simply hasn't
// caught up yet.
func (t *Tracker) MarkReceivedDocument(targetId model.TargetId) {
	if r, ok := t.limboResolutionsByTarget[targetId]; ok {
		r.ReceivedDocument = true
	}
}

// ClearReceivedDocument reverts MarkReceivedDocument, used when a
// removal is observed against a limbo resolution target.
func (t *Tracker) ClearReceivedDocument(targetId model.TargetId) {
	if r, ok := t.limboResolutionsByTarget[targetId]; ok {
		r.ReceivedDocument = false
	}
}

// Len reports the number of distinct documents currently tracked as in
// limbo — exposed for tests asserting property invariants.
func (t *Tracker) Len() int {
	return len(t.limboTargetsByKey)
}
