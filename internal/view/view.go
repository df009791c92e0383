package view

import (
	"github.com/docsync/syncengine/internal/model"
)

// View materializes a single query's result from local documents plus
// remote sync state. It owns (syncedDocuments, documentSet, syncState)
// and is mutated only from the Sync Engine's single worker; View
// itself does no locking.
type View struct {
	query      model.Query
	comparator *comparator

	// syncedDocuments is the set of keys the server has confirmed are
	// in the query result at the current resume point.
	syncedDocuments map[model.DocumentKey]struct{}

	// documentSet is the ordered result the user observes, keyed for
	// O(1) membership tests and kept in comparator order as a slice.
	documentSet []model.MaybeDocument
	byKey       map[model.DocumentKey]model.MaybeDocument

	// limboDocuments is the subset of syncedDocuments not present in
	// documentSet. Only maintained once the server has marked the
	// target CURRENT: until then nothing can be "missing", so the set
	// stays empty and no limbo changes are ever reported.
	limboDocuments map[model.DocumentKey]struct{}

	// current records whether the server has marked this View's target
	// CURRENT at the present resume point. Going offline clears it;
	// the server re-marks CURRENT when the stream catches back up.
	current bool

	syncState model.SyncState

	hasPendingWrites bool

	// everEmitted is false until the first snapshot is built, so the
	// initial ApplyChanges after construction always produces one even
	// when the seeded state is empty.
	everEmitted bool
}

// New constructs a View seeded with the keys the Local Store has
// already recorded as remotely synced and the documents currently in
// the local cache.
func New(q model.Query, syncedKeys map[model.DocumentKey]struct{}, localDocs []model.MaybeDocument) *View {
	v := &View{
		query:           q,
		comparator:      newComparator(q),
		syncedDocuments: copyKeySet(syncedKeys),
		byKey:           make(map[model.DocumentKey]model.MaybeDocument),
		limboDocuments:  make(map[model.DocumentKey]struct{}),
		syncState:       model.SyncStateLocal,
	}
	for _, d := range localDocs {
		if !d.Exists() {
			continue
		}
		v.insertSorted(d)
	}
	return v
}

func copyKeySet(in map[model.DocumentKey]struct{}) map[model.DocumentKey]struct{} {
	out := make(map[model.DocumentKey]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// Query returns the query this View materializes.
func (v *View) Query() model.Query { return v.query }

// SyncedDocuments returns a defensive copy of the current synced-key
// set ("defensive copies are returned to test-only
// inspectors").
func (v *View) SyncedDocuments() map[model.DocumentKey]struct{} {
	return copyKeySet(v.syncedDocuments)
}

// DocumentSet returns a defensive copy of the current ordered result.
func (v *View) DocumentSet() []model.MaybeDocument {
	out := make([]model.MaybeDocument, len(v.documentSet))
	copy(out, v.documentSet)
	return out
}

// LimboDocuments returns a defensive copy of the current limbo set.
func (v *View) LimboDocuments() map[model.DocumentKey]struct{} {
	return copyKeySet(v.limboDocuments)
}

// SyncState returns the View's current sync state.
func (v *View) SyncState() model.SyncState { return v.syncState }

// SetHasPendingWrites records the HasPendingWrites value for this
// View's next snapshots. The Sync Controller sets it ahead of each
// ApplyChanges call from whether any batch at all is still
// unacknowledged; it is not tracked per document or per View.
func (v *View) SetHasPendingWrites(has bool) { v.hasPendingWrites = has }

// ComputeDocChanges folds changes (a map of affected documents, from a
// write, an ack, or a RemoteEvent) into DocumentChanges without
// mutating the View. Only keys under the query's collection are
// considered.
func (v *View) ComputeDocChanges(changes map[model.DocumentKey]model.MaybeDocument) DocumentChanges {
	return v.computeDocChanges(changes)
}

// ComputeDocChangesWithPrior is the re-fill variant: docs is the full,
// freshly re-executed query result (used as
// context so the limit window is correct); prior is the
// DocumentChanges computed before the refill was triggered, whose
// entries are merged with whatever changed as a result of
// incorporating docs.
func (v *View) ComputeDocChangesWithPrior(docs []model.MaybeDocument, prior DocumentChanges) DocumentChanges {
	merged := v.computeDocChanges(indexDocs(docs))
	for k, c := range prior.Changes {
		if _, ok := merged.Changes[k]; !ok {
			merged.Changes[k] = c
		}
	}
	return merged
}

func indexDocs(docs []model.MaybeDocument) map[model.DocumentKey]model.MaybeDocument {
	out := make(map[model.DocumentKey]model.MaybeDocument, len(docs))
	for _, d := range docs {
		out[d.Key] = d
	}
	return out
}

func (v *View) computeDocChanges(changes map[model.DocumentKey]model.MaybeDocument) DocumentChanges {
	result := DocumentChanges{Changes: make(map[model.DocumentKey]DocChange)}

	for key, doc := range changes {
		// Evaluating a query's filters is the query execution
		// engine's job (out of scope); the View only knows enough to
		// restrict a global changes map to documents under its own
		// collection.
		if key.CollectionPath() != v.query.CollectionPath {
			continue
		}
		old, wasInSet := v.byKey[key]
		switch {
		case doc.Exists() && wasInSet:
			if !doc.Equal(old) {
				result.Changes[key] = DocChange{Doc: doc, Type: ChangeModified}
			}
		case doc.Exists() && !wasInSet:
			result.Changes[key] = DocChange{Doc: doc, Type: ChangeAdded}
		case !doc.Exists() && wasInSet:
			result.Changes[key] = DocChange{Doc: doc, Type: ChangeRemoved}
			if v.query.HasLimit() && v.indexInWindow(key) {
				result.NeedsRefill = true
			}
		}
	}

	return result
}

// indexInWindow reports whether key's current position in documentSet
// falls inside a limit query's window, i.e. removing it leaves a gap
// the View cannot fill without re-executing the query.
func (v *View) indexInWindow(key model.DocumentKey) bool {
	for i, d := range v.documentSet {
		if d.Key == key {
			return i < v.query.Limit
		}
	}
	return false
}

// ApplyChanges applies docChanges (and, when present, the View's
// TargetChange from the latest RemoteEvent) to the View, updating
// syncedDocuments, recomputing documentSet, and deriving limboChanges.
// It returns a ViewChange whose Snapshot is nil if no observable state
// changed.
func (v *View) ApplyChanges(docChanges DocumentChanges, targetChange *model.TargetChange) ViewChange {
	oldDocumentKeys := v.currentKeySet()
	oldSyncState := v.syncState

	if targetChange != nil {
		for _, k := range targetChange.Added {
			v.syncedDocuments[k] = struct{}{}
		}
		for _, k := range targetChange.Removed {
			delete(v.syncedDocuments, k)
		}
		if targetChange.Current {
			v.current = true
			v.syncState = model.SyncStateSynced
		}
	}

	for key, change := range docChanges.Changes {
		switch change.Type {
		case ChangeRemoved:
			v.removeSorted(key)
		default: // Added or Modified
			v.insertSorted(change.Doc)
		}
	}

	// A limit query's window holds at most Limit documents; anything
	// the delta pushed past the boundary falls out of the result.
	if v.query.HasLimit() {
		for len(v.documentSet) > v.query.Limit {
			v.removeSorted(v.documentSet[len(v.documentSet)-1].Key)
		}
	}

	newDocumentKeys := v.currentKeySet()
	limboChanges := v.updateLimbo()

	snapshotChanged := !sameKeySet(oldDocumentKeys, newDocumentKeys) || oldSyncState != v.syncState ||
		len(docChanges.Changes) > 0 || !v.everEmitted

	var snapshot *Snapshot
	if snapshotChanged {
		snapshot = v.buildSnapshot()
	}

	return ViewChange{Snapshot: snapshot, LimboChanges: limboChanges}
}

// ApplyOnlineStateChange affects only syncState, never limboChanges.
func (v *View) ApplyOnlineStateChange(state model.OnlineState) ViewChange {
	if state != model.OnlineStateOffline || !v.current {
		return ViewChange{}
	}
	// Losing the network invalidates the CURRENT marker; the server
	// re-marks it once the stream catches back up.
	v.current = false
	v.syncState = model.SyncStateLocal
	return ViewChange{Snapshot: v.buildSnapshot()}
}

func (v *View) buildSnapshot() *Snapshot {
	v.everEmitted = true
	return &Snapshot{
		Documents:        v.DocumentSet(),
		SyncState:        v.syncState,
		FromCache:        v.syncState != model.SyncStateSynced,
		HasPendingWrites: v.hasPendingWrites,
	}
}

func (v *View) currentKeySet() map[model.DocumentKey]struct{} {
	out := make(map[model.DocumentKey]struct{}, len(v.documentSet))
	for _, d := range v.documentSet {
		out[d.Key] = struct{}{}
	}
	return out
}

func sameKeySet(a, b map[model.DocumentKey]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// updateLimbo recomputes limboDocuments as syncedDocuments \
// documentSet and returns the ADDED/REMOVED transitions relative to
// the previous limbo set. Limbo can only be determined once the
// server has marked the target CURRENT; before that (and while
// offline) the set is left untouched and no changes are reported.
func (v *View) updateLimbo() []LimboChange {
	if !v.current {
		return nil
	}

	limbo := make(map[model.DocumentKey]struct{})
	for k := range v.syncedDocuments {
		if _, inSet := v.byKey[k]; !inSet {
			limbo[k] = struct{}{}
		}
	}

	var changes []LimboChange
	for k := range limbo {
		if _, was := v.limboDocuments[k]; !was {
			changes = append(changes, LimboChange{Key: k, Type: LimboAdded})
		}
	}
	for k := range v.limboDocuments {
		if _, is := limbo[k]; !is {
			changes = append(changes, LimboChange{Key: k, Type: LimboRemoved})
		}
	}
	v.limboDocuments = limbo
	return changes
}

func (v *View) insertSorted(doc model.MaybeDocument) {
	v.removeSorted(doc.Key)
	idx := 0
	for idx < len(v.documentSet) && v.comparator.less(v.documentSet[idx], doc) {
		idx++
	}
	v.documentSet = append(v.documentSet, model.MaybeDocument{})
	copy(v.documentSet[idx+1:], v.documentSet[idx:])
	v.documentSet[idx] = doc
	v.byKey[doc.Key] = doc
}

func (v *View) removeSorted(key model.DocumentKey) {
	if _, ok := v.byKey[key]; !ok {
		return
	}
	delete(v.byKey, key)
	for i, d := range v.documentSet {
		if d.Key == key {
			v.documentSet = append(v.documentSet[:i], v.documentSet[i+1:]...)
			break
		}
	}
}
