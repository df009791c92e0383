package model

// Mutation describes a single document write queued by the
// application: a key plus either a full/partial field set (an upsert)
// or a nil field set (a delete). Conflict resolution beyond
// last-writer-wins at the field level is owned by the mutation layer,
// out of scope for the Sync Engine itself.
type Mutation struct {
	Key    DocumentKey
	Fields map[string]any // nil means delete
}

// IsDelete reports whether the mutation removes the document.
func (m Mutation) IsDelete() bool { return m.Fields == nil }

// LocalWriteResult is returned by the Local Store when it durably
// queues a batch of mutations.
type LocalWriteResult struct {
	BatchId BatchId
	Changes map[DocumentKey]MaybeDocument
}

// BatchResult is returned by the Remote Store when it acknowledges a
// previously-written batch.
type BatchResult struct {
	BatchId BatchId
	Version Version
}

// UniqueByKey implements a "last one wins" de-duplication over a slice
// of Mutations: if two mutations share the same DocumentKey, the
// caller-supplied order decides which one is kept (the later one in
// the slice). Kept mutations are compacted towards the end of muts,
// in their original relative order, and that live suffix of the
// modified slice is returned.
//
// The demo Local Store (internal/teststore) calls it from
// WriteLocally to coalesce a batch before queueing it.
func UniqueByKey(muts []Mutation) []Mutation {
	seenIdx := make(map[DocumentKey]int, len(muts))
	dest := len(muts)
	for src := len(muts) - 1; src >= 0; src-- {
		key := muts[src].Key
		if _, found := seenIdx[key]; found {
			continue // a later mutation for this key was already kept
		}
		dest--
		seenIdx[key] = dest
		muts[dest] = muts[src]
	}
	return muts[dest:]
}
