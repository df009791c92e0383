package model

// MaybeDocument is either a Document known to exist at some Version,
// or a NoDocument recording
// that the key is known to be absent (possibly because of a locally
// queued, not-yet-acknowledged deletion).
type MaybeDocument struct {
	Key     DocumentKey
	Version Version

	// exists is false for a NoDocument.
	exists bool
	Fields map[string]any

	// HasCommittedMutations is only meaningful on a NoDocument: it
	// records that a mutation touching this key has been committed by
	// the backend. Equal compares it for NoDocuments, so a change in
	// this flag alone counts as a change to the View.
	HasCommittedMutations bool
}

// NewDocument constructs a MaybeDocument representing an existing
// document.
func NewDocument(key DocumentKey, version Version, fields map[string]any) MaybeDocument {
	return MaybeDocument{Key: key, Version: version, exists: true, Fields: fields}
}

// NewNoDocument constructs a MaybeDocument representing a confirmed
// absence.
func NewNoDocument(key DocumentKey, version Version, hasCommittedMutations bool) MaybeDocument {
	return MaybeDocument{
		Key:                   key,
		Version:               version,
		exists:                false,
		HasCommittedMutations: hasCommittedMutations,
	}
}

// Exists reports whether this value represents a live Document.
func (m MaybeDocument) Exists() bool { return m.exists }

// Equal reports whether two MaybeDocuments have the same observable
// state (key, version, existence, and fields). Used by the View to
// decide whether a recomputation actually changed anything.
func (m MaybeDocument) Equal(other MaybeDocument) bool {
	if m.Key != other.Key || m.Version.Compare(other.Version) != 0 || m.exists != other.exists {
		return false
	}
	if !m.exists {
		return m.HasCommittedMutations == other.HasCommittedMutations
	}
	if len(m.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range m.Fields {
		ov, ok := other.Fields[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}
