package model

import "strings"

// DocumentKey is a hierarchical path identifying a single document,
// e.g. "users/alice/rooms/42". Keys are totally ordered by byte-wise
// comparison of the full path string (not segment by segment).
type DocumentKey struct {
	path string
}

// NewDocumentKey builds a key from a slash-separated path. The path is
// not validated at all (an empty path yields the zero key); that is
// the Local Store's job.
func NewDocumentKey(path string) DocumentKey {
	return DocumentKey{path: path}
}

// Path returns the key's slash-separated path.
func (k DocumentKey) Path() string { return k.path }

// IsZero reports whether k is the unset key value.
func (k DocumentKey) IsZero() bool { return k.path == "" }

// Compare orders two keys. It returns a negative number, zero, or a
// positive number as k sorts before, equal to, or after other.
func (k DocumentKey) Compare(other DocumentKey) int {
	return strings.Compare(k.path, other.path)
}

func (k DocumentKey) String() string { return k.path }

// CollectionPath returns the path of the parent collection, i.e.
// everything before the final path segment.
func (k DocumentKey) CollectionPath() string {
	idx := strings.LastIndex(k.path, "/")
	if idx < 0 {
		return ""
	}
	return k.path[:idx]
}
