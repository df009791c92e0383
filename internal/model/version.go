// Package model holds the Sync Engine's core data types: Query,
// TargetId, DocumentKey, MaybeDocument, and the other value types
// named in the data model.
package model

import "fmt"

// Version is a monotonic, per-key logical clock. It orders two
// revisions of the same DocumentKey; it carries no meaning across
// distinct keys.
type Version struct {
	seconds int64
	logical int32
}

// None is the version assigned to a key that has never been observed.
var None = Version{}

// NewVersion constructs a Version from a wall-clock component and a
// logical tie-breaker, mirroring how the Remote Store timestamps
// updates.
func NewVersion(seconds int64, logical int32) Version {
	return Version{seconds: seconds, logical: logical}
}

// Seconds returns the wall-clock component.
func (v Version) Seconds() int64 { return v.seconds }

// Logical returns the logical tie-breaker.
func (v Version) Logical() int32 { return v.logical }

// IsNone reports whether v is the zero/None version.
func (v Version) IsNone() bool { return v == None }

// Compare orders two Versions. It returns a negative number, zero, or
// a positive number as v is before, equal to, or after other.
func (v Version) Compare(other Version) int {
	if v.seconds != other.seconds {
		if v.seconds < other.seconds {
			return -1
		}
		return 1
	}
	if v.logical != other.logical {
		if v.logical < other.logical {
			return -1
		}
		return 1
	}
	return 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.seconds, v.logical)
}
