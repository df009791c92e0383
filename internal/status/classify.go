package status

import (
	"strings"

	"github.com/pkg/errors"
)

// PermanentClassifier lets the transport layer veto retry for a
// specific FAILED_PRECONDITION (or other) error that looks transient
// by code alone but is known, by message or metadata, to be permanent.
// The Sync Engine's transaction retry loop consults
// this before deciding an error is retryable.
type PermanentClassifier func(err error) bool

// NeverPermanent is the default classifier: every error is treated as
// transient unless its Code already says otherwise.
func NeverPermanent(error) bool { return false }

// IsRetryable reports whether err should be retried by the
// transaction loop:
//
//	ABORTED, FAILED_PRECONDITION (excluding those the transport marks
//	permanent), or any other transient class the transport declares
//	non-permanent.
func IsRetryable(err error, isPermanent PermanentClassifier) bool {
	if err == nil {
		return false
	}
	if isPermanent == nil {
		isPermanent = NeverPermanent
	}
	switch Of(err) {
	case Aborted:
		return true
	case FailedPrecondition:
		return !isPermanent(err)
	case OK, Cancelled, PermissionDenied:
		return false
	default:
		return !isPermanent(err)
	}
}

// IsInteresting reports whether err should be logged at warn level
// rather than debug: FAILED_PRECONDITION whose
// description mentions missing indexes, and PERMISSION_DENIED.
func IsInteresting(err error) bool {
	if err == nil {
		return false
	}
	switch Of(err) {
	case PermissionDenied:
		return true
	case FailedPrecondition:
		var se *Error
		if errors.As(err, &se) {
			return strings.Contains(strings.ToLower(se.Message), "index")
		}
		return false
	default:
		return false
	}
}
