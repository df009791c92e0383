package status

import "fmt"

// ProgrammerError is the panic value used for the Sync Engine's
// internal assertions: a programmer error crashes the process because
// it indicates a bug, not a runtime condition. Tests that want to
// assert a precondition violation should recover and check for this
// type rather than matching on a string.
type ProgrammerError struct {
	Message string
}

func (e *ProgrammerError) Error() string { return "assertion failed: " + e.Message }

// Fail panics with a ProgrammerError built from the given format
// string. Use it for should-never-happen conditions that indicate a
// bug in the caller rather than a recoverable runtime error.
func Fail(format string, args ...any) {
	panic(&ProgrammerError{Message: fmt.Sprintf(format, args...)})
}

// Assert panics with a ProgrammerError if cond is false.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		Fail(format, args...)
	}
}
