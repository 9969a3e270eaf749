package heap

import (
	"errors"
	"fmt"
)

// Heap errors.
var (
	// ErrUsage marks a programming fault: mixing archives, touching a post
	// the archive does not know. Callers surface it, never recover from it.
	ErrUsage = errors.New("heap usage error")

	ErrPostNotFound = errors.New("post not found")
)

// UsageError describes a misuse of the heap API.
type UsageError struct {
	Op  string
	Msg string
	Err error
}

func (e *UsageError) Error() string {
	msg := e.Op + ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap lets errors.Is match both ErrUsage and the wrapped cause.
func (e *UsageError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUsage, e.Err}
	}
	return []error{ErrUsage}
}

func usageErrorf(op string, cause error, format string, args ...any) error {
	return &UsageError{Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}
