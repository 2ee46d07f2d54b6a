// Package coreerr defines the core's error-kind taxonomy (§7), grounded on
// the teacher's transient/permanent classification idiom: an error carries a
// kind and a wrapped cause, and a fixed set of executor failure kinds is
// classified as transient.
package coreerr

import "fmt"

// Kind names the semantic error categories from spec.md §7.
type Kind string

const (
	ConfigInvalid    Kind = "ConfigInvalid"
	AmbiguousRouting Kind = "AmbiguousRouting"
	StorageIO        Kind = "StorageIO"
	SpawnFailed      Kind = "SpawnFailed"
	IoError          Kind = "IoError"
	IdleTimeout      Kind = "IdleTimeout"
	HardTimeout      Kind = "HardTimeout"
	NonZeroExit      Kind = "NonZeroExit"
	Cancelled        Kind = "Cancelled"
	TaskCycle        Kind = "TaskCycle"
	ParseError       Kind = "ParseError"
)

// transientKinds count toward the loop's consecutive_failures budget.
// Cancelled is deliberately excluded: user/system cancellation is
// intentional and must not look like agent failure (§5, §7).
var transientKinds = map[Kind]bool{
	SpawnFailed: true,
	IoError:     true,
	IdleTimeout: true,
	HardTimeout: true,
	NonZeroExit: true,
}

// CoreError wraps a cause with a classified Kind.
type CoreError struct {
	Kind  Kind
	Cause error
	Msg   string
}

func (e *CoreError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// New builds a CoreError of the given kind.
func New(kind Kind, msg string, cause error) *CoreError {
	return &CoreError{Kind: kind, Cause: cause, Msg: msg}
}

// IsTransient reports whether err's kind is one of the transient executor
// failure kinds. A nil error, or any error that isn't a *CoreError, is not
// transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ce *CoreError
	if !asCoreError(err, &ce) {
		return false
	}
	return transientKinds[ce.Kind]
}

// KindOf extracts the Kind of err, or "" if err is not a *CoreError.
func KindOf(err error) Kind {
	var ce *CoreError
	if !asCoreError(err, &ce) {
		return ""
	}
	return ce.Kind
}

func asCoreError(err error, target **CoreError) bool {
	for err != nil {
		if ce, ok := err.(*CoreError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
