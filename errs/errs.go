// Package errs defines the discriminated error type used across the
// forensiccopy engine. No exceptions cross package boundaries; every
// fallible engine operation returns either a nil error or a *Error whose
// Kind a caller can switch on.
package errs

import "fmt"

// Kind discriminates the category of a failure. These are the seven kinds
// named for the engine's error handling design.
type Kind int

const (
	// Planning is fatal before any work begins: empty selections, an
	// unwritable destination, unresolvable paths.
	Planning Kind = iota
	// SourceAccess covers a source file that cannot be opened or stat'd.
	SourceAccess
	// DestinationWrite covers mkdir failure, short write, fsync failure,
	// disk-full, or path-too-long.
	DestinationWrite
	// HashMismatch is raised when the source and re-read destination
	// hashes disagree after write+fsync+reread. Always fatal for the run.
	HashMismatch
	// Cancelled marks a cooperative cancellation observed mid-operation.
	Cancelled
	// MoveRollback is attached to an aggregate outcome when undoing an
	// already-completed rename itself fails. Never returned on its own.
	MoveRollback
	// InternalInvariant marks a bug: e.g. a metrics counter disagreement.
	InternalInvariant
)

func (k Kind) String() string {
	switch k {
	case Planning:
		return "planning"
	case SourceAccess:
		return "source_access"
	case DestinationWrite:
		return "destination_write"
	case HashMismatch:
		return "hash_mismatch"
	case Cancelled:
		return "cancelled"
	case MoveRollback:
		return "move_rollback"
	case InternalInvariant:
		return "internal_invariant"
	default:
		return "unknown"
	}
}

// Error is the sum type every fallible engine call returns in place of an
// exception. Technical carries the log-facing detail; User carries the
// short caller-facing message. Context holds structured fields (paths,
// digests) a caller may want without parsing Technical.
type Error struct {
	Kind      Kind
	Technical string
	User      string
	Context   map[string]string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Technical, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Technical)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no underlying cause.
func New(kind Kind, technical, user string) *Error {
	return &Error{Kind: kind, Technical: technical, User: user}
}

// Wrap builds an Error around an underlying cause.
func Wrap(kind Kind, technical, user string, cause error) *Error {
	return &Error{Kind: kind, Technical: technical, User: user, Cause: cause}
}

// WithContext attaches structured key/value context and returns the
// receiver for chaining at the call site.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string, 4)
	}
	e.Context[key] = value
	return e
}

// Is allows errors.Is(err, errs.Sentinel(errs.HashMismatch)) style matching
// against a sentinel built from Kind alone.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel returns a bare *Error usable only as an errors.Is comparison
// target, e.g. errs.Sentinel(errs.HashMismatch).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}
