// Package apperr defines the error taxonomy shared by every layer of the
// documentation pipeline. Adapters and infrastructure clients raise typed
// errors from here; the orchestrator maps collaborator failures onto this
// taxonomy and attaches request context; the tool facade serializes the
// result to its response surface.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the seven error kinds the core recognizes. Every error
// that crosses a component boundary belongs to exactly one kind.
type Kind string

const (
	InvalidParameter Kind = "invalid_parameter"
	PackageUnknown   Kind = "package_unknown"
	NotFound         Kind = "not_found"
	Transient        Kind = "transient"
	Timeout          Kind = "timeout"
	BackendError     Kind = "backend_error"
	Internal         Kind = "internal"
)

// retriable reports whether a bare Kind is retriable in the absence of
// more specific information (BackendError overrides this per-instance,
// since it is retriable only on 5xx).
func (k Kind) retriable() bool {
	switch k {
	case Transient, Timeout:
		return true
	default:
		return false
	}
}

// Error is the typed error value propagated across the core. It carries
// enough context for C7 to attach {language, package, version} and for C9
// to serialize {kind, message, retriable} without re-deriving anything.
type Error struct {
	Kind      Kind
	Message   string
	Retriable bool

	// Status and Body are set by BackendError; Body is truncated by the
	// caller before being attached here.
	Status int
	Body   string

	Context map[string]string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithContext returns a copy of e with the given key merged into Context.
// Used by the orchestrator to attach {language, package, version?} as
// errors propagate upward.
func (e *Error) WithContext(key, value string) *Error {
	cp := *e
	ctx := make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	cp.Context = ctx
	return &cp
}

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Retriable: kind.retriable(), cause: cause}
}

func New(kind Kind, msg string) *Error              { return newErr(kind, msg, nil) }
func Wrap(kind Kind, msg string, cause error) *Error { return newErr(kind, msg, cause) }

func NewInvalidParameter(msg string) *Error { return New(InvalidParameter, msg) }
func NewPackageUnknown(msg string) *Error   { return New(PackageUnknown, msg) }
func NewNotFound(msg string) *Error         { return New(NotFound, msg) }
func NewTimeout(msg string) *Error          { return New(Timeout, msg) }

func NewTransient(msg string, cause error) *Error {
	return Wrap(Transient, msg, cause)
}

func NewInternal(msg string, cause error) *Error {
	return Wrap(Internal, msg, cause)
}

// NewBackendError builds a BackendError with the response status and a
// body fragment; it is retriable only for 5xx status codes per §7.
func NewBackendError(status int, bodyFragment string, cause error) *Error {
	e := newErr(BackendError, fmt.Sprintf("backend rejected request (status %d)", status), cause)
	e.Status = status
	e.Body = bodyFragment
	e.Retriable = status >= 500
	return e
}

// Of extracts the apperr.Error from err, if any is present in its chain.
func Of(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and Internal otherwise — callers mapping an unknown error into
// the taxonomy should treat Internal as the safe default.
func KindOf(err error) Kind {
	if e, ok := Of(err); ok {
		return e.Kind
	}
	return Internal
}
