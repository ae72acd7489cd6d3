// Package apperr implements the error taxonomy from §7 of the specification.
// Reconcilers, the bridge, and the claim server return these typed errors so
// the (out-of-scope) HTTP/REST boundary can map them to status codes without
// re-deriving what kind of failure occurred.
package apperr

import "fmt"

// Kind identifies which §7 category an error belongs to.
type Kind string

const (
	KindValidation Kind = "validation" // 400 — bad identifier, malformed field; never mutates state
	KindNotFound   Kind = "not_found"  // 404
	KindConflict   Kind = "conflict"   // 400 — rule violation, e.g. deleting a backbone with sites
	KindTxn        Kind = "transaction"
	KindProtocol   Kind = "protocol"
	KindTimeout    Kind = "timeout"
	KindBuild      Kind = "build"
	KindDeploy     Kind = "deploy"
	KindFatal      Kind = "fatal"
)

// HTTPStatus returns the status code the REST boundary should use for this
// kind. Kinds with no natural HTTP mapping (timeout, transaction, protocol,
// build, deploy, fatal) return 500 — they are surfaced to operators, not
// turned into a specific client-facing code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindConflict:
		return 400
	case KindNotFound:
		return 404
	default:
		return 500
	}
}

// Error is the typed error every reconciler, bridge, and claim-path failure
// returns. Message is always operator/caller visible; Cause may be nil.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

func Validation(msg string, args ...interface{}) *Error {
	return new_(KindValidation, fmt.Sprintf(msg, args...), nil)
}

func NotFound(msg string, args ...interface{}) *Error {
	return new_(KindNotFound, fmt.Sprintf(msg, args...), nil)
}

func Conflict(msg string, args ...interface{}) *Error {
	return new_(KindConflict, fmt.Sprintf(msg, args...), nil)
}

func Transaction(cause error) *Error {
	return new_(KindTxn, "transaction failed", cause)
}

func Protocol(msg string, args ...interface{}) *Error {
	return new_(KindProtocol, fmt.Sprintf(msg, args...), nil)
}

func Timeout(msg string, args ...interface{}) *Error {
	return new_(KindTimeout, fmt.Sprintf(msg, args...), nil)
}

func Build(cause error) *Error {
	return new_(KindBuild, "build failed", cause)
}

func Deploy(cause error) *Error {
	return new_(KindDeploy, "deploy failed", cause)
}

func Fatal(msg string, args ...interface{}) *Error {
	return new_(KindFatal, fmt.Sprintf(msg, args...), nil)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, k Kind) bool {
	ae, ok := err.(*Error)
	return ok && ae.Kind == k
}
