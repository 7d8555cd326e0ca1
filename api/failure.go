package api

import (
	"errors"
	"fmt"
)

// FailureKind classifies every error the server surfaces to callers.
// The set is closed; anything that does not map onto one of these kinds
// is translated to the internal fallback code on the wire.
type FailureKind string

const (
	// KindDecodeError marks an encrypted credential token that is
	// structurally invalid or fails authentication under the current key.
	KindDecodeError FailureKind = "decode_error"
	// KindNoCredentialsFound marks a call for which no credential source
	// at any tier yielded material.
	KindNoCredentialsFound FailureKind = "no_credentials_found"
	// KindInvalidCredentials marks a credential source that was present
	// but malformed at its own tier. Resolution never falls through past it.
	KindInvalidCredentials FailureKind = "invalid_credentials"
	// KindConnectionError marks well-formed credentials that the backend
	// rejected, or a backend that was unreachable.
	KindConnectionError FailureKind = "connection_error"
	// KindUnknownMethod marks an operation name absent from the registry.
	KindUnknownMethod FailureKind = "unknown_method"
	// KindInvalidArguments marks a violation of an operation's declared
	// argument shape.
	KindInvalidArguments FailureKind = "invalid_arguments"
	// KindOperationFailure marks a backend operation that failed after a
	// valid connection was established.
	KindOperationFailure FailureKind = "operation_failure"
	// KindProtocolError marks a malformed inbound envelope.
	KindProtocolError FailureKind = "protocol_error"
)

// JSON-RPC wire codes. The -32000 range carries the credential and
// backend kinds; the reserved JSON-RPC codes cover envelope and
// dispatch failures.
const (
	CodeParseError     = -32700
	CodeProtocolError  = -32600
	CodeUnknownMethod  = -32601
	CodeInvalidArgs    = -32602
	CodeInternal       = -32603
	CodeNoCredentials  = -32001
	CodeInvalidCreds   = -32002
	CodeDecodeError    = -32003
	CodeConnection     = -32004
	CodeOperationError = -32005
)

// WireCode maps a failure kind onto its JSON-RPC error code.
func (k FailureKind) WireCode() int {
	switch k {
	case KindProtocolError:
		return CodeProtocolError
	case KindUnknownMethod:
		return CodeUnknownMethod
	case KindInvalidArguments:
		return CodeInvalidArgs
	case KindNoCredentialsFound:
		return CodeNoCredentials
	case KindInvalidCredentials:
		return CodeInvalidCreds
	case KindDecodeError:
		return CodeDecodeError
	case KindConnectionError:
		return CodeConnection
	case KindOperationFailure:
		return CodeOperationError
	default:
		return CodeInternal
	}
}

// Failure is a classified error. Message is safe to put on the wire;
// credential material never appears in it. Detail optionally carries
// extra diagnostic context, redacted under the same rule.
type Failure struct {
	Kind    FailureKind
	Message string
	Detail  string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Message, f.Detail)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// WireError renders the failure as a JSON-RPC error object.
func (f *Failure) WireError() *Error {
	e := &Error{Code: f.Kind.WireCode(), Message: f.Message}
	if f.Detail != "" {
		e.Data = map[string]string{"detail": f.Detail}
	}
	return e
}

// Failf constructs a Failure with a formatted message.
func Failf(kind FailureKind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FailureFrom extracts the classified failure from err, walking the wrap
// chain. Unclassified errors become an OperationFailure carrying the
// error text, the last-resort translation for unanticipated backend
// faults.
func FailureFrom(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: KindOperationFailure, Message: err.Error()}
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind FailureKind) bool {
	var f *Failure
	if !errors.As(err, &f) {
		return false
	}
	return f.Kind == kind
}
