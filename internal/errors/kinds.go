package errors

import (
	"errors"
	"fmt"
)

// Kind identifies the category of failure a frago component raised, independent
// of which Go type carries it. Components that need to branch on failure mode
// (the retry policy, the recipe runner's output handling, run discovery)
// inspect Kind rather than doing string matching on Error().
type Kind int

const (
	KindUnknown Kind = iota

	// CDP session / transport failures (C2).
	KindConnection
	KindTimeout
	KindCDPError
	KindRetryExhausted
	KindProxyConnectionError
	KindProxyConfigError

	// Run store failures (C5/C6).
	KindRunNotFound
	KindInvalidRunID
	KindContextNotSet
	KindContextAlreadySet
	KindCorruptedLog
	KindFileSystem

	// Recipe registry/runner failures (C9/C10).
	KindRecipeNotFound
	KindRecipeValidationError
	KindRecipeExecutionError
	KindMetadataParseError

	// DOM/element lookups within a CDP session (C2/C4).
	KindElementNotFound

	// Tab manager failures (C3).
	KindTabNotFound

	// Env loader failures (C8).
	KindMissingEnvVar

	// Output handler failures (C11).
	KindOutputTargetError
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "Connection"
	case KindTimeout:
		return "Timeout"
	case KindCDPError:
		return "CDPError"
	case KindRetryExhausted:
		return "RetryExhausted"
	case KindProxyConnectionError:
		return "ProxyConnectionError"
	case KindProxyConfigError:
		return "ProxyConfigError"
	case KindRunNotFound:
		return "RunNotFound"
	case KindInvalidRunID:
		return "InvalidRunID"
	case KindContextNotSet:
		return "ContextNotSet"
	case KindContextAlreadySet:
		return "ContextAlreadySet"
	case KindCorruptedLog:
		return "CorruptedLog"
	case KindFileSystem:
		return "FileSystem"
	case KindRecipeNotFound:
		return "RecipeNotFound"
	case KindRecipeValidationError:
		return "RecipeValidationError"
	case KindRecipeExecutionError:
		return "RecipeExecutionError"
	case KindMetadataParseError:
		return "MetadataParseError"
	case KindElementNotFound:
		return "ElementNotFound"
	case KindTabNotFound:
		return "TabNotFound"
	case KindMissingEnvVar:
		return "MissingEnvVar"
	case KindOutputTargetError:
		return "OutputTargetError"
	default:
		return "Unknown"
	}
}

// Error is the concrete error value every frago component raises for a
// classified failure. Op names the operation that failed (e.g.
// "cdp.Session.Connect", "runstore.Activate"); Err is the wrapped cause, if
// any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified Error. Op should read like a call stack entry.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is (or wraps) a frago Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, or KindUnknown if err isn't a frago Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// defaultRetryableKinds lists the Kind values IsRetryableKind treats as
// transient. RetryPolicy does not consult it on its own: a policy with a nil
// RetryableException retries every error.
var defaultRetryableKinds = map[Kind]bool{
	KindConnection:           true,
	KindTimeout:              true,
	KindProxyConnectionError: true,
}

// IsRetryableKind reports whether err carries a Kind this package considers
// transient by default. Errors without a frago Kind fall back to the legacy
// network/syscall/HTTP-status heuristics in IsTransient.
func IsRetryableKind(err error) bool {
	if e := KindOf(err); e != KindUnknown {
		return defaultRetryableKinds[e]
	}
	return IsTransient(err)
}

// IsConnectionFailure reports whether err is a connection-class failure:
// the set the "connection" and "proxy-connection" retry profiles restrict
// themselves to.
func IsConnectionFailure(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindProxyConnectionError, KindTimeout:
		return true
	}
	return isNetworkError(err)
}

// IsProxyFailure reports whether err originated from proxy dialing or
// configuration; the "proxy-connection" profile retries these together with
// IsConnectionFailure's set.
func IsProxyFailure(err error) bool {
	switch KindOf(err) {
	case KindProxyConnectionError, KindProxyConfigError:
		return true
	}
	return false
}
