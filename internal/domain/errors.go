package domain

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// ErrorKind classifies evaluator failures.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindEmptyInput  ErrorKind = "empty_input"
	KindUnavailable ErrorKind = "unavailable"
	KindTimeout     ErrorKind = "timeout"
	KindUpstream    ErrorKind = "upstream"
	KindParse       ErrorKind = "parse"
	KindInternal    ErrorKind = "internal"
)

// EvalError is the single failure type returned by every evaluator.
type EvalError struct {
	Kind    ErrorKind
	Message string
	Details []string
	Err     error
}

// NewEvalError builds an EvalError.
func NewEvalError(kind ErrorKind, msg string, cause error, details ...string) *EvalError {
	return &EvalError{Kind: kind, Message: msg, Details: details, Err: cause}
}

func (e *EvalError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *EvalError) Unwrap() error { return e.Err }

// Is maps kinds onto the sentinel taxonomy so callers can use errors.Is.
func (e *EvalError) Is(target error) bool {
	switch e.Kind {
	case KindValidation, KindEmptyInput:
		return target == ErrInvalidArgument
	case KindUnavailable:
		return target == ErrUpstreamUnavailable
	case KindTimeout:
		return target == ErrUpstreamTimeout
	case KindParse:
		return target == ErrSchemaInvalid
	case KindUpstream:
		return target == ErrUpstream
	case KindInternal:
		return target == ErrInternal
	}
	return false
}

// Outcome renders the failure for the audit record.
func (e *EvalError) Outcome() map[string]any {
	out := map[string]any{"success": false, "error": e.Message, "kind": string(e.Kind)}
	if len(e.Details) > 0 {
		out["details"] = e.Details
	}
	return out
}

// KindOf returns the kind of err: the EvalError kind when present, otherwise the
// transport classification, otherwise KindInternal. It returns "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	if k := ClassifyTransportError(err); k != "" {
		return k
	}
	if errors.Is(err, ErrUpstream) {
		return KindUpstream
	}
	return KindInternal
}

// ClassifyTransportError inspects typed network errors. It returns KindUnavailable for
// refused or reset connections, DNS failures and dropped sockets, KindTimeout for
// deadlines, and "" when err is not a transport failure.
func ClassifyTransportError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ee *EvalError
	if errors.As(err, &ee) && (ee.Kind == KindUnavailable || ee.Kind == KindTimeout) {
		return ee.Kind
	}
	// adapter errors that already classified themselves
	if errors.Is(err, ErrUpstreamUnavailable) {
		return KindUnavailable
	}
	if errors.Is(err, ErrUpstreamTimeout) {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindUnavailable
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return KindUnavailable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindUnavailable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && errors.Is(urlErr.Err, io.EOF) {
		return KindUnavailable
	}
	return ""
}

// IsConnectionError reports whether err is a terminal infrastructure failure.
func IsConnectionError(err error) bool {
	k := ClassifyTransportError(err)
	return k == KindUnavailable || k == KindTimeout
}

// JSONParseFailed is the error value of the sentinel object GenerateJSON returns
// when the model output could not be parsed.
const JSONParseFailed = "JSON Parse Failed"

// NewParseSentinel builds the degraded object for unparseable model output.
func NewParseSentinel(raw string) map[string]any {
	return map[string]any{"raw_output": raw, "error": JSONParseFailed}
}

// IsParseSentinel reports whether obj is the degraded GenerateJSON result.
func IsParseSentinel(obj map[string]any) bool {
	if obj == nil {
		return true
	}
	msg, ok := obj["error"].(string)
	return ok && msg == JSONParseFailed
}
