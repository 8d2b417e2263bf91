// Package fault normalizes raw failures into a fixed taxonomy with
// severity, retryability, and user-facing messaging. Every boundary that
// can fail classifies once, where the failure is first observed; the retry
// layer and the API surface branch on the resulting kind.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Kind is the failure taxonomy.
type Kind string

const (
	KindNetwork            Kind = "network"
	KindServiceUnavailable Kind = "service_unavailable"
	KindAuthentication     Kind = "authentication"
	KindValidation         Kind = "validation"
	KindRateLimit          Kind = "rate_limit"
	KindTimeout            Kind = "timeout"
	KindUnknown            Kind = "unknown"
)

// Severity ranks how serious a failure is for operators and the UI.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Context records where a failure happened. Attached once at classification
// time and carried unchanged.
type Context struct {
	Action         string
	Timestamp      time.Time
	UserID         string
	ConversationID string
	Extra          map[string]any
}

// Error is a classified failure. Immutable once created.
type Error struct {
	Kind        Kind
	Severity    Severity
	UserMessage string
	TechMessage string
	Recoverable bool
	Retryable   bool
	Context     Context
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.TechMessage, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.TechMessage)
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCarrier is implemented by errors that observed an HTTP status.
// The generation client's StatusError satisfies it.
type StatusCarrier interface {
	error
	HTTPStatus() int
}

// New builds a classified error directly, for failures that are born
// classified (input validation, for instance) rather than observed at a
// network boundary.
func New(kind Kind, fctx Context, techMessage string) *Error {
	e := template(kind)
	e.TechMessage = techMessage
	e.Context = stamp(fctx)
	return e
}

// Classify maps a raw failure to a classified error. If err is already a
// *Error it is returned as-is; classification happens exactly once.
func Classify(err error, fctx Context) *Error {
	var already *Error
	if errors.As(err, &already) {
		return already
	}

	e := classify(err)
	e.TechMessage = err.Error()
	e.Cause = err
	e.Context = stamp(fctx)
	return e
}

func classify(err error) *Error {
	// Deadline or cancellation: the call was aborted before completing.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return template(KindTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return template(KindTimeout)
	}

	// A status means the transport worked and the service answered.
	var sc StatusCarrier
	if errors.As(err, &sc) {
		return byStatus(sc.HTTPStatus())
	}

	// Transport-layer failure before any response existed.
	if errors.As(err, &netErr) {
		return template(KindNetwork)
	}

	return template(KindUnknown)
}

func byStatus(status int) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return template(KindAuthentication)
	case status == http.StatusTooManyRequests:
		return template(KindRateLimit)
	case status >= 500:
		return template(KindServiceUnavailable)
	case status >= 400:
		return template(KindValidation)
	default:
		return template(KindUnknown)
	}
}

// template returns a fresh Error carrying the canned per-kind fields.
func template(kind Kind) *Error {
	switch kind {
	case KindNetwork:
		return &Error{
			Kind: KindNetwork, Severity: SeverityHigh,
			UserMessage: "We're having trouble connecting. Please check your connection and try again.",
			Recoverable: true, Retryable: true,
		}
	case KindTimeout:
		return &Error{
			Kind: KindTimeout, Severity: SeverityMedium,
			UserMessage: "That took longer than expected. Please try again.",
			Recoverable: true, Retryable: true,
		}
	case KindAuthentication:
		return &Error{
			Kind: KindAuthentication, Severity: SeverityMedium,
			UserMessage: "Your session has expired. Please sign in again.",
			Recoverable: true, Retryable: false,
		}
	case KindRateLimit:
		return &Error{
			Kind: KindRateLimit, Severity: SeverityMedium,
			UserMessage: "You're sending messages too quickly. Please wait a moment.",
			Recoverable: true, Retryable: true,
		}
	case KindServiceUnavailable:
		return &Error{
			Kind: KindServiceUnavailable, Severity: SeverityHigh,
			UserMessage: "The assistant is temporarily unavailable. Please try again in a few minutes.",
			Recoverable: true, Retryable: true,
		}
	case KindValidation:
		return &Error{
			Kind: KindValidation, Severity: SeverityLow,
			UserMessage: "That message couldn't be processed. Please rephrase and try again.",
			Recoverable: true, Retryable: false,
		}
	default:
		// Conservative default: retry so recoverable-looking failures are
		// not silently dropped.
		return &Error{
			Kind: KindUnknown, Severity: SeverityMedium,
			UserMessage: "Something went wrong. Please try again.",
			Recoverable: true, Retryable: true,
		}
	}
}

func stamp(fctx Context) Context {
	if fctx.Timestamp.IsZero() {
		fctx.Timestamp = time.Now().UTC()
	}
	return fctx
}
