package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies synthesis failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindConfiguration
	KindSubmissionRejected
	KindProtocol
	KindProviderFailed
	KindTransport
	KindTimedOut
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindInvalidInput:       "invalid_input",
	KindConfiguration:      "configuration_error",
	KindSubmissionRejected: "submission_rejected",
	KindProtocol:           "protocol_error",
	KindProviderFailed:     "provider_failed",
	KindTransport:          "transport_error",
	KindTimedOut:           "timed_out",
	KindCanceled:           "canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Operation names used in Error.Op.
const (
	OpValidate = "validate"
	OpSubmit   = "submit"
	OpPoll     = "poll"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrConfiguration      = &Error{Kind: KindConfiguration}
	ErrSubmissionRejected = &Error{Kind: KindSubmissionRejected}
	ErrProtocol           = &Error{Kind: KindProtocol}
	ErrProviderFailed     = &Error{Kind: KindProviderFailed}
	ErrTransport          = &Error{Kind: KindTransport}
	ErrTimedOut           = &Error{Kind: KindTimedOut}
	ErrCanceled           = &Error{Kind: KindCanceled}
)

// Error is the only error type returned by Synthesize.
type Error struct {
	Kind     Kind
	Op       string
	Provider string
	Handle   Handle

	// StatusCode and Body are set when the provider answered with an HTTP-level failure.
	StatusCode int
	Body       string

	// Detail is a human readable explanation, e.g. the provider's error description.
	Detail string

	// Attempt is 1-indexed and only set for polling failures.
	Attempt     int
	MaxAttempts int

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" during ")
		b.WriteString(e.Op)
	}
	if e.Provider != "" {
		fmt.Fprintf(&b, " (%s)", e.Provider)
	}
	if e.Handle != "" {
		fmt.Fprintf(&b, " job %s", e.Handle)
	}
	if e.Attempt > 0 {
		fmt.Fprintf(&b, " at attempt %d of %d", e.Attempt, e.MaxAttempts)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindUnknown when err is not a synthesis error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Rejected builds a SubmissionRejected error from an HTTP response.
func Rejected(statusCode int, body string) *Error {
	return &Error{Kind: KindSubmissionRejected, StatusCode: statusCode, Body: body}
}

// Protocol builds a ProtocolError for a 2xx response carrying an unusable body.
func Protocol(detail string) *Error {
	return &Error{Kind: KindProtocol, Detail: detail}
}

// Transport wraps a network-level failure.
func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// Configuration reports a missing credential or endpoint.
func Configuration(detail string) *Error {
	return &Error{Kind: KindConfiguration, Detail: detail}
}

// classify turns whatever an adapter returned into a *Error for op.
// Unclassified errors are transport failures unless ctx was cancelled.
func classify(ctx context.Context, err error, op, provider string) *Error {
	var e *Error
	if errors.As(err, &e) && !(e.Kind == KindTransport && ctx.Err() != nil) {
		out := *e
		if out.Op == "" {
			out.Op = op
		}
		if out.Provider == "" {
			out.Provider = provider
		}
		return &out
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, Op: op, Provider: provider, Err: err}
	}

	return &Error{Kind: KindTransport, Op: op, Provider: provider, Err: err}
}
