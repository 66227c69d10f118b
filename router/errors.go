package router

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed invocation for the client. The values are the
// wire-visible error kinds.
type Kind string

const (
	// KindUnknownTool means no router owns the requested tool name.
	KindUnknownTool Kind = "UnknownTool"
	// KindInvalidArguments means the arguments violated the tool's input schema.
	KindInvalidArguments Kind = "InvalidArguments"
	// KindTimeout means the router exceeded its invocation deadline.
	KindTimeout Kind = "Timeout"
	// KindRouterInternal means the router reported a failure, or its output
	// violated the tool's output schema.
	KindRouterInternal Kind = "RouterInternalError"
	// KindTransport means the frame could not be decoded at the endpoint.
	// It never originates from the dispatcher.
	KindTransport Kind = "TransportError"
)

// Error is a classified invocation failure. It is the only error shape that
// crosses the dispatch boundary to the client.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitzero"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf builds an Error of an arbitrary kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Internalf builds a RouterInternalError.
func Internalf(format string, args ...any) *Error {
	return Errorf(KindRouterInternal, format, args...)
}

// InvalidArgsf builds an InvalidArguments error.
func InvalidArgsf(format string, args ...any) *Error {
	return Errorf(KindInvalidArguments, format, args...)
}

// WithDetail attaches structured detail and returns e for chaining.
func (e *Error) WithDetail(detail any) *Error {
	e.Detail = detail
	return e
}

// Translate maps any error returned by a router into an *Error for the
// client. Already-classified errors pass through; context cancellation and
// deadline expiry become Timeout; everything else becomes a router internal
// error so raw backend failures never leak untranslated.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Errorf(KindTimeout, "invocation aborted: %v", err)
	}
	return Internalf("%v", err)
}
