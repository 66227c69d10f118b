package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/vladimirpesic/juggler/internal/logging"
	"github.com/vladimirpesic/juggler/router"
	"github.com/vladimirpesic/juggler/schema"
	"github.com/vladimirpesic/juggler/session"
)

// DefaultCallTimeout bounds a single router invocation unless overridden
// with WithCallTimeout.
const DefaultCallTimeout = 30 * time.Second

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCallTimeout overrides the per-call invocation deadline.
func WithCallTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger overrides the logger dispatch decisions are reported to.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher resolves tool names to routers and enforces validation,
// timeout, and error mapping around every invocation. It holds no mutable
// state of its own and is safe for concurrent use once the registry is
// frozen.
type Dispatcher struct {
	registry *Registry
	sessions session.Store
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over a registry. sessions may be nil if
// no registered router is stateful.
func NewDispatcher(registry *Registry, sessions session.Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		sessions: sessions,
		timeout:  DefaultCallTimeout,
		logger:   logging.Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// invokeOutcome carries a router's result across the timeout boundary.
type invokeOutcome struct {
	payload json.RawMessage
	err     error
}

// Dispatch runs the full pipeline for one invocation: resolve, validate
// input, bind session, invoke under deadline, map errors, validate output.
// It always returns exactly one of a payload or a classified error, never
// both and never neither.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, tool string, arguments json.RawMessage) (json.RawMessage, *router.Error) {
	start := time.Now()

	rt, descriptor, ok := d.registry.Resolve(tool)
	if !ok {
		d.logEvent(tool, "", "rejected", start, "no router owns tool")
		return nil, router.Errorf(router.KindUnknownTool, "no router owns tool %q", tool)
	}

	arguments = normalizeArguments(arguments)
	if err := schema.ValidateRaw(descriptor.InputSchema, arguments); err != nil {
		d.logEvent(tool, rt.ID(), "rejected", start, err.Error())
		callErr := router.InvalidArgsf("arguments for %q: %v", tool, err)
		var verr *schema.ValidationError
		if errors.As(err, &verr) && verr.Path != "" {
			callErr.WithDetail(map[string]string{"field": verr.Path})
		}
		return nil, callErr
	}

	call := router.Call{Tool: tool, Arguments: arguments}
	if rt.Stateful() {
		if d.sessions == nil {
			d.logEvent(tool, rt.ID(), "rejected", start, "no session store configured")
			return nil, router.Internalf("router %s is stateful but no session store is configured", rt.ID())
		}
		call.Session = session.NewSession(sessionID, d.sessions)
	}

	payload, callErr := d.invoke(ctx, rt, call)
	if callErr != nil {
		outcome := "failed"
		if callErr.Kind == router.KindTimeout {
			outcome = "timeout"
		}
		d.logEvent(tool, rt.ID(), outcome, start, callErr.Message)
		return nil, callErr
	}

	// An output schema violation is a server-side defect, never forwarded
	// as if it were a success.
	if err := schema.ValidateRaw(descriptor.OutputSchema, payload); err != nil {
		d.logEvent(tool, rt.ID(), "failed", start, err.Error())
		return nil, router.Internalf("tool %q produced invalid output: %v", tool, err)
	}

	d.logEvent(tool, rt.ID(), "resolved", start, "")
	return payload, nil
}

// invoke runs the router under the per-call deadline. On expiry the
// cancellation signal propagates into the running invocation and the late
// completion, if any, is discarded: the buffered channel lets the invoking
// goroutine finish without a receiver, so no second result is ever produced
// for an answered request.
func (d *Dispatcher) invoke(ctx context.Context, rt router.Router, call router.Call) (json.RawMessage, *router.Error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan invokeOutcome, 1)
	go func() {
		// Recover from panics in router execution to prevent server crash.
		defer func() {
			if r := recover(); r != nil {
				done <- invokeOutcome{err: router.Internalf("router panic: %v", r)}
			}
		}()
		payload, err := rt.Invoke(ctx, call)
		done <- invokeOutcome{payload: payload, err: err}
	}()

	select {
	case outcome := <-done:
		if outcome.err != nil {
			return nil, router.Translate(outcome.err)
		}
		if len(outcome.payload) == 0 {
			return nil, router.Internalf("tool %q returned no payload", call.Tool)
		}
		return outcome.payload, nil
	case <-ctx.Done():
		return nil, router.Errorf(router.KindTimeout, "tool %q did not complete within %s", call.Tool, d.timeout)
	}
}

func (d *Dispatcher) logEvent(tool, routerID, outcome string, start time.Time, detail string) {
	attrs := []any{
		"tool", tool,
		"outcome", outcome,
		"elapsed", time.Since(start),
	}
	if routerID != "" {
		attrs = append(attrs, "router", routerID)
	}
	if detail != "" {
		attrs = append(attrs, "detail", detail)
	}
	d.logger.Info("dispatch", attrs...)
}

func normalizeArguments(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return []byte("{}")
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return []byte("{}")
	}
	return trimmed
}
