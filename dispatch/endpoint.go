package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vladimirpesic/juggler/internal/logging"
	"github.com/vladimirpesic/juggler/router"
)

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// WithEndpointLogger overrides the endpoint's logger.
func WithEndpointLogger(logger *slog.Logger) EndpointOption {
	return func(e *Endpoint) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDefaultSession overrides the session id used for requests that do not
// name one. By default each endpoint gets a fresh random id, scoping
// stateful routers to the connection.
func WithDefaultSession(sessionID string) EndpointOption {
	return func(e *Endpoint) {
		if sessionID != "" {
			e.sessionID = sessionID
		}
	}
}

// Endpoint is the transport-agnostic request/response framer above the
// dispatcher. It decodes frames from one logical connection, dispatches each
// accepted call_tool request as an independently scheduled task, and encodes
// results correlated by request id. It never interprets payload contents.
//
// One Endpoint serves one connection; create a new one per connection.
type Endpoint struct {
	registry   *Registry
	dispatcher *Dispatcher
	logger     *slog.Logger
	sessionID  string
}

// NewEndpoint creates an endpoint over a registry and dispatcher.
func NewEndpoint(registry *Registry, dispatcher *Dispatcher, opts ...EndpointOption) (*Endpoint, error) {
	if registry == nil {
		return nil, fmt.Errorf("new endpoint: registry is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("new endpoint: dispatcher is required")
	}

	e := &Endpoint{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logging.Logger(),
		sessionID:  uuid.NewString(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Serve reads frames from in until EOF, ctx cancellation, or an unrecoverable
// transport failure. Frames are read sequentially but call_tool requests run
// concurrently: a slow router never blocks decoding of subsequent requests,
// and responses are emitted as they complete, possibly out of request order.
// Every accepted request produces exactly one response.
func (e *Endpoint) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if e == nil {
		return fmt.Errorf("serve: endpoint is nil")
	}
	if in == nil {
		return fmt.Errorf("serve: input reader is nil")
	}
	if out == nil {
		return fmt.Errorf("serve: output writer is nil")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	responses := make(chan *Response)

	// Single writer goroutine: concurrent dispatches funnel through it so
	// frames never interleave on the wire. After a write failure it keeps
	// draining so in-flight dispatches can still complete.
	writerDone := make(chan error, 1)
	go func() {
		encoder := json.NewEncoder(out)
		var writeErr error
		for resp := range responses {
			if writeErr != nil {
				continue
			}
			if err := encoder.Encode(resp); err != nil {
				writeErr = fmt.Errorf("writing response: %w", err)
				cancel()
			}
		}
		writerDone <- writeErr
	}()

	var (
		group    errgroup.Group
		mu       sync.Mutex
		inFlight = make(map[string]struct{})
	)

	decoder := json.NewDecoder(in)
	var readErr error

readLoop:
	for {
		select {
		case <-ctx.Done():
			readErr = fmt.Errorf("serve: %w", ctx.Err())
			break readLoop
		default:
		}

		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				break readLoop
			}
			// A framing failure is unrecoverable: report it and stop
			// accepting, but let in-flight work drain.
			responses <- errorResponse(json.RawMessage("null"),
				router.Errorf(router.KindTransport, "frame decode failed: %v", err))
			readErr = fmt.Errorf("serve: decode failed: %w", err)
			break readLoop
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			responses <- errorResponse(json.RawMessage("null"),
				router.Errorf(router.KindTransport, "invalid request: %v", err))
			continue
		}

		switch req.Method {
		case MethodListTools:
			// Answered straight from the registry, off the per-call path.
			responses <- &Response{ID: requestID(req.ID), Tools: e.registry.Descriptors()}

		case MethodCallTool:
			id := requestID(req.ID)
			key := string(id)

			mu.Lock()
			if _, dup := inFlight[key]; dup {
				mu.Unlock()
				responses <- errorResponse(id,
					router.Errorf(router.KindTransport, "request id %s is already in flight", key))
				continue
			}
			inFlight[key] = struct{}{}
			mu.Unlock()

			req := req
			group.Go(func() error {
				payload, callErr := e.dispatcher.Dispatch(ctx, e.sessionFor(req), req.Tool, req.Arguments)

				resp := resultResponse(id, payload)
				if callErr != nil {
					resp = errorResponse(id, callErr)
				}
				responses <- resp

				mu.Lock()
				delete(inFlight, key)
				mu.Unlock()
				return nil
			})

		default:
			responses <- errorResponse(requestID(req.ID),
				router.Errorf(router.KindTransport, "unknown method %q", req.Method))
		}
	}

	// Drain in-flight dispatches, then release the writer.
	_ = group.Wait()
	close(responses)
	writeErr := <-writerDone

	if readErr != nil {
		return readErr
	}
	if writeErr != nil {
		return fmt.Errorf("serve: %w", writeErr)
	}
	return nil
}

// sessionFor picks the session id scoping a request's stateful work.
func (e *Endpoint) sessionFor(req Request) string {
	if req.Session != "" {
		return req.Session
	}
	return e.sessionID
}
