package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/vladimirpesic/juggler/router"
	"github.com/vladimirpesic/juggler/schema"
)

func boolPtr(b bool) *bool {
	return &b
}

func echoDescriptor(name string) router.Descriptor {
	return router.Descriptor{
		Name:        name,
		Description: "echoes the text it is given",
		InputSchema: &schema.JSON{
			Type: schema.Object,
			Properties: map[string]*schema.JSON{
				"text": {Type: schema.String},
			},
			Required:             []string{"text"},
			AdditionalProperties: boolPtr(false),
		},
		OutputSchema: &schema.JSON{
			Type: schema.Object,
			Properties: map[string]*schema.JSON{
				"text": {Type: schema.String},
			},
		},
	}
}

// stubRouter is a configurable single-or-multi-tool router with a call
// counter, used to observe whether the dispatcher invoked it.
type stubRouter struct {
	id       string
	tools    []router.Descriptor
	stateful bool
	invoke   func(ctx context.Context, call router.Call) (json.RawMessage, error)
	calls    atomic.Int64
}

func (s *stubRouter) ID() string                 { return s.id }
func (s *stubRouter) Tools() []router.Descriptor { return s.tools }
func (s *stubRouter) Stateful() bool             { return s.stateful }

func (s *stubRouter) Invoke(ctx context.Context, call router.Call) (json.RawMessage, error) {
	s.calls.Add(1)
	if s.invoke == nil {
		return json.RawMessage(`{}`), nil
	}
	return s.invoke(ctx, call)
}

var _ router.Router = (*stubRouter)(nil)

// newEchoRouter returns a stateless router owning one tool that echoes its
// "text" argument.
func newEchoRouter(tool string) *stubRouter {
	return &stubRouter{
		id:    "echo",
		tools: []router.Descriptor{echoDescriptor(tool)},
		invoke: func(_ context.Context, call router.Call) (json.RawMessage, error) {
			var args struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				return nil, err
			}
			return json.RawMessage(fmt.Sprintf(`{"text":%q}`, args.Text)), nil
		},
	}
}

// newBlockedRouter returns a router whose invocations park until gate is
// closed, or until ctx is canceled.
func newBlockedRouter(id, tool string, gate <-chan struct{}) *stubRouter {
	return &stubRouter{
		id:    id,
		tools: []router.Descriptor{echoDescriptor(tool)},
		invoke: func(ctx context.Context, _ router.Call) (json.RawMessage, error) {
			select {
			case <-gate:
				return json.RawMessage(`{"text":"unblocked"}`), nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

// factsRouter is a minimal stateful router storing one fact per key through
// the session it is handed.
type factsRouter struct {
	stubRouter
}

func newFactsRouter() *factsRouter {
	r := &factsRouter{}
	r.id = "facts"
	r.stateful = true
	r.tools = []router.Descriptor{
		{
			Name: "set_fact",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"key":   {Type: schema.String},
					"value": {Type: schema.String},
				},
				Required: []string{"key", "value"},
			},
		},
		{
			Name: "get_fact",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"key": {Type: schema.String},
				},
				Required: []string{"key"},
			},
		},
	}
	r.invoke = func(_ context.Context, call router.Call) (json.RawMessage, error) {
		var args struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, err
		}

		switch call.Tool {
		case "set_fact":
			if err := call.Session.Set(args.Key, args.Value); err != nil {
				return nil, err
			}
			return json.RawMessage(`{"saved":true}`), nil
		case "get_fact":
			value, found, err := call.Session.Get(args.Key)
			if err != nil {
				return nil, err
			}
			return json.RawMessage(fmt.Sprintf(`{"found":%t,"value":%q}`, found, value)), nil
		default:
			return nil, router.NotOwned(r.id, call.Tool)
		}
	}
	return r
}
