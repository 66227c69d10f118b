// Package dispatch implements the tool-router dispatch layer: a registry of
// routers, an invocation dispatcher, and a protocol endpoint exposing a
// single uniform invocation surface to a remote client.
//
// # Basic Usage
//
// Create a registry, register routers that implement [router.Router], then
// create an endpoint and serve a connection:
//
//	registry := dispatch.NewRegistry()
//	if err := registry.Register(developer.NewRouter(developer.DirFS("."))); err != nil {
//	    log.Fatal(err)
//	}
//	registry.Freeze()
//
//	dispatcher := dispatch.NewDispatcher(registry, sessionStore)
//
//	endpoint, err := dispatch.NewEndpoint(registry, dispatcher)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := endpoint.Serve(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
//
// # Protocol Details
//
// The endpoint frames JSON messages over any byte stream. Two methods are
// supported:
//   - list_tools: enumerate every registered tool descriptor
//   - call_tool: execute one tool, correlated by the client-supplied id
//
// Responses may complete out of request order; clients must correlate by id,
// never by arrival order.
package dispatch

import (
	"encoding/json"

	"github.com/vladimirpesic/juggler/router"
)

// Request is one decoded client frame. ID is opaque and client-supplied; it
// must be unique among the requests currently in flight on the connection.
type Request struct {
	ID        json.RawMessage `json:"id,omitzero"`
	Method    string          `json:"method"`
	Tool      string          `json:"tool,omitzero"`
	Arguments json.RawMessage `json:"arguments,omitzero"`
	Session   string          `json:"session,omitzero"`
}

// Response is one outbound frame, tagged with the originating request id.
// Exactly one of Tools, Result, or Error is set.
type Response struct {
	ID     json.RawMessage     `json:"id"`
	Tools  []router.Descriptor `json:"tools,omitzero"`
	Result json.RawMessage     `json:"result,omitzero"`
	Error  *router.Error       `json:"error,omitzero"`
}

// Supported request methods.
const (
	MethodListTools = "list_tools"
	MethodCallTool  = "call_tool"
)

func resultResponse(id, result json.RawMessage) *Response {
	return &Response{ID: id, Result: result}
}

func errorResponse(id json.RawMessage, err *router.Error) *Response {
	return &Response{ID: id, Error: err}
}

func requestID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
