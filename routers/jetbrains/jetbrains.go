// Package jetbrains bridges tool calls to a JetBrains IDE plugin over a
// TCP socket. The plugin speaks newline-delimited JSON: one request line
// out, one response line back.
package jetbrains

import (
	"bufio"
	"context"
	"encoding/json"
	"net"

	"github.com/vladimirpesic/juggler/router"
	"github.com/vladimirpesic/juggler/schema"
)

const routerID = "jetbrains"

// DefaultAddr is where the IDE plugin listens by default.
const DefaultAddr = "127.0.0.1:8090"

// maxResponseLine guards against a runaway plugin response.
const maxResponseLine = 16 << 20

// Router forwards tool calls to the IDE bridge at addr. Each call opens
// a fresh connection, so a restarted IDE needs no reconnect handling.
type Router struct {
	addr   string
	dialer net.Dialer
}

// NewRouter creates a jetbrains router talking to the bridge at addr.
// An empty addr selects DefaultAddr.
func NewRouter(addr string) *Router {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Router{addr: addr}
}

// ID implements router.Router.
func (r *Router) ID() string { return routerID }

// Stateful implements router.Router. State lives in the IDE, not here.
func (r *Router) Stateful() bool { return false }

// Tools implements router.Router.
func (r *Router) Tools() []router.Descriptor {
	pathSchema := &schema.JSON{
		Type: schema.Object,
		Properties: map[string]*schema.JSON{
			"path": {Type: schema.String, Description: "Project-relative file path"},
		},
		Required: []string{"path"},
	}
	return []router.Descriptor{
		{
			Name:        "list_open_files",
			Description: "List the files currently open in the IDE editor",
			InputSchema: &schema.JSON{Type: schema.Object},
		},
		{
			Name:        "get_file_text",
			Description: "Get the current editor text of a file, unsaved changes included",
			InputSchema: pathSchema,
		},
		{
			Name:        "open_file",
			Description: "Open a file in the IDE editor",
			InputSchema: pathSchema,
		},
	}
}

// bridgeRequest is one line sent to the plugin.
type bridgeRequest struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// bridgeResponse is one line read back.
type bridgeResponse struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Invoke implements router.Router.
func (r *Router) Invoke(ctx context.Context, call router.Call) (json.RawMessage, error) {
	switch call.Tool {
	case "list_open_files", "get_file_text", "open_file":
		return r.roundTrip(ctx, bridgeRequest{Command: call.Tool, Params: call.Arguments})
	default:
		return nil, router.NotOwned(routerID, call.Tool)
	}
}

func (r *Router) roundTrip(ctx context.Context, req bridgeRequest) (json.RawMessage, error) {
	conn, err := r.dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return nil, router.Internalf("connect to IDE at %s: %v", r.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, router.Internalf("set deadline: %v", err)
		}
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, router.Internalf("encode bridge request: %v", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return nil, router.Internalf("write to IDE: %v", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseLine)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, router.Internalf("read from IDE: %v", err)
		}
		return nil, router.Internalf("IDE closed the connection without responding")
	}

	var resp bridgeResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, router.Internalf("decode bridge response: %v", err)
	}
	if !resp.OK {
		if resp.Error == "" {
			resp.Error = "unknown IDE error"
		}
		return nil, router.Internalf("IDE: %s", resp.Error)
	}
	if len(resp.Data) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return resp.Data, nil
}
