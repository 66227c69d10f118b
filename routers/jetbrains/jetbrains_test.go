package jetbrains

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimirpesic/juggler/router"
)

// fakeBridge runs an in-process IDE plugin that answers one request per
// connection using handler.
func fakeBridge(t *testing.T, handler func(req bridgeRequest) bridgeResponse) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				if !scanner.Scan() {
					return
				}
				var req bridgeRequest
				if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
					return
				}
				resp, err := json.Marshal(handler(req))
				if err != nil {
					return
				}
				_, _ = conn.Write(append(resp, '\n'))
			}(conn)
		}
	}()

	return listener.Addr().String()
}

func invoke(t *testing.T, r *Router, tool, arguments string) (json.RawMessage, error) {
	t.Helper()
	return r.Invoke(context.Background(), router.Call{
		Tool:      tool,
		Arguments: json.RawMessage(arguments),
	})
}

func TestRouterIdentity(t *testing.T) {
	r := NewRouter("")
	assert.Equal(t, "jetbrains", r.ID())
	assert.False(t, r.Stateful())
	require.Len(t, r.Tools(), 3)
}

func TestListOpenFiles(t *testing.T) {
	addr := fakeBridge(t, func(req bridgeRequest) bridgeResponse {
		if req.Command != "list_open_files" {
			return bridgeResponse{Error: "unexpected command " + req.Command}
		}
		return bridgeResponse{OK: true, Data: json.RawMessage(`{"files":["main.go","go.mod"]}`)}
	})

	r := NewRouter(addr)

	payload, err := invoke(t, r, "list_open_files", `{}`)
	require.NoError(t, err)

	var result struct {
		Files []string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.Equal(t, []string{"main.go", "go.mod"}, result.Files)
}

func TestGetFileTextForwardsParams(t *testing.T) {
	addr := fakeBridge(t, func(req bridgeRequest) bridgeResponse {
		var params struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return bridgeResponse{Error: err.Error()}
		}
		if params.Path != "src/app.go" {
			return bridgeResponse{Error: "wrong path " + params.Path}
		}
		return bridgeResponse{OK: true, Data: json.RawMessage(`{"text":"package app"}`)}
	})

	r := NewRouter(addr)

	payload, err := invoke(t, r, "get_file_text", `{"path":"src/app.go"}`)
	require.NoError(t, err)

	var result struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.Equal(t, "package app", result.Text)
}

func TestBridgeError(t *testing.T) {
	addr := fakeBridge(t, func(req bridgeRequest) bridgeResponse {
		return bridgeResponse{Error: "no such file"}
	})

	r := NewRouter(addr)

	_, err := invoke(t, r, "open_file", `{"path":"gone.go"}`)
	require.Error(t, err)

	var routerErr *router.Error
	require.True(t, errors.As(err, &routerErr))
	assert.Equal(t, router.KindRouterInternal, routerErr.Kind)
	assert.Contains(t, routerErr.Message, "no such file")
}

func TestIDEUnreachable(t *testing.T) {
	// a listener that is immediately closed gives us a free port with
	// nothing listening on it
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	r := NewRouter(addr)

	_, err = invoke(t, r, "list_open_files", `{}`)
	require.Error(t, err)

	var routerErr *router.Error
	require.True(t, errors.As(err, &routerErr))
	assert.Equal(t, router.KindRouterInternal, routerErr.Kind)
}

func TestDeadlineFromContext(t *testing.T) {
	// bridge that accepts but never responds
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			select {}
		}
	}()

	r := NewRouter(listener.Addr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = r.Invoke(ctx, router.Call{Tool: "list_open_files", Arguments: json.RawMessage(`{}`)})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
