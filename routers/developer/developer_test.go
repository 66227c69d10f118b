package developer

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"testing"

	"github.com/psanford/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladimirpesic/juggler/router"
)

func newTestRouter(t *testing.T) (*Router, *memfs.FS) {
	t.Helper()
	fsys := memfs.New()
	return NewRouter(fsys), fsys
}

func invoke(t *testing.T, r *Router, tool, arguments string) (json.RawMessage, error) {
	t.Helper()
	return r.Invoke(context.Background(), router.Call{
		Tool:      tool,
		Arguments: json.RawMessage(arguments),
	})
}

func TestRouterIdentity(t *testing.T) {
	r, _ := newTestRouter(t)
	assert.Equal(t, "developer", r.ID())
	assert.False(t, r.Stateful())

	tools := r.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "shell", tools[0].Name)
	assert.Equal(t, "text_editor", tools[1].Name)
	for _, tool := range tools {
		assert.NotNil(t, tool.InputSchema, "tool %s", tool.Name)
	}
}

func TestShell(t *testing.T) {
	r, _ := newTestRouter(t)

	payload, err := invoke(t, r, "shell", `{"command":"printf hello; printf oops >&2"}`)
	require.NoError(t, err)

	var result shellResult
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello", result.Stdout)
	assert.Equal(t, "oops", result.Stderr)
}

func TestShellNonZeroExit(t *testing.T) {
	r, _ := newTestRouter(t)

	payload, err := invoke(t, r, "shell", `{"command":"exit 3"}`)
	require.NoError(t, err)

	var result shellResult
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.Equal(t, 3, result.ExitCode)
}

func TestShellCanceled(t *testing.T) {
	r, _ := newTestRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Invoke(ctx, router.Call{
		Tool:      "shell",
		Arguments: json.RawMessage(`{"command":"sleep 10"}`),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEditorWriteAndView(t *testing.T) {
	r, _ := newTestRouter(t)

	_, err := invoke(t, r, "text_editor", `{"command":"write","path":"notes/todo.txt","file_text":"ship it\n"}`)
	require.NoError(t, err)

	payload, err := invoke(t, r, "text_editor", `{"command":"view","path":"notes/todo.txt"}`)
	require.NoError(t, err)

	var result struct {
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.Equal(t, "ship it\n", result.Content)
}

func TestEditorStrReplace(t *testing.T) {
	r, _ := newTestRouter(t)

	_, err := invoke(t, r, "text_editor", `{"command":"write","path":"main.txt","file_text":"alpha beta gamma"}`)
	require.NoError(t, err)

	_, err = invoke(t, r, "text_editor", `{"command":"str_replace","path":"main.txt","old_str":"beta","new_str":"delta"}`)
	require.NoError(t, err)

	payload, err := invoke(t, r, "text_editor", `{"command":"view","path":"main.txt"}`)
	require.NoError(t, err)

	var result struct {
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.Equal(t, "alpha delta gamma", result.Content)
}

func TestEditorStrReplaceNotUnique(t *testing.T) {
	r, _ := newTestRouter(t)

	_, err := invoke(t, r, "text_editor", `{"command":"write","path":"dup.txt","file_text":"x y x"}`)
	require.NoError(t, err)

	_, err = invoke(t, r, "text_editor", `{"command":"str_replace","path":"dup.txt","old_str":"x","new_str":"z"}`)
	require.Error(t, err)

	var routerErr *router.Error
	require.True(t, errors.As(err, &routerErr))
	assert.Equal(t, router.KindInvalidArguments, routerErr.Kind)
	assert.Contains(t, routerErr.Message, "must be unique")
}

func TestEditorStrReplaceMissing(t *testing.T) {
	r, _ := newTestRouter(t)

	_, err := invoke(t, r, "text_editor", `{"command":"write","path":"f.txt","file_text":"abc"}`)
	require.NoError(t, err)

	_, err = invoke(t, r, "text_editor", `{"command":"str_replace","path":"f.txt","old_str":"zzz","new_str":"q"}`)
	require.Error(t, err)

	var routerErr *router.Error
	require.True(t, errors.As(err, &routerErr))
	assert.Equal(t, router.KindInvalidArguments, routerErr.Kind)
}

func TestEditorViewMissingFile(t *testing.T) {
	r, _ := newTestRouter(t)

	_, err := invoke(t, r, "text_editor", `{"command":"view","path":"nope.txt"}`)
	require.Error(t, err)

	var routerErr *router.Error
	require.True(t, errors.As(err, &routerErr))
	assert.Equal(t, router.KindRouterInternal, routerErr.Kind)
}

func TestEditorPathEscapesAreClamped(t *testing.T) {
	r, fsys := newTestRouter(t)

	_, err := invoke(t, r, "text_editor", `{"command":"write","path":"../../etc/passwd","file_text":"nope"}`)
	require.NoError(t, err)

	// The write lands inside the workspace, not above it.
	content, err := fs.ReadFile(fsys, "etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "nope", string(content))
}

func TestUnknownTool(t *testing.T) {
	r, _ := newTestRouter(t)

	_, err := invoke(t, r, "launch_rocket", `{}`)
	require.Error(t, err)

	var routerErr *router.Error
	require.True(t, errors.As(err, &routerErr))
	assert.Equal(t, router.KindUnknownTool, routerErr.Kind)
}
