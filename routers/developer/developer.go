// Package developer provides general software development tools: shell
// command execution and a small text editor over an injected filesystem.
package developer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"strings"

	"github.com/vladimirpesic/juggler/router"
	"github.com/vladimirpesic/juggler/schema"
)

const routerID = "developer"

// DefaultShell is the interpreter shell commands run under.
const DefaultShell = "/bin/sh"

// Option configures a Router.
type Option func(*Router)

// WithShell overrides the shell interpreter.
func WithShell(shell string) Option {
	return func(r *Router) {
		if shell != "" {
			r.shell = shell
		}
	}
}

// Router executes shell commands and edits files on the workspace
// filesystem it was constructed with.
type Router struct {
	fsys  fs.FS
	shell string
}

// NewRouter creates a developer router editing files on fsys. The filesystem
// should additionally implement WriteFile and MkdirAll (as memfs does) for
// the editor's write commands to work.
func NewRouter(fsys fs.FS, opts ...Option) *Router {
	r := &Router{
		fsys:  fsys,
		shell: DefaultShell,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// ID implements router.Router.
func (r *Router) ID() string { return routerID }

// Stateful implements router.Router.
func (r *Router) Stateful() bool { return false }

// Tools implements router.Router.
func (r *Router) Tools() []router.Descriptor {
	return []router.Descriptor{
		{
			Name:        "shell",
			Description: "Run a shell command and capture its output",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"command": {Type: schema.String, Description: "The command line to run"},
				},
				Required: []string{"command"},
			},
			OutputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"exit_code": {Type: schema.Integer},
					"stdout":    {Type: schema.String},
					"stderr":    {Type: schema.String},
				},
			},
		},
		{
			Name:        "text_editor",
			Description: "View and edit files: view, write, or str_replace",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"command":   {Type: schema.String, Enum: []string{"view", "write", "str_replace"}},
					"path":      {Type: schema.String, Description: "File path relative to the workspace root"},
					"file_text": {Type: schema.String, Description: "Full file contents for write"},
					"old_str":   {Type: schema.String, Description: "Exact text to replace for str_replace"},
					"new_str":   {Type: schema.String, Description: "Replacement text for str_replace"},
				},
				Required: []string{"command", "path"},
			},
		},
	}
}

// Invoke implements router.Router.
func (r *Router) Invoke(ctx context.Context, call router.Call) (json.RawMessage, error) {
	switch call.Tool {
	case "shell":
		return r.runShell(ctx, call.Arguments)
	case "text_editor":
		return r.editFile(call.Arguments)
	default:
		return nil, router.NotOwned(routerID, call.Tool)
	}
}

type shellResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

func (r *Router) runShell(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, router.InvalidArgsf("shell: %v", err)
	}

	cmd := exec.CommandContext(ctx, r.shell, "-c", args.Command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := shellResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			// Cancellation from the dispatcher; surface it so the timeout
			// is reported instead of a spurious exit code.
			return nil, ctx.Err()
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		default:
			return nil, router.Internalf("shell: %v", err)
		}
	}

	return json.Marshal(result)
}

func (r *Router) editFile(arguments json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Command  string `json:"command"`
		Path     string `json:"path"`
		FileText string `json:"file_text"`
		OldStr   string `json:"old_str"`
		NewStr   string `json:"new_str"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, router.InvalidArgsf("text_editor: %v", err)
	}

	filePath := cleanPath(args.Path)

	switch args.Command {
	case "view":
		content, err := r.readFile(filePath)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"content": content})

	case "write":
		if err := r.writeFile(filePath, args.FileText); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]bool{"success": true})

	case "str_replace":
		if args.OldStr == "" {
			return nil, router.InvalidArgsf("text_editor: old_str is required for str_replace")
		}
		content, err := r.readFile(filePath)
		if err != nil {
			return nil, err
		}
		switch count := strings.Count(content, args.OldStr); count {
		case 1:
			// unique match, proceed
		case 0:
			return nil, router.InvalidArgsf("text_editor: old_str not found in %s", filePath)
		default:
			return nil, router.InvalidArgsf("text_editor: old_str appears %d times in %s, must be unique", count, filePath)
		}
		replaced := strings.Replace(content, args.OldStr, args.NewStr, 1)
		if err := r.writeFile(filePath, replaced); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]bool{"success": true})

	default:
		return nil, router.InvalidArgsf("text_editor: unknown command %q", args.Command)
	}
}

func (r *Router) readFile(filePath string) (string, error) {
	file, err := r.fsys.Open(filePath)
	if err != nil {
		return "", router.Internalf("open %s: %v", filePath, err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", router.Internalf("read %s: %v", filePath, err)
	}
	return string(content), nil
}

func (r *Router) writeFile(filePath, content string) error {
	// Create the parent directory if needed
	dir := path.Dir(filePath)
	if dir != "." && dir != "/" {
		type mkdirAller interface {
			MkdirAll(path string, perm os.FileMode) error
		}
		if f, ok := r.fsys.(mkdirAller); ok {
			if err := f.MkdirAll(dir, 0o755); err != nil {
				return router.Internalf("create directory %s: %v", dir, err)
			}
		}
	}

	// github.com/psanford/memfs.FS implements this
	type writer interface {
		WriteFile(path string, data []byte, perm os.FileMode) error
	}
	f, ok := r.fsys.(writer)
	if !ok {
		return router.Internalf("workspace filesystem is read-only")
	}
	if err := f.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return router.Internalf("write %s: %v", filePath, err)
	}
	return nil
}

// cleanPath normalizes a workspace-relative path, preventing directory
// traversal out of the workspace root.
func cleanPath(p string) string {
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "/")
	for strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(p, "../")
	}
	if p == "" || p == ".." || p == "." {
		p = "."
	}
	return p
}
