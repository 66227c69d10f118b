// Package computercontroller provides automation tools: fetching web
// pages into a local cache, running short scripts, and inspecting the
// cache.
package computercontroller

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/psanford/memfs"

	"github.com/vladimirpesic/juggler/router"
	"github.com/vladimirpesic/juggler/schema"
)

const routerID = "computercontroller"

// maxBodyBytes caps how much of a scraped page is cached.
const maxBodyBytes = 5 << 20

// CacheFS is the filesystem scraped pages are written to. memfs.FS
// satisfies it.
type CacheFS interface {
	fs.FS
	WriteFile(path string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
}

// Option configures a Router.
type Option func(*Router)

// WithCacheFS overrides the cache filesystem.
func WithCacheFS(cache CacheFS) Option {
	return func(r *Router) {
		if cache != nil {
			r.cache = cache
		}
	}
}

// WithHTTPClient overrides the client used for web_scrape.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Router) {
		if client != nil {
			r.client = client
		}
	}
}

// Router automates web fetching and scripting with an in-process cache.
type Router struct {
	cache  CacheFS
	client *http.Client
	shell  string
	python string
}

// NewRouter creates a computercontroller router. By default the cache is
// an in-memory filesystem that lives as long as the process.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		cache:  memfs.New(),
		client: http.DefaultClient,
		shell:  "/bin/sh",
		python: "python3",
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

// Stateful implements router.Router. The cache is process-wide scratch
// space, not session state.
func (r *Router) Stateful() bool { return false }

// Tools implements router.Router.
func (r *Router) Tools() []router.Descriptor {
	return []router.Descriptor{
		{
			Name:        "web_scrape",
			Description: "Fetch a URL and save the response body to the cache",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"url": {Type: schema.String, Description: "The http or https URL to fetch"},
				},
				Required: []string{"url"},
			},
		},
		{
			Name:        "run_script",
			Description: "Run a short shell or python script and capture its output",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"language": {Type: schema.String, Enum: []string{"shell", "python"}},
					"script":   {Type: schema.String},
				},
				Required: []string{"language", "script"},
			},
		},
		{
			Name:        "cache",
			Description: "Inspect cached files: list or view",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"command": {Type: schema.String, Enum: []string{"list", "view"}},
					"path":    {Type: schema.String, Description: "Cache path for view"},
				},
				Required: []string{"command"},
			},
		},
	}
}

// Invoke implements router.Router.
func (r *Router) Invoke(ctx context.Context, call router.Call) (json.RawMessage, error) {
	switch call.Tool {
	case "web_scrape":
		return r.webScrape(ctx, call.Arguments)
	case "run_script":
		return r.runScript(ctx, call.Arguments)
	case "cache":
		return r.cacheCommand(call.Arguments)
	default:
		return nil, router.NotOwned(routerID, call.Tool)
	}
}

func (r *Router) webScrape(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, router.InvalidArgsf("web_scrape: %v", err)
	}

	parsed, err := url.Parse(args.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, router.InvalidArgsf("web_scrape: %q is not an http(s) URL", args.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return nil, router.InvalidArgsf("web_scrape: %v", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, router.Internalf("fetch %s: %v", args.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, router.Internalf("fetch %s: status %d", args.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, router.Internalf("read body of %s: %v", args.URL, err)
	}

	cachePath := fmt.Sprintf("web/%s%s", urlDigest(args.URL), extensionFor(resp.Header.Get("Content-Type")))
	if err := r.cache.MkdirAll("web", 0o755); err != nil {
		return nil, router.Internalf("prepare cache: %v", err)
	}
	if err := r.cache.WriteFile(cachePath, body, 0o644); err != nil {
		return nil, router.Internalf("cache %s: %v", cachePath, err)
	}

	return json.Marshal(map[string]any{
		"cache_path":   cachePath,
		"size":         len(body),
		"content_type": resp.Header.Get("Content-Type"),
	})
}

func (r *Router) runScript(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Language string `json:"language"`
		Script   string `json:"script"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, router.InvalidArgsf("run_script: %v", err)
	}

	var cmd *exec.Cmd
	switch args.Language {
	case "shell":
		cmd = exec.CommandContext(ctx, r.shell, "-c", args.Script)
	case "python":
		cmd = exec.CommandContext(ctx, r.python, "-c", args.Script)
	default:
		return nil, router.InvalidArgsf("run_script: unsupported language %q", args.Language)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			return nil, router.Internalf("run_script: %v", err)
		}
	}

	return json.Marshal(map[string]any{
		"exit_code": exitCode,
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
	})
}

func (r *Router) cacheCommand(arguments json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Command string `json:"command"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, router.InvalidArgsf("cache: %v", err)
	}

	switch args.Command {
	case "list":
		var paths []string
		err := fs.WalkDir(r.cache, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return nil, router.Internalf("list cache: %v", err)
		}
		sort.Strings(paths)
		if paths == nil {
			paths = []string{}
		}
		return json.Marshal(map[string]any{"files": paths})

	case "view":
		if args.Path == "" {
			return nil, router.InvalidArgsf("cache: path is required for view")
		}
		content, err := fs.ReadFile(r.cache, args.Path)
		if err != nil {
			return nil, router.Internalf("read cache %s: %v", args.Path, err)
		}
		return json.Marshal(map[string]string{"content": string(content)})

	default:
		return nil, router.InvalidArgsf("cache: unknown command %q", args.Command)
	}
}

func urlDigest(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:8])
}

func extensionFor(contentType string) string {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	switch strings.TrimSpace(mediaType) {
	case "text/html":
		return ".html"
	case "application/json":
		return ".json"
	case "text/plain":
		return ".txt"
	default:
		return ".bin"
	}
}
