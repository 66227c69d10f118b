// Package tutorial serves built-in markdown tutorials that teach callers
// how to use the rest of the tool surface.
package tutorial

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"

	"github.com/vladimirpesic/juggler/router"
	"github.com/vladimirpesic/juggler/schema"
)

const routerID = "tutorial"

//go:embed tutorials/*.md
var builtinTutorials embed.FS

// Router serves tutorials from a filesystem of markdown files.
type Router struct {
	fsys fs.FS
	dir  string
}

// NewRouter creates a tutorial router serving the built-in tutorials.
func NewRouter() *Router {
	return &Router{fsys: builtinTutorials, dir: "tutorials"}
}

// NewRouterFS creates a tutorial router serving markdown files from the
// root of fsys.
func NewRouterFS(fsys fs.FS) *Router {
	return &Router{fsys: fsys, dir: "."}
}

// ID implements router.Router.
func (r *Router) ID() string { return routerID }

// Stateful implements router.Router.
func (r *Router) Stateful() bool { return false }

// Tools implements router.Router.
func (r *Router) Tools() []router.Descriptor {
	return []router.Descriptor{
		{
			Name:        "list_tutorials",
			Description: "List the available tutorials by name and title",
			InputSchema: &schema.JSON{Type: schema.Object},
		},
		{
			Name:        "load_tutorial",
			Description: "Load the full text of a tutorial by name",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"name": {Type: schema.String, Description: "Tutorial name from list_tutorials"},
				},
				Required: []string{"name"},
			},
		},
	}
}

// Invoke implements router.Router.
func (r *Router) Invoke(_ context.Context, call router.Call) (json.RawMessage, error) {
	switch call.Tool {
	case "list_tutorials":
		return r.list()
	case "load_tutorial":
		return r.load(call.Arguments)
	default:
		return nil, router.NotOwned(routerID, call.Tool)
	}
}

type tutorialInfo struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

func (r *Router) list() (json.RawMessage, error) {
	entries, err := fs.ReadDir(r.fsys, r.dir)
	if err != nil {
		return nil, router.Internalf("list tutorials: %v", err)
	}

	var tutorials []tutorialInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		name := tutorialName(entry.Name())
		title, err := r.title(entry.Name())
		if err != nil {
			return nil, err
		}
		tutorials = append(tutorials, tutorialInfo{Name: name, Title: title})
	}
	sort.Slice(tutorials, func(i, j int) bool { return tutorials[i].Name < tutorials[j].Name })

	return json.Marshal(map[string]any{"tutorials": tutorials})
}

func (r *Router) load(arguments json.RawMessage) (json.RawMessage, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil, router.InvalidArgsf("load_tutorial: %v", err)
	}

	entries, err := fs.ReadDir(r.fsys, r.dir)
	if err != nil {
		return nil, router.Internalf("list tutorials: %v", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		if tutorialName(entry.Name()) != args.Name {
			continue
		}
		content, err := fs.ReadFile(r.fsys, path.Join(r.dir, entry.Name()))
		if err != nil {
			return nil, router.Internalf("read tutorial %s: %v", args.Name, err)
		}
		return json.Marshal(map[string]string{
			"name":    args.Name,
			"content": string(content),
		})
	}

	return nil, router.InvalidArgsf("load_tutorial: no tutorial named %q", args.Name)
}

// title returns the first markdown heading, or the file name when the
// tutorial has no heading.
func (r *Router) title(fileName string) (string, error) {
	content, err := fs.ReadFile(r.fsys, path.Join(r.dir, fileName))
	if err != nil {
		return "", router.Internalf("read tutorial %s: %v", fileName, err)
	}
	for _, line := range strings.Split(string(content), "\n") {
		if heading, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(heading), nil
		}
	}
	return fileName, nil
}

// tutorialName converts a file name like "getting-started.md" into the
// snake_case name callers use, "getting_started".
func tutorialName(fileName string) string {
	return strcase.ToSnake(strings.TrimSuffix(fileName, ".md"))
}
