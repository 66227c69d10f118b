// Package memory provides a stateful router that stores categorized notes
// in the caller's session, so facts survive across tool calls on the same
// connection.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/vladimirpesic/juggler/router"
	"github.com/vladimirpesic/juggler/schema"
)

const routerID = "memory"

// keyPrefix namespaces memory categories inside the shared session store.
const keyPrefix = "memory/"

// Memory is a single remembered item within a category.
type Memory struct {
	Data string   `json:"data"`
	Tags []string `json:"tags,omitempty"`
}

// Router persists memories through the session attached to each call.
type Router struct{}

// NewRouter creates a memory router.
func NewRouter() *Router { return &Router{} }

// ID implements router.Router.
func (r *Router) ID() string { return routerID }

// Stateful implements router.Router. Memories live in the session store.
func (r *Router) Stateful() bool { return true }

// Tools implements router.Router.
func (r *Router) Tools() []router.Descriptor {
	return []router.Descriptor{
		{
			Name:        "remember_memory",
			Description: "Store a memory under a category, optionally tagged",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"category": {Type: schema.String, Description: "Grouping for the memory, e.g. 'preferences'"},
					"data":     {Type: schema.String, Description: "The text to remember"},
					"tags": {
						Type:  schema.Array,
						Items: &schema.JSON{Type: schema.String},
					},
				},
				Required: []string{"category", "data"},
			},
		},
		{
			Name:        "retrieve_memories",
			Description: "Retrieve memories for a category, or all categories with '*'",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"category": {Type: schema.String},
				},
				Required: []string{"category"},
			},
		},
		{
			Name:        "remove_memory",
			Description: "Forget all memories in a category",
			InputSchema: &schema.JSON{
				Type: schema.Object,
				Properties: map[string]*schema.JSON{
					"category": {Type: schema.String},
				},
				Required: []string{"category"},
			},
		},
	}
}

// Invoke implements router.Router.
func (r *Router) Invoke(_ context.Context, call router.Call) (json.RawMessage, error) {
	if call.Session == nil {
		return nil, router.Internalf("memory router requires a session")
	}

	switch call.Tool {
	case "remember_memory":
		return r.remember(call)
	case "retrieve_memories":
		return r.retrieve(call)
	case "remove_memory":
		return r.remove(call)
	default:
		return nil, router.NotOwned(routerID, call.Tool)
	}
}

func (r *Router) remember(call router.Call) (json.RawMessage, error) {
	var args struct {
		Category string   `json:"category"`
		Data     string   `json:"data"`
		Tags     []string `json:"tags"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, router.InvalidArgsf("remember_memory: %v", err)
	}
	if strings.ContainsAny(args.Category, "/*") {
		return nil, router.InvalidArgsf("remember_memory: category must not contain '/' or '*'")
	}

	memories, err := loadCategory(call, args.Category)
	if err != nil {
		return nil, err
	}
	memories = append(memories, Memory{Data: args.Data, Tags: args.Tags})

	if err := storeCategory(call, args.Category, memories); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"category": args.Category,
		"count":    len(memories),
	})
}

func (r *Router) retrieve(call router.Call) (json.RawMessage, error) {
	var args struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, router.InvalidArgsf("retrieve_memories: %v", err)
	}

	if args.Category == "*" {
		return r.retrieveAll(call)
	}

	memories, err := loadCategory(call, args.Category)
	if err != nil {
		return nil, err
	}
	if memories == nil {
		return json.Marshal(map[string]any{"found": false, "memories": []Memory{}})
	}
	return json.Marshal(map[string]any{"found": true, "memories": memories})
}

func (r *Router) retrieveAll(call router.Call) (json.RawMessage, error) {
	keys, err := call.Session.Keys()
	if err != nil {
		return nil, router.Internalf("list session keys: %v", err)
	}

	byCategory := map[string][]Memory{}
	var categories []string
	for _, key := range keys {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		category := strings.TrimPrefix(key, keyPrefix)
		memories, err := loadCategory(call, category)
		if err != nil {
			return nil, err
		}
		byCategory[category] = memories
		categories = append(categories, category)
	}
	sort.Strings(categories)

	return json.Marshal(map[string]any{
		"found":      len(categories) > 0,
		"categories": categories,
		"memories":   byCategory,
	})
}

func (r *Router) remove(call router.Call) (json.RawMessage, error) {
	var args struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, router.InvalidArgsf("remove_memory: %v", err)
	}

	if err := call.Session.Delete(keyPrefix + args.Category); err != nil {
		return nil, router.Internalf("delete category %s: %v", args.Category, err)
	}
	return json.Marshal(map[string]any{"removed": args.Category})
}

func loadCategory(call router.Call, category string) ([]Memory, error) {
	value, ok, err := call.Session.Get(keyPrefix + category)
	if err != nil {
		return nil, router.Internalf("load category %s: %v", category, err)
	}
	if !ok {
		return nil, nil
	}
	var memories []Memory
	if err := json.Unmarshal([]byte(value), &memories); err != nil {
		return nil, router.Internalf("decode category %s: %v", category, err)
	}
	return memories, nil
}

func storeCategory(call router.Call, category string, memories []Memory) error {
	encoded, err := json.Marshal(memories)
	if err != nil {
		return router.Internalf("encode category %s: %v", category, err)
	}
	if err := call.Session.Set(keyPrefix+category, string(encoded)); err != nil {
		return router.Internalf("store category %s: %v", category, err)
	}
	return nil
}
