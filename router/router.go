// Package router defines the contract a pluggable service unit must satisfy
// to participate in dispatch.
//
// A router owns a fixed set of named, schema-described tools and executes
// invocations for them. Concrete routers differ only in backend logic, never
// in the shape of this contract. A router's internal state is owned by the
// router alone; the dispatcher never reaches into it.
package router

import (
	"context"
	"encoding/json"

	"github.com/vladimirpesic/juggler/schema"
	"github.com/vladimirpesic/juggler/session"
)

// Descriptor is the static metadata for one named operation. It is immutable
// after registration.
type Descriptor struct {
	Name         string       `json:"name"`
	Description  string       `json:"description,omitzero"`
	InputSchema  *schema.JSON `json:"input_schema"`
	OutputSchema *schema.JSON `json:"output_schema,omitzero"`
}

// Call carries a single invocation into a router. Session is nil for
// stateless routers.
type Call struct {
	Tool      string
	Arguments json.RawMessage
	Session   *session.Session
}

// Router is a pluggable service unit owning a fixed set of tools.
//
// Invoke may perform blocking or long-running I/O; it must honor ctx
// cancellation so the dispatcher's timeout can abort in-flight work without
// leaking backend handles. Backend failures must be translated to an *Error;
// anything else is reported to the client as a router internal error.
type Router interface {
	// ID returns a stable identifier for this router, used in logs.
	ID() string
	// Tools returns the descriptors this router owns, in declaration order.
	Tools() []Descriptor
	// Stateful reports whether invocations need a session.
	Stateful() bool
	// Invoke executes one tool call and returns the JSON success payload.
	Invoke(ctx context.Context, call Call) (json.RawMessage, error)
}

// NotOwned is the defense-in-depth error a router returns for a tool name it
// does not own. The dispatcher resolves names before invoking, so reaching
// this indicates a caller bug, reported as an internal error.
func NotOwned(routerID, tool string) *Error {
	return Internalf("router %s does not own tool %q", routerID, tool)
}
