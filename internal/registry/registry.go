// Package registry resolves a callable name to an invocable function plus
// its introspectable parameter descriptor. The Python original discovered
// callables via runtime reflection over a module; Go has no equivalent, so
// callables are registered explicitly at startup (see SPEC_FULL.md §4.1).
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Func is an invocable callable. args holds JSON-typed values keyed by
// parameter name; the return value is itself JSON-typed (or a type that
// marshals cleanly to JSON, such as a map or string).
type Func func(ctx context.Context, args map[string]any) (any, error)

// Param describes one formal parameter of a registered callable.
type Param struct {
	Name       string `json:"name"`
	Default    any    `json:"default,omitempty"`
	HasDefault bool   `json:"-"`
}

// Descriptor is the registry entry surfaced to `GET /api/functions`.
type Descriptor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  []Param `json:"parameters"`
}

// ReservedHTTPRequest is the name always resolved to the HTTP action,
// regardless of what else is registered.
const ReservedHTTPRequest = "http_request"

type entry struct {
	fn   Func
	desc Descriptor
}

// Registry is a name → callable lookup table, safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty Registry. The reserved http_request name is not
// registered here — callers wire it via RegisterHTTPAction so that the
// registry package itself has no dependency on the HTTP action's transport.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds or replaces a callable under name.
func (r *Registry) Register(name, description string, params []Param, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{fn: fn, desc: Descriptor{Name: name, Description: description, Parameters: params}}
}

// RegisterHTTPAction registers fn under the reserved http_request name with
// its fixed parameter descriptor.
func (r *Registry) RegisterHTTPAction(fn Func) {
	r.Register(ReservedHTTPRequest, "Issue an outbound HTTP request and return status, headers, and body.",
		[]Param{
			{Name: "url"},
			{Name: "method", Default: "GET", HasDefault: true},
			{Name: "headers", Default: map[string]any{}, HasDefault: true},
			{Name: "body", HasDefault: false},
			{Name: "timeout", Default: 30, HasDefault: true},
			{Name: "verify", Default: true, HasDefault: true},
		}, fn)
}

// Resolve returns the callable registered under name, or false if unknown.
func (r *Registry) Resolve(name string) (Func, Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, Descriptor{}, false
	}
	return e.fn, e.desc, true
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ErrUnknownCallable builds the error for a function name not present in
// the registry.
func ErrUnknownCallable(name string) error {
	return fmt.Errorf("unknown callable %q", name)
}
