// Package tools holds the tool registry and the built-in tool
// implementations the console dispatches to. The coordinator only depends on
// the Registry lookup contract; everything else here is a collaborator
// behind it.
package tools

import (
	"context"
	"sort"
	"sync"
)

// RunOptions carries execution metadata into a tool invocation.
type RunOptions struct {
	DryRun       bool
	ExpectedDiff string
	ExecutionID  string
}

// Tool is a single external system binding.
type Tool interface {
	Run(ctx context.Context, args map[string]any, opts RunOptions) (any, error)
}

// ToolFunc adapts a function to the Tool interface.
type ToolFunc func(ctx context.Context, args map[string]any, opts RunOptions) (any, error)

// Run implements Tool.
func (f ToolFunc) Run(ctx context.Context, args map[string]any, opts RunOptions) (any, error) {
	return f(ctx, args, opts)
}

// Registry maps tool names to implementations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register binds a name to an implementation, replacing any previous binding.
func (r *Registry) Register(name string, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
}

// Lookup returns the implementation for a name, if registered.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names lists registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
