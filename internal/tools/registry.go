package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry maps tool names to handlers. Registration happens at init; once
// Seal is called the registry is immutable and reads are lock-free in
// practice.
type Registry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]Tool
	schema map[string]*jsonschema.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		schema: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its argument schema. Registering after
// Seal, a duplicate name, or an invalid schema is an error.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return fmt.Errorf("register: tool has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register %s: registry is sealed", name)
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("register %s: duplicate tool", name)
	}

	raw := t.Schema()
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("register %s: schema: %w", name, err)
	}
	compiled, err := compiler.Compile(name + ".json")
	if err != nil {
		return fmt.Errorf("register %s: schema: %w", name, err)
	}

	r.tools[name] = t
	r.schema[name] = compiled
	return nil
}

// Seal freezes the registry after init-time registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
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

// List returns all tools sorted by name.
func (r *Registry) List() []Tool {
	names := r.Names()
	out := make([]Tool, 0, len(names))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// compiledSchema returns the validator for a tool.
func (r *Registry) compiledSchema(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schema[name]
	return s, ok
}
