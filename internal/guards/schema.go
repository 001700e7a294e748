package guards

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validates structured output against registered JSON Schemas.
type Schema struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchema returns an empty schema guard.
func NewSchema() *Schema {
	return &Schema{schemas: make(map[string]*jsonschema.Schema)}
}

func (*Schema) Name() string { return "schema" }

// Register compiles and stores a schema under a name.
func (s *Schema) Register(name, schemaJSON string) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(name + ".json")
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", name, err)
	}
	s.mu.Lock()
	s.schemas[name] = compiled
	s.mu.Unlock()
	return nil
}

func (s *Schema) Check(_ context.Context, text string, opts Options) Result {
	r := Result{Guard: "schema", Passed: true, Confidence: 1.0}
	if opts.SchemaName == "" {
		return r
	}

	s.mu.RLock()
	compiled, ok := s.schemas[opts.SchemaName]
	s.mu.RUnlock()
	if !ok {
		// Degrade to a warning when the schema is not registered.
		r.Warnings = append(r.Warnings, fmt.Sprintf("schema %q not registered; validation skipped", opts.SchemaName))
		return r
	}

	var value any
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		r.Passed = false
		r.Blocking = opts.SchemaRequired
		r.Issues = append(r.Issues, fmt.Sprintf("output is not valid JSON: %v", err))
		return r
	}
	if err := compiled.Validate(value); err != nil {
		r.Passed = false
		r.Blocking = opts.SchemaRequired
		r.Issues = append(r.Issues, fmt.Sprintf("schema %s: %v", opts.SchemaName, err))
	}
	return r
}
