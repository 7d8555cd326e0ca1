// Package tools holds the closed registry of Salesforce operations the
// dispatcher can invoke. Every operation declares its argument shape and
// value constraints; validation runs before any backend call.
package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/pablo-camprubi/salesforce-mcp/api"
	"github.com/pablo-camprubi/salesforce-mcp/salesforce"
)

// Operation is one named unit of backend work. Required lists argument
// keys that must be present and non-empty; Enums constrains string
// arguments to a fixed value set. Invoke runs against a request-scoped
// session and returns a human-readable text payload.
type Operation struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
	Enums       map[string][]string
	Invoke      func(ctx context.Context, s *salesforce.Session, args map[string]any) (string, error)
}

// InputSchema renders the operation's declared argument shape as a JSON
// schema object for tools/list.
func (op *Operation) InputSchema() map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": op.Properties,
	}
	if len(op.Required) > 0 {
		schema["required"] = append([]string(nil), op.Required...)
	}
	return schema
}

// Validate checks args against the operation's declared shape. A
// violation surfaces as InvalidArguments and the backend is never
// reached.
func (op *Operation) Validate(args map[string]any) error {
	for _, key := range op.Required {
		value, ok := args[key]
		if !ok || value == nil {
			return api.Failf(api.KindInvalidArguments, "%s: missing required argument %q", op.Name, key)
		}
		if s, isString := value.(string); isString && s == "" {
			return api.Failf(api.KindInvalidArguments, "%s: argument %q must not be empty", op.Name, key)
		}
	}
	for key, allowed := range op.Enums {
		value, ok := args[key]
		if !ok || value == nil {
			continue
		}
		s, isString := value.(string)
		if !isString {
			return api.Failf(api.KindInvalidArguments, "%s: argument %q must be a string", op.Name, key)
		}
		if s == "" {
			continue
		}
		found := false
		for _, candidate := range allowed {
			if s == candidate {
				found = true
				break
			}
		}
		if !found {
			return api.Failf(api.KindInvalidArguments, "%s: argument %q must be one of %v", op.Name, key, allowed)
		}
	}
	return nil
}

// Registry is the fixed, closed set of operations. It is built once at
// startup and read-only afterwards.
type Registry struct {
	ops   map[string]*Operation
	order []string
}

// NewRegistry builds the full operation set.
func NewRegistry() *Registry {
	r := &Registry{ops: make(map[string]*Operation)}
	r.register(queryOperations()...)
	r.register(describeOperations()...)
	r.register(recordOperations()...)
	r.register(objectOperations()...)
	r.register(tabAndAppOperations()...)
	r.register(folderOperations()...)
	r.register(ruleOperations()...)
	r.register(einsteinOperations()...)
	return r
}

func (r *Registry) register(ops ...*Operation) {
	for _, op := range ops {
		if op.Name == "" || op.Invoke == nil {
			panic(fmt.Sprintf("tool %q registered without name or handler", op.Name))
		}
		if _, exists := r.ops[op.Name]; exists {
			panic(fmt.Sprintf("duplicate tool registration %q", op.Name))
		}
		r.ops[op.Name] = op
		r.order = append(r.order, op.Name)
	}
}

// Lookup returns the named operation, if registered.
func (r *Registry) Lookup(name string) (*Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Names returns all registered operation names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Descriptors renders the registry for a tools/list response.
func (r *Registry) Descriptors() []api.ToolDescriptor {
	out := make([]api.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		op := r.ops[name]
		out = append(out, api.ToolDescriptor{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: op.InputSchema(),
		})
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
