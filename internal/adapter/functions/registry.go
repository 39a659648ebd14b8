// Package functions answers the assistant's function tool calls.
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	kjsonschema "github.com/kaptinlin/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/infra/config"
)

// Handler produces a function's output from its raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Function is a named handler with optional argument and output schemas.
type Function struct {
	Name         string
	Description  string
	Parameters   map[string]any // JSON Schema for the arguments; nil skips validation
	OutputSchema map[string]any // JSON Schema the output must satisfy; nil skips validation
	Handler      Handler
}

type entry struct {
	fn     Function
	params *jsonschema.Schema
	output *kjsonschema.Schema
}

// Registry maps function names to handlers. Its Handle method is a
// domain.FunctionHandler.
type Registry struct {
	mu     sync.RWMutex
	funcs  map[string]*entry
	logger *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{funcs: make(map[string]*entry), logger: logger}
}

// FromConfig builds a registry of functions that answer with a fixed output.
func FromConfig(fns []config.FunctionConfig, logger *slog.Logger) (*Registry, error) {
	r := New(logger)
	for _, fc := range fns {
		output := fc.Output
		err := r.Register(Function{
			Name:         fc.Name,
			Description:  fc.Description,
			Parameters:   fc.Parameters,
			OutputSchema: fc.OutputSchema,
			Handler: func(context.Context, json.RawMessage) (string, error) {
				return output, nil
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds fn, compiling its schemas. Returns error if the name is
// taken or a schema does not compile.
func (r *Registry) Register(fn Function) error {
	if fn.Name == "" || fn.Handler == nil {
		return fmt.Errorf("%w: function needs a name and a handler", domain.ErrInvalidInput)
	}
	e := &entry{fn: fn}
	if fn.Parameters != nil {
		s, err := compileParams(fn.Name, fn.Parameters)
		if err != nil {
			return err
		}
		e.params = s
	}
	if fn.OutputSchema != nil {
		raw, err := json.Marshal(fn.OutputSchema)
		if err != nil {
			return fmt.Errorf("%w: output schema for %q: %v", domain.ErrInvalidInput, fn.Name, err)
		}
		s, err := kjsonschema.NewCompiler().Compile(raw)
		if err != nil {
			return fmt.Errorf("%w: compile output schema for %q: %v", domain.ErrInvalidInput, fn.Name, err)
		}
		e.output = s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[fn.Name]; exists {
		return fmt.Errorf("%w: function %q already registered", domain.ErrInvalidInput, fn.Name)
	}
	r.funcs[fn.Name] = e
	return nil
}

func compileParams(name string, params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: parameters for %q: %v", domain.ErrInvalidInput, name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("parameters.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: add schema for %q: %v", domain.ErrInvalidInput, name, err)
	}
	s, err := compiler.Compile("parameters.json")
	if err != nil {
		return nil, fmt.Errorf("%w: compile schema for %q: %v", domain.ErrInvalidInput, name, err)
	}
	return s, nil
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Handle resolves one tool call. Calls that are not function calls, or that
// name an unknown function, get the empty output. Arguments that are not
// valid JSON or break the schema get a JSON error object as output so the
// run can carry on; only a failing handler returns an error.
func (r *Registry) Handle(ctx context.Context, call domain.ToolCall) (string, error) {
	if call.Type != domain.ToolTypeFunction {
		return "", nil
	}
	r.mu.RLock()
	e, ok := r.funcs[call.Function.Name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("no handler for function", "function", call.Function.Name, "call_id", call.ID)
		return "", nil
	}

	args := json.RawMessage(call.Function.Arguments)
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return r.reject(call, "arguments are not valid JSON", err), nil
	}
	if e.params != nil {
		if err := e.params.Validate(v); err != nil {
			return r.reject(call, "arguments do not match the schema", err), nil
		}
	}

	out, err := e.fn.Handler(ctx, args)
	if err != nil {
		return "", fmt.Errorf("function %s: %w", call.Function.Name, err)
	}

	if e.output != nil {
		var ov any
		if err := json.Unmarshal([]byte(out), &ov); err != nil {
			return r.reject(call, "output is not valid JSON", err), nil
		}
		if res := e.output.Validate(ov); !res.IsValid() {
			return r.reject(call, "output does not match the schema", fmt.Errorf("%s", res.Error())), nil
		}
	}
	return out, nil
}

// reject builds the JSON error object returned in place of an output.
func (r *Registry) reject(call domain.ToolCall, msg string, cause error) string {
	r.logger.Warn("function call rejected",
		"function", call.Function.Name,
		"call_id", call.ID,
		"reason", msg,
		"error", cause,
	)
	return errorOutput(msg, cause.Error())
}

// errorOutput is the {"error", "details"} object handed back to the run in
// place of a real output.
func errorOutput(msg, details string) string {
	raw, _ := json.Marshal(map[string]string{
		"error":   msg,
		"details": details,
	})
	return string(raw)
}
