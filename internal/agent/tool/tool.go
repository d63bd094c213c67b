// Package tool provides the agent's typed tool catalog: a static registry
// populated at startup, with per-tool metadata describing its category
// (query or mutation), the agent modes it is available in, and the
// human-in-the-loop field schema used to render mutation confirmations.
package tool

import (
	"context"
	"fmt"
	"sync"

	"github.com/moyeo-ai/moyeo/pkg/llm"
)

// Category distinguishes read-only tools from state-changing ones. Mutation
// tools require human confirmation before executing.
type Category string

const (
	CategoryQuery    Category = "query"
	CategoryMutation Category = "mutation"
)

// Mode is an agent operating mode. Voice agents only see query tools;
// spotlight agents see both.
type Mode string

const (
	ModeVoice     Mode = "voice"
	ModeSpotlight Mode = "spotlight"
)

// HITLField describes how one tool parameter is collected in the
// confirmation UI.
type HITLField struct {
	// Name is the parameter name as it appears in the tool's schema.
	Name string

	// Description is shown next to the input.
	Description string

	// Type is the parameter's value type ("string", "datetime", "uuid").
	Type string

	Required bool

	// InputType selects the widget: "text", "select", "datetime".
	InputType string

	// Placeholder is the empty-input hint.
	Placeholder string

	// OptionsSource names a dynamic option list the executor loads at
	// interrupt time (e.g. "user_teams", "user_meetings"). Empty for free
	// inputs.
	OptionsSource string
}

// Invocation carries one tool call. UserID is the caller's identity,
// injected by the executor; it is never part of the LLM-visible schema.
type Invocation struct {
	UserID string
	Args   map[string]any
}

// Handler executes the tool and returns its result as text for the
// response generator.
type Handler func(ctx context.Context, inv Invocation) (string, error)

// Tool is one registry entry.
type Tool struct {
	Name        string
	Description string
	Category    Category

	// Modes restricts availability; empty means every mode.
	Modes []Mode

	// Params is the JSON Schema of the LLM-visible arguments.
	Params map[string]any

	// DisplayTemplate renders the confirmation line with {{param}}
	// placeholders. Only meaningful for mutations.
	DisplayTemplate string

	// ConfirmationMessage is the question shown to the user.
	ConfirmationMessage string

	HITLFields []HITLField

	Handler Handler
}

// AllowedIn reports whether the tool is available in mode.
func (t Tool) AllowedIn(mode Mode) bool {
	if len(t.Modes) == 0 {
		return true
	}
	for _, m := range t.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Definition converts the tool into its LLM-visible schema.
func (t Tool) Definition() llm.ToolDefinition {
	params := t.Params
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return llm.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}

// Registry is the static tool table. Populated once at startup; reads are
// safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t to the registry. Duplicate names and missing handlers are
// rejected; a mutation tool must carry a display template so the
// confirmation UI has something to render.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool: name must not be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool: %q has no handler", t.Name)
	}
	if t.Category != CategoryQuery && t.Category != CategoryMutation {
		return fmt.Errorf("tool: %q has invalid category %q", t.Name, t.Category)
	}
	if t.Category == CategoryMutation && t.DisplayTemplate == "" {
		return fmt.Errorf("tool: mutation %q has no display template", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("tool: %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ForMode returns every tool available in mode, in registration order.
func (r *Registry) ForMode(mode Mode) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		if t.AllowedIn(mode) {
			out = append(out, t)
		}
	}
	return out
}

// Definitions returns the LLM tool schemas for mode.
func (r *Registry) Definitions(mode Mode) []llm.ToolDefinition {
	tools := r.ForMode(mode)
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.Definition()
	}
	return defs
}

// StringArg extracts a string argument, tolerating absent keys.
func StringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

// IntArg extracts an integer argument; JSON numbers arrive as float64.
func IntArg(args map[string]any, key string, def int) int {
	if args == nil {
		return def
	}
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// objectSchema builds a JSON Schema for an object with the given properties.
func objectSchema(required []string, props map[string]any) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// prop builds one string property entry.
func prop(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
