package tool

import (
	"context"
	"strings"
	"testing"
)

func noop(_ context.Context, _ Invocation) (string, error) { return "", nil }

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		tool Tool
		ok   bool
	}{
		{
			name: "valid query tool",
			tool: Tool{Name: "q", Category: CategoryQuery, Handler: noop},
			ok:   true,
		},
		{
			name: "empty name",
			tool: Tool{Category: CategoryQuery, Handler: noop},
		},
		{
			name: "missing handler",
			tool: Tool{Name: "q", Category: CategoryQuery},
		},
		{
			name: "bad category",
			tool: Tool{Name: "q", Category: "other", Handler: noop},
		},
		{
			name: "mutation without display template",
			tool: Tool{Name: "m", Category: CategoryMutation, Handler: noop},
		},
		{
			name: "mutation with display template",
			tool: Tool{Name: "m", Category: CategoryMutation, DisplayTemplate: "x", Handler: noop},
			ok:   true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.Register(tc.tool)
			if tc.ok && err != nil {
				t.Fatalf("Register() = %v, want nil", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("Register() = nil, want error")
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Tool{Name: "q", Category: CategoryQuery, Handler: noop}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(Tool{Name: "q", Category: CategoryQuery, Handler: noop}); err == nil {
		t.Fatal("second Register() = nil, want error")
	}
}

func TestForModeFiltersMutations(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Tool{Name: "search", Category: CategoryQuery, Handler: noop})
	mustRegister(t, r, Tool{
		Name: "delete", Category: CategoryMutation, DisplayTemplate: "x",
		Modes: []Mode{ModeSpotlight}, Handler: noop,
	})

	voice := r.ForMode(ModeVoice)
	if len(voice) != 1 || voice[0].Name != "search" {
		t.Fatalf("ForMode(voice) = %v, want only search", names(voice))
	}

	spotlight := r.ForMode(ModeSpotlight)
	if len(spotlight) != 2 {
		t.Fatalf("ForMode(spotlight) = %v, want both tools", names(spotlight))
	}
}

func TestForModePreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		mustRegister(t, r, Tool{Name: name, Category: CategoryQuery, Handler: noop})
	}
	got := names(r.ForMode(ModeVoice))
	if strings.Join(got, ",") != "c,a,b" {
		t.Fatalf("ForMode order = %v, want [c a b]", got)
	}
}

func TestDefinitionsCarrySchema(t *testing.T) {
	r := NewRegistry()
	mustRegister(t, r, Tool{
		Name:        "search",
		Description: "find things",
		Category:    CategoryQuery,
		Params:      objectSchema([]string{"query"}, map[string]any{"query": prop("q")}),
		Handler:     noop,
	})

	defs := r.Definitions(ModeVoice)
	if len(defs) != 1 {
		t.Fatalf("Definitions() returned %d entries, want 1", len(defs))
	}
	if defs[0].Name != "search" || defs[0].Description != "find things" {
		t.Fatalf("definition = %+v", defs[0])
	}
	if defs[0].Parameters["type"] != "object" {
		t.Fatalf("parameters schema = %v", defs[0].Parameters)
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{"s": "text", "n": float64(7)}
	if got := StringArg(args, "s"); got != "text" {
		t.Errorf("StringArg = %q", got)
	}
	if got := StringArg(args, "missing"); got != "" {
		t.Errorf("StringArg(missing) = %q, want empty", got)
	}
	if got := StringArg(nil, "s"); got != "" {
		t.Errorf("StringArg(nil) = %q, want empty", got)
	}
	if got := IntArg(args, "n", 1); got != 7 {
		t.Errorf("IntArg = %d, want 7", got)
	}
	if got := IntArg(args, "missing", 3); got != 3 {
		t.Errorf("IntArg(missing) = %d, want default 3", got)
	}
}

func mustRegister(t *testing.T, r *Registry, tl Tool) {
	t.Helper()
	if err := r.Register(tl); err != nil {
		t.Fatalf("Register(%s): %v", tl.Name, err)
	}
}

func names(tools []Tool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.Name
	}
	return out
}
