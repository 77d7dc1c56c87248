package tools

import (
	"context"
	"testing"
)

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("deployctl"); ok {
		t.Fatal("empty registry must not resolve names")
	}

	RegisterBuiltins(r, nil)
	for _, name := range []string{"deployctl", "datastore", "inventory", "pricing", "analytics", "healthmon"} {
		if _, ok := r.Lookup(name); !ok {
			t.Fatalf("builtin %q not registered", name)
		}
	}
}

func TestDeployToolDryRunSimulates(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, nil)
	tool, _ := r.Lookup("deployctl")

	out, err := tool.Run(context.Background(), map[string]any{"service": "checkout"}, RunOptions{
		DryRun: true, ExpectedDiff: "replaces the running release", ExecutionID: "exec-1",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	result := out.(map[string]any)
	if result["status"] != "simulated" {
		t.Fatalf("dry run must simulate, got %v", result["status"])
	}
}

func TestDeployToolRequiresService(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, nil)
	tool, _ := r.Lookup("deployctl")

	if _, err := tool.Run(context.Background(), nil, RunOptions{DryRun: true}); err == nil {
		t.Fatal("deployctl must reject a missing service argument")
	}
}
