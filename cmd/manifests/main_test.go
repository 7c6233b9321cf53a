package main

import (
	"testing"

	"github.com/git-pkgs/manifests"
)

func TestAuditDeps(t *testing.T) {
	// Deliberate spare capacity: an aliasing append would overwrite the
	// group's first dependency slot in the shared backing array.
	runtime := make([]manifests.Dependency, 1, 4)
	runtime[0] = manifests.Dependency{Name: "aiohttp"}
	d := &manifests.Descriptor{
		Dependencies: runtime,
		Groups: []manifests.Group{
			{Name: "test", Dependencies: []manifests.Dependency{{Name: "pytest"}}},
			{Name: "dev", Dependencies: []manifests.Dependency{{Name: "mypy"}}},
		},
	}

	deps, err := auditDeps(d, []string{"test", "dev"})
	if err != nil {
		t.Fatalf("auditDeps failed: %v", err)
	}
	if len(deps) != 3 {
		t.Fatalf("expected 3 dependencies, got %d", len(deps))
	}

	if len(d.Dependencies) != 1 || d.Dependencies[0].Name != "aiohttp" {
		t.Errorf("descriptor runtime deps mutated: %+v", d.Dependencies)
	}
	if got := runtime[:cap(runtime)][1].Name; got != "" {
		t.Errorf("descriptor backing array written through: %q", got)
	}

	if _, err := auditDeps(d, []string{"missing"}); err == nil {
		t.Error("expected error for unknown group")
	}
}
