package specifier

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/git-pkgs/manifests/internal/core"
)

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		input    string
		expected core.Dependency
		wantErr  bool
	}{
		{
			input:    "aiohttp",
			expected: core.Dependency{Name: "aiohttp"},
		},
		{
			input: "aiohttp>=3.8.1,<4.0",
			expected: core.Dependency{
				Name: "aiohttp",
				Constraints: []core.Constraint{
					{Op: core.OpGTE, Version: "3.8.1"},
					{Op: core.OpLT, Version: "4.0"},
				},
			},
		},
		{
			input: "pydantic >= 1.9.0, < 2.0",
			expected: core.Dependency{
				Name: "pydantic",
				Constraints: []core.Constraint{
					{Op: core.OpGTE, Version: "1.9.0"},
					{Op: core.OpLT, Version: "2.0"},
				},
			},
		},
		{
			input: "requests[socks,security]~=2.28",
			expected: core.Dependency{
				Name:   "requests",
				Extras: []string{"socks", "security"},
				Constraints: []core.Constraint{
					{Op: core.OpCompatible, Version: "2.28"},
				},
			},
		},
		{
			input: "tomli>=1.1.0; python_version < '3.11'",
			expected: core.Dependency{
				Name:        "tomli",
				Constraints: []core.Constraint{{Op: core.OpGTE, Version: "1.1.0"}},
				Marker:      "python_version < '3.11'",
			},
		},
		{
			input: "mock (==1.0.1)",
			expected: core.Dependency{
				Name:        "mock",
				Constraints: []core.Constraint{{Op: core.OpEqual, Version: "1.0.1"}},
			},
		},
		{
			input: "pytest==7.*",
			expected: core.Dependency{
				Name:        "pytest",
				Constraints: []core.Constraint{{Op: core.OpEqual, Version: "7.*"}},
			},
		},
		{input: "", wantErr: true},
		{input: "-bad-name", wantErr: true},
		{input: "foo>>1.0", wantErr: true},
		{input: "foo>=abc", wantErr: true},
		{input: "foo>=1.0,", wantErr: true},
		{input: "foo[extra", wantErr: true},
		{input: "foo~=1", wantErr: true}, // compatible release needs two segments
	}

	for _, tt := range tests {
		dep, err := ParseRequirement(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRequirement(%q) expected error, got %+v", tt.input, dep)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRequirement(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if diff := cmp.Diff(tt.expected, dep); diff != "" {
			t.Errorf("ParseRequirement(%q) mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}

func TestSatisfiesRange(t *testing.T) {
	dep, err := ParseRequirement("foo>=1.0,<2.0")
	if err != nil {
		t.Fatalf("ParseRequirement: %v", err)
	}

	tests := []struct {
		candidate string
		expected  bool
	}{
		{"1.0", true}, // lower bound is inclusive
		{"1.5", true},
		{"1.9.9", true},
		{"2.0", false}, // exclusive upper bound
		{"2.1", false},
		{"0.9", false},
	}

	for _, tt := range tests {
		got, err := Satisfies(dep, tt.candidate)
		if err != nil {
			t.Fatalf("Satisfies(%q): %v", tt.candidate, err)
		}
		if got != tt.expected {
			t.Errorf("Satisfies(foo>=1.0,<2.0, %q) = %v, want %v", tt.candidate, got, tt.expected)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		op        core.ConstraintOp
		ref       string
		candidate string
		expected  bool
	}{
		{core.OpEqual, "1.0", "1.0", true},
		{core.OpEqual, "1.0", "1.0.0", true}, // zero padding
		{core.OpEqual, "1.0", "1.0+local", true},
		{core.OpEqual, "1.*", "1.9", true},
		{core.OpEqual, "1.*", "2.0", false},
		{core.OpEqual, "1.4.*", "1.4.7", true},
		{core.OpEqual, "1.4.*", "1.5.0", false},
		{core.OpNotEqual, "1.0", "1.1", true},
		{core.OpNotEqual, "1.0", "1.0", false},
		{core.OpLTE, "2.0", "2.0", true},
		{core.OpGT, "1.0", "1.0", false},
		{core.OpGT, "1.0", "1.0.post1", true},
		{core.OpLT, "2.0", "2.0rc1", true},
		{core.OpCompatible, "1.4.5", "1.4.5", true},
		{core.OpCompatible, "1.4.5", "1.4.9", true},
		{core.OpCompatible, "1.4.5", "1.5.0", false},
		{core.OpCompatible, "1.4.5", "1.4.4", false},
		{core.OpCompatible, "2.2", "2.9", true},
		{core.OpCompatible, "2.2", "3.0", false},
		{core.OpArbitrary, "1.0-custom", "1.0-custom", true},
		{core.OpArbitrary, "1.0-custom", "1.0", false},
	}

	for _, tt := range tests {
		got, err := Match(core.Constraint{Op: tt.op, Version: tt.ref}, tt.candidate)
		if err != nil {
			t.Fatalf("Match(%s%s, %q): %v", tt.op, tt.ref, tt.candidate, err)
		}
		if got != tt.expected {
			t.Errorf("Match(%s%s, %q) = %v, want %v", tt.op, tt.ref, tt.candidate, got, tt.expected)
		}
	}
}

func TestCheck(t *testing.T) {
	d := &core.Descriptor{
		Name: "demo",
		Dependencies: []core.Dependency{
			{Name: "aiohttp", Constraints: []core.Constraint{{Op: core.OpGTE, Version: "3.8"}}},
			{Name: "pydantic", Constraints: []core.Constraint{{Op: core.OpLT, Version: "2.0"}}},
		},
		Groups: []core.Group{
			{Name: "test", Dependencies: []core.Dependency{
				{Name: "pytest", Constraints: []core.Constraint{{Op: core.OpGTE, Version: "7.0"}}},
			}},
		},
	}

	installed := map[string]string{
		"aiohttp":  "3.9.1",
		"Pydantic": "2.5.0", // violates <2.0; name matches case-insensitively
		"pytest":   "6.2.0", // only violates when the test group is requested
	}

	errs := Check(d, installed)
	if len(errs) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(errs), errs)
	}
	var cu *core.ConstraintUnsatisfiedError
	if !errors.As(errs[0], &cu) {
		t.Fatalf("expected ConstraintUnsatisfiedError, got %T", errs[0])
	}
	if cu.Name != "pydantic" || cu.Installed != "2.5.0" {
		t.Errorf("unexpected violation: %+v", cu)
	}
	if !errors.Is(errs[0], core.ErrConstraintUnsatisfied) {
		t.Error("expected error to unwrap to ErrConstraintUnsatisfied")
	}

	errs = Check(d, installed, "test")
	if len(errs) != 2 {
		t.Fatalf("expected 2 violations with test group, got %d: %v", len(errs), errs)
	}
}
