// Package core provides shared types and the manifest format system.
package core

// Descriptor represents the validated metadata of a package manifest.
// A Descriptor is immutable once parsed for the duration of a build.
type Descriptor struct {
	Name           string
	Description    string
	Readme         string
	RequiresPython string
	License        string
	Authors        []Author
	Maintainers    []Author
	Keywords       []string
	Classifiers    []string // order-preserving
	URLs           map[string]string
	Dependencies   []Dependency
	Groups         []Group
	Dynamic        []string // fields resolved at build time, e.g. "version"

	// Version is empty when "version" is listed in Dynamic.
	Version string

	BuildSystem BuildSystem

	// VersionSource is non-nil when the version is dynamic and the
	// manifest declares where to read it from.
	VersionSource *VersionSource

	Format string // registered format that produced this descriptor

	// Tools holds raw per-tool configuration tables, keyed by tool name.
	Tools map[string]any
}

// Author represents a name/email pair from the author or maintainer list.
type Author struct {
	Name  string
	Email string
}

// BuildSystem identifies the backend that turns source plus manifest into
// a distributable artifact, and what the backend itself requires.
type BuildSystem struct {
	Requires []Dependency
	Backend  string
	Paths    []string // backend-path entries, if any
}

// Dependency is a package name plus an acceptable version range.
type Dependency struct {
	Name        string
	Extras      []string
	Constraints []Constraint
	Marker      string // raw environment marker, not evaluated
}

// Constraint is a single version clause within a dependency's range.
type Constraint struct {
	Op      ConstraintOp
	Version string
}

// ConstraintOp is a version comparison operator.
type ConstraintOp string

const (
	OpEqual      ConstraintOp = "=="
	OpNotEqual   ConstraintOp = "!="
	OpGTE        ConstraintOp = ">="
	OpLTE        ConstraintOp = "<="
	OpGT         ConstraintOp = ">"
	OpLT         ConstraintOp = "<"
	OpCompatible ConstraintOp = "~="
	OpArbitrary  ConstraintOp = "==="
)

// Group is a named set of optional dependencies. Groups are independent;
// a consumer may request zero or more of them.
type Group struct {
	Name         string
	Dependencies []Dependency
}

// Scope indicates when a dependency group is conventionally used.
type Scope string

const (
	Runtime     Scope = "runtime"
	Development Scope = "development"
	Test        Scope = "test"
	Build       Scope = "build"
	Optional    Scope = "optional"
)

// ScopeOf maps a conventional group name to its scope.
func ScopeOf(group string) Scope {
	switch group {
	case "":
		return Runtime
	case "test", "tests", "testing":
		return Test
	case "dev", "develop", "development":
		return Development
	case "build":
		return Build
	default:
		return Optional
	}
}

// VersionSource references the file and extraction rule used to resolve a
// dynamic version field. It is read once per build invocation and never
// cached across builds.
type VersionSource struct {
	Path    string
	Pattern string // regex with one capture group; empty means attribute scan
}

// BuildPlan is the output of planning a build: which backend to invoke,
// what metadata to embed, and which constraints to enforce at install time.
type BuildPlan struct {
	Backend         string
	BackendRequires []Dependency
	Name            string
	Version         string
	RequiresPython  string
	Dependencies    []Dependency
	Groups          []Group
}

// Group returns the named optional dependency group, or nil.
func (d *Descriptor) Group(name string) *Group {
	for i := range d.Groups {
		if d.Groups[i].Name == name {
			return &d.Groups[i]
		}
	}
	return nil
}

// IsDynamic reports whether the named field is resolved at build time.
func (d *Descriptor) IsDynamic(field string) bool {
	for _, f := range d.Dynamic {
		if f == field {
			return true
		}
	}
	return false
}

// String renders a dependency back to its requirement form,
// e.g. "requests[socks]>=2.0,<3.0; python_version < '3.12'".
func (dep Dependency) String() string {
	s := dep.Name
	if len(dep.Extras) > 0 {
		s += "["
		for i, e := range dep.Extras {
			if i > 0 {
				s += ","
			}
			s += e
		}
		s += "]"
	}
	for i, c := range dep.Constraints {
		if i > 0 {
			s += ","
		}
		s += string(c.Op) + c.Version
	}
	if dep.Marker != "" {
		s += "; " + dep.Marker
	}
	return s
}
