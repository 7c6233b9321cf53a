// Package manifests parses package descriptor manifests and resolves them
// into build plans.
//
// The package supports multiple manifest formats (pyproject, poetry) with a
// unified descriptor model covering metadata, dependency groups, build-system
// requirements, and dynamic version sources.
//
// Basic usage:
//
//	import (
//		"github.com/git-pkgs/manifests"
//		_ "github.com/git-pkgs/manifests/internal/pyproject"
//	)
//
//	d, err := manifests.Load("pyproject.toml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	plan, err := manifests.Build(".", d)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(plan.Name, plan.Version)
//
// To automatically import all supported formats, use the all subpackage:
//
//	import (
//		"github.com/git-pkgs/manifests"
//		_ "github.com/git-pkgs/manifests/all"
//	)
package manifests

import (
	"github.com/git-pkgs/manifests/internal/core"
	"github.com/git-pkgs/manifests/internal/plan"
	"github.com/git-pkgs/manifests/internal/specifier"
	"github.com/git-pkgs/manifests/internal/version"
)

// Re-export types from internal/core
type (
	// Parser is the interface implemented by all manifest format parsers.
	Parser = core.Parser

	// Descriptor is the parsed form of a package manifest.
	Descriptor = core.Descriptor

	// Author identifies a package author or maintainer.
	Author = core.Author

	// BuildSystem describes the backend that builds the package.
	BuildSystem = core.BuildSystem

	// Dependency is one declared dependency with its constraints.
	Dependency = core.Dependency

	// Constraint is a single version clause within a dependency.
	Constraint = core.Constraint

	// ConstraintOp is a comparison operator in a constraint clause.
	ConstraintOp = core.ConstraintOp

	// Group is a named optional dependency group.
	Group = core.Group

	// Scope indicates when a dependency group is required.
	Scope = core.Scope

	// VersionSource locates a dynamic version outside the manifest.
	VersionSource = core.VersionSource

	// BuildPlan is a fully resolved descriptor ready for a build.
	BuildPlan = core.BuildPlan

	// Version is a parsed version number.
	Version = version.Version
)

// Re-export constants
const (
	OpEqual      = core.OpEqual
	OpNotEqual   = core.OpNotEqual
	OpGTE        = core.OpGTE
	OpLTE        = core.OpLTE
	OpGT         = core.OpGT
	OpLT         = core.OpLT
	OpCompatible = core.OpCompatible
	OpArbitrary  = core.OpArbitrary

	Runtime     = core.Runtime
	Development = core.Development
	Test        = core.Test
	ScopeBuild  = core.Build
	Optional    = core.Optional
)

// Re-export errors
var (
	ErrMalformedManifest     = core.ErrMalformedManifest
	ErrVersionUnresolved     = core.ErrVersionUnresolved
	ErrConstraintUnsatisfied = core.ErrConstraintUnsatisfied
	ErrUnknownFormat         = core.ErrUnknownFormat
)

// Error types
type (
	MalformedManifestError     = core.MalformedManifestError
	VersionResolutionError     = core.VersionResolutionError
	ConstraintUnsatisfiedError = core.ConstraintUnsatisfiedError
)

// New creates a parser for the given format.
//
// Supported formats: "pyproject", "poetry"
func New(format string) (Parser, error) {
	return core.New(format)
}

// Parse parses manifest data with the parser for the given format.
func Parse(format string, data []byte) (*Descriptor, error) {
	p, err := core.New(format)
	if err != nil {
		return nil, err
	}
	return p.Parse(data)
}

// Detect returns the first registered parser that recognizes the data.
func Detect(data []byte) (Parser, error) {
	return core.Detect(data)
}

// SupportedFormats returns all registered manifest formats.
// Note: formats must be imported to be registered.
func SupportedFormats() []string {
	return core.SupportedFormats()
}

// Load reads and parses a manifest file, detecting its format. A manifest
// whose dynamic version points at a file that does not exist is rejected.
func Load(path string) (*Descriptor, error) {
	return plan.Load(path)
}

// Build resolves a descriptor into a build plan. A dynamic version is read
// from its source exactly once; resolution failures are not retried.
func Build(root string, d *Descriptor) (*BuildPlan, error) {
	return plan.Build(root, d)
}

// File loads a manifest and resolves it into a build plan in one step.
func File(path string) (*BuildPlan, error) {
	return plan.File(path)
}

// ParseRequirement parses a dependency requirement string such as
// "aiohttp[speedups]>=3.8.1,<4.0; python_version < '3.12'".
func ParseRequirement(s string) (Dependency, error) {
	return specifier.ParseRequirement(s)
}

// ParseConstraints parses a comma-separated constraint list such as
// ">=1.0,<2.0".
func ParseConstraints(s string) ([]Constraint, error) {
	return specifier.ParseConstraints(s)
}

// Satisfies reports whether a candidate version satisfies every constraint
// of a dependency. Lower bounds are inclusive and upper bounds exclusive
// as declared by their operators.
func Satisfies(dep Dependency, candidate string) (bool, error) {
	return specifier.Satisfies(dep, candidate)
}

// Check verifies installed versions against a descriptor's dependencies.
// Group names select optional groups to include beyond the runtime set.
// One ConstraintUnsatisfiedError is returned per violation.
func Check(d *Descriptor, installed map[string]string, groups ...string) []error {
	return specifier.Check(d, installed, groups...)
}

// ScopeOf maps a conventional group name ("test", "dev", "build", ...) to
// its scope. The empty group is Runtime.
func ScopeOf(group string) Scope {
	return core.ScopeOf(group)
}

// ParseVersion parses a version number into its components.
func ParseVersion(s string) (Version, error) {
	return version.New(s)
}

// CompareVersions compares two version strings. Unparseable versions sort
// before parseable ones.
func CompareVersions(a, b string) int {
	return version.Cmp(a, b)
}

// NormalizeName canonicalizes a package name: runs of ".", "-", and "_"
// collapse to a single "-" and the result is lowercased.
func NormalizeName(name string) string {
	return core.NormalizeName(name)
}

// ParsePURL parses a Package URL into its name and version components.
// The version is empty for an unversioned PURL.
func ParsePURL(purl string) (name, ver string, err error) {
	return core.ParsePURL(purl)
}
