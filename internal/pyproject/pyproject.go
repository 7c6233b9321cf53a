// Package pyproject parses standard pyproject.toml project metadata.
package pyproject

import (
	"fmt"
	"sort"
	"strings"

	"github.com/github/go-spdx/v2/spdxexp"
	"github.com/pelletier/go-toml/v2"

	"github.com/git-pkgs/manifests/internal/core"
	"github.com/git-pkgs/manifests/internal/specifier"
)

const format = "pyproject"

func init() {
	core.Register(format, func() core.Parser {
		return New()
	})
}

// Parser parses the [project] table layout of pyproject.toml.
type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Format() string {
	return format
}

// document mirrors the manifest's TOML shape.
type document struct {
	BuildSystem buildSystem    `toml:"build-system"`
	Project     project        `toml:"project"`
	Tool        map[string]any `toml:"tool,omitempty"`
}

type buildSystem struct {
	Requires     []string `toml:"requires"`
	BuildBackend string   `toml:"build-backend"`
	BackendPath  []string `toml:"backend-path,omitempty"`
}

type project struct {
	Name            string              `toml:"name"`
	Version         string              `toml:"version,omitempty"`
	Description     string              `toml:"description,omitempty"`
	Readme          any                 `toml:"readme,omitempty"`
	RequiresPython  string              `toml:"requires-python,omitempty"`
	License         any                 `toml:"license,omitempty"`
	Authors         []author            `toml:"authors,omitempty"`
	Maintainers     []author            `toml:"maintainers,omitempty"`
	Keywords        []string            `toml:"keywords,omitempty"`
	Classifiers     []string            `toml:"classifiers,omitempty"`
	URLs            map[string]string   `toml:"urls,omitempty"`
	Dependencies    []string            `toml:"dependencies,omitempty"`
	OptionalDeps    map[string][]string `toml:"optional-dependencies,omitempty"`
	Dynamic         []string            `toml:"dynamic,omitempty"`
}

type author struct {
	Name  string `toml:"name,omitempty"`
	Email string `toml:"email,omitempty"`
}

// Detect reports whether the manifest declares a [project] table.
func (p *Parser) Detect(data []byte) bool {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return false
	}
	return doc.Project.Name != "" || len(doc.Project.Dynamic) > 0
}

// Parse validates raw manifest text and returns a Descriptor. Parse is pure;
// filesystem checks such as dynamic source existence happen at plan time.
func (p *Parser) Parse(data []byte) (*core.Descriptor, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, &core.MalformedManifestError{Reason: err.Error()}
	}

	if doc.BuildSystem.BuildBackend == "" {
		return nil, &core.MalformedManifestError{
			Field:  "build-system.build-backend",
			Reason: "missing build backend",
		}
	}
	if doc.Project.Name == "" {
		return nil, &core.MalformedManifestError{
			Field:  "project.name",
			Reason: "missing project name",
		}
	}

	d := &core.Descriptor{
		Name:           doc.Project.Name,
		Version:        doc.Project.Version,
		Description:    doc.Project.Description,
		RequiresPython: doc.Project.RequiresPython,
		Keywords:       doc.Project.Keywords,
		Classifiers:    doc.Project.Classifiers,
		URLs:           doc.Project.URLs,
		Dynamic:        doc.Project.Dynamic,
		Tools:          doc.Tool,
		Format:         format,
	}

	var err error
	if d.Readme, err = stringOrFileTable(doc.Project.Readme, "file", "text"); err != nil {
		return nil, &core.MalformedManifestError{Field: "project.readme", Reason: err.Error()}
	}
	if d.License, err = stringOrFileTable(doc.Project.License, "text", "file"); err != nil {
		return nil, &core.MalformedManifestError{Field: "project.license", Reason: err.Error()}
	}

	for _, a := range doc.Project.Authors {
		d.Authors = append(d.Authors, core.Author{Name: a.Name, Email: a.Email})
	}
	for _, a := range doc.Project.Maintainers {
		d.Maintainers = append(d.Maintainers, core.Author{Name: a.Name, Email: a.Email})
	}

	if doc.Project.RequiresPython != "" {
		if _, err := specifier.ParseConstraints(doc.Project.RequiresPython); err != nil {
			return nil, &core.MalformedManifestError{
				Field:  "project.requires-python",
				Reason: err.Error(),
			}
		}
	}

	if d.BuildSystem, err = parseBuildSystem(doc.BuildSystem); err != nil {
		return nil, err
	}

	if d.Dependencies, err = parseGroup("project.dependencies", doc.Project.Dependencies); err != nil {
		return nil, err
	}

	for _, name := range sortedKeys(doc.Project.OptionalDeps) {
		deps, err := parseGroup("project.optional-dependencies."+name, doc.Project.OptionalDeps[name])
		if err != nil {
			return nil, err
		}
		d.Groups = append(d.Groups, core.Group{Name: name, Dependencies: deps})
	}

	if d.Version == "" && !d.IsDynamic("version") {
		return nil, &core.MalformedManifestError{
			Field:  "project.version",
			Reason: "version is neither declared nor marked dynamic",
		}
	}
	if d.Version != "" && d.IsDynamic("version") {
		return nil, &core.MalformedManifestError{
			Field:  "project.dynamic",
			Reason: "version is both declared and marked dynamic",
		}
	}

	d.VersionSource = versionSourceFromTools(doc.Tool)
	return d, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseBuildSystem(bs buildSystem) (core.BuildSystem, error) {
	out := core.BuildSystem{Backend: bs.BuildBackend, Paths: bs.BackendPath}
	for _, req := range bs.Requires {
		dep, err := specifier.ParseRequirement(req)
		if err != nil {
			return out, &core.MalformedManifestError{
				Field:  "build-system.requires",
				Reason: err.Error(),
			}
		}
		out.Requires = append(out.Requires, dep)
	}
	return out, nil
}

func parseGroup(field string, reqs []string) ([]core.Dependency, error) {
	var deps []core.Dependency
	seen := make(map[string]struct{}, len(reqs))
	for _, req := range reqs {
		dep, err := specifier.ParseRequirement(req)
		if err != nil {
			return nil, &core.MalformedManifestError{Field: field, Reason: err.Error()}
		}
		key := core.NormalizeName(dep.Name)
		if _, dup := seen[key]; dup {
			return nil, &core.MalformedManifestError{
				Field:  field,
				Reason: fmt.Sprintf("duplicate dependency %q", dep.Name),
			}
		}
		seen[key] = struct{}{}
		deps = append(deps, dep)
	}
	return deps, nil
}

// stringOrFileTable accepts the two shapes these fields take: a plain string,
// or a one-key table such as {file = "..."} / {text = "..."}.
func stringOrFileTable(v any, keys ...string) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case map[string]any:
		for _, key := range keys {
			if s, ok := t[key].(string); ok {
				return s, nil
			}
		}
		return "", fmt.Errorf("table must contain one of: %s", strings.Join(keys, ", "))
	default:
		return "", fmt.Errorf("expected string or table, got %T", v)
	}
}

// versionSourceFromTools extracts a dynamic version source from the tool
// tables. Recognized: [tool.setuptools.dynamic] version = {attr|file = ...}
// and [tool.hatch.version] path/pattern.
func versionSourceFromTools(tools map[string]any) *core.VersionSource {
	if src := lookupTable(tools, "setuptools", "dynamic", "version"); src != nil {
		if attr, ok := src["attr"].(string); ok {
			// attr references module.__version__; the module path maps to a file.
			return &core.VersionSource{Path: attrToPath(attr)}
		}
		if file, ok := src["file"].(string); ok {
			return &core.VersionSource{Path: file, Pattern: `^\s*(\S+)\s*$`}
		}
	}
	if src := lookupTable(tools, "hatch", "version"); src != nil {
		if path, ok := src["path"].(string); ok {
			vs := &core.VersionSource{Path: path}
			if pattern, ok := src["pattern"].(string); ok {
				vs.Pattern = pattern
			}
			return vs
		}
	}
	return nil
}

func lookupTable(tools map[string]any, path ...string) map[string]any {
	cur := tools
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// attrToPath maps "pkg.mod.__version__" to "pkg/mod.py", defaulting the
// module file to the package __init__.
func attrToPath(attr string) string {
	parts := strings.Split(attr, ".")
	if len(parts) > 0 && strings.HasPrefix(parts[len(parts)-1], "__") {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0] + "/__init__.py"
	}
	return strings.Join(parts[:len(parts)-1], "/") + "/" + parts[len(parts)-1] + ".py"
}

// Marshal serializes a Descriptor back to pyproject.toml form. Re-parsing
// the output yields a structurally equal descriptor.
func (p *Parser) Marshal(d *core.Descriptor) ([]byte, error) {
	doc := document{
		BuildSystem: buildSystem{
			BuildBackend: d.BuildSystem.Backend,
			BackendPath:  d.BuildSystem.Paths,
		},
		Project: project{
			Name:           d.Name,
			Version:        d.Version,
			Description:    d.Description,
			RequiresPython: d.RequiresPython,
			Keywords:       d.Keywords,
			Classifiers:    d.Classifiers,
			URLs:           d.URLs,
			Dynamic:        d.Dynamic,
		},
		Tool: d.Tools,
	}
	if d.Readme != "" {
		doc.Project.Readme = d.Readme
	}
	if d.License != "" {
		doc.Project.License = d.License
	}
	for _, req := range d.BuildSystem.Requires {
		doc.BuildSystem.Requires = append(doc.BuildSystem.Requires, req.String())
	}
	for _, a := range d.Authors {
		doc.Project.Authors = append(doc.Project.Authors, author{Name: a.Name, Email: a.Email})
	}
	for _, a := range d.Maintainers {
		doc.Project.Maintainers = append(doc.Project.Maintainers, author{Name: a.Name, Email: a.Email})
	}
	for _, dep := range d.Dependencies {
		doc.Project.Dependencies = append(doc.Project.Dependencies, dep.String())
	}
	if len(d.Groups) > 0 {
		doc.Project.OptionalDeps = make(map[string][]string, len(d.Groups))
		for _, g := range d.Groups {
			reqs := make([]string, 0, len(g.Dependencies))
			for _, dep := range g.Dependencies {
				reqs = append(reqs, dep.String())
			}
			doc.Project.OptionalDeps[g.Name] = reqs
		}
	}
	return toml.Marshal(doc)
}

// Lint reports non-fatal findings: unknown license expressions and
// malformed classifier shapes.
func Lint(d *core.Descriptor) []string {
	var warnings []string
	if d.License != "" && !strings.ContainsAny(d.License, "\n") {
		if valid, bad := spdxexp.ValidateLicenses([]string{d.License}); !valid {
			warnings = append(warnings, fmt.Sprintf("license %q is not a recognized SPDX expression", strings.Join(bad, ", ")))
		}
	}
	for _, c := range d.Classifiers {
		if !strings.Contains(c, "::") {
			warnings = append(warnings, fmt.Sprintf("classifier %q is not in Topic :: Subtopic form", c))
		}
	}
	return warnings
}
