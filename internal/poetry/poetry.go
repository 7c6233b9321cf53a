// Package poetry parses the [tool.poetry] manifest layout, translating its
// caret and tilde shorthands into standard comparison clauses.
package poetry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/git-pkgs/manifests/internal/core"
	"github.com/git-pkgs/manifests/internal/specifier"
	"github.com/git-pkgs/manifests/internal/version"
)

const format = "poetry"

func init() {
	core.Register(format, func() core.Parser {
		return New()
	})
}

type Parser struct{}

func New() *Parser {
	return &Parser{}
}

func (p *Parser) Format() string {
	return format
}

type document struct {
	BuildSystem buildSystem    `toml:"build-system"`
	Tool        map[string]any `toml:"tool"`
}

type buildSystem struct {
	Requires     []string `toml:"requires"`
	BuildBackend string   `toml:"build-backend"`
}

// poetryTable is the typed shape of [tool.poetry]. Dependency values are
// either constraint strings or tables with a "version" key.
type poetryTable struct {
	Name         string            `toml:"name"`
	Version      string            `toml:"version"`
	Description  string            `toml:"description"`
	Readme       string            `toml:"readme"`
	License      string            `toml:"license"`
	Authors      []string          `toml:"authors"`
	Maintainers  []string          `toml:"maintainers"`
	Keywords     []string          `toml:"keywords"`
	Classifiers  []string          `toml:"classifiers"`
	Homepage     string            `toml:"homepage"`
	Repository   string            `toml:"repository"`
	URLs         map[string]string `toml:"urls"`
	Dependencies map[string]any    `toml:"dependencies"`
	Groups       map[string]group  `toml:"group"`
}

type group struct {
	Dependencies map[string]any `toml:"dependencies"`
}

func (p *Parser) Detect(data []byte) bool {
	var doc struct {
		Tool struct {
			Poetry poetryTable `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return false
	}
	return doc.Tool.Poetry.Name != ""
}

func (p *Parser) Parse(data []byte) (*core.Descriptor, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, &core.MalformedManifestError{Reason: err.Error()}
	}
	var tool struct {
		Tool struct {
			Poetry poetryTable `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &tool); err != nil {
		return nil, &core.MalformedManifestError{Reason: err.Error()}
	}
	pt := tool.Tool.Poetry

	if doc.BuildSystem.BuildBackend == "" {
		return nil, &core.MalformedManifestError{
			Field:  "build-system.build-backend",
			Reason: "missing build backend",
		}
	}
	if pt.Name == "" {
		return nil, &core.MalformedManifestError{
			Field:  "tool.poetry.name",
			Reason: "missing project name",
		}
	}
	if pt.Version == "" {
		return nil, &core.MalformedManifestError{
			Field:  "tool.poetry.version",
			Reason: "missing project version",
		}
	}

	d := &core.Descriptor{
		Name:        pt.Name,
		Version:     pt.Version,
		Description: pt.Description,
		Readme:      pt.Readme,
		License:     pt.License,
		Keywords:    pt.Keywords,
		Classifiers: pt.Classifiers,
		Format:      format,
	}

	// The poetry table itself is projected into descriptor fields; only
	// sibling tool tables are retained raw.
	for name, cfg := range doc.Tool {
		if name == "poetry" {
			continue
		}
		if d.Tools == nil {
			d.Tools = make(map[string]any)
		}
		d.Tools[name] = cfg
	}

	d.URLs = make(map[string]string)
	if pt.Homepage != "" {
		d.URLs["Homepage"] = pt.Homepage
	}
	if pt.Repository != "" {
		d.URLs["Repository"] = pt.Repository
	}
	for label, u := range pt.URLs {
		d.URLs[label] = u
	}
	if len(d.URLs) == 0 {
		d.URLs = nil
	}

	for _, a := range pt.Authors {
		d.Authors = append(d.Authors, parseAuthor(a))
	}
	for _, a := range pt.Maintainers {
		d.Maintainers = append(d.Maintainers, parseAuthor(a))
	}

	for _, req := range doc.BuildSystem.Requires {
		dep, err := specifier.ParseRequirement(req)
		if err != nil {
			return nil, &core.MalformedManifestError{
				Field:  "build-system.requires",
				Reason: err.Error(),
			}
		}
		d.BuildSystem.Requires = append(d.BuildSystem.Requires, dep)
	}
	d.BuildSystem.Backend = doc.BuildSystem.BuildBackend

	deps, requiresPython, err := parseDependencyTable("tool.poetry.dependencies", pt.Dependencies)
	if err != nil {
		return nil, err
	}
	d.Dependencies = deps
	d.RequiresPython = requiresPython

	for _, name := range sortedGroupNames(pt.Groups) {
		gdeps, _, err := parseDependencyTable("tool.poetry.group."+name+".dependencies", pt.Groups[name].Dependencies)
		if err != nil {
			return nil, err
		}
		d.Groups = append(d.Groups, core.Group{Name: name, Dependencies: gdeps})
	}

	return d, nil
}

func sortedGroupNames(groups map[string]group) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseAuthor(s string) core.Author {
	// "Name <email>" form.
	if i := strings.Index(s, "<"); i >= 0 {
		return core.Author{
			Name:  strings.TrimSpace(s[:i]),
			Email: strings.TrimSuffix(strings.TrimSpace(s[i+1:]), ">"),
		}
	}
	return core.Author{Name: strings.TrimSpace(s)}
}

// parseDependencyTable converts poetry's name -> constraint map into
// dependency specs. The reserved "python" entry becomes requires-python.
func parseDependencyTable(field string, table map[string]any) ([]core.Dependency, string, error) {
	var requiresPython string
	var deps []core.Dependency
	seen := make(map[string]struct{}, len(table))

	for _, name := range sortedDepNames(table) {
		raw := table[name]
		spec, extras, marker, err := specValue(raw)
		if err != nil {
			return nil, "", &core.MalformedManifestError{
				Field:  field + "." + name,
				Reason: err.Error(),
			}
		}

		constraints, err := TranslateConstraint(spec)
		if err != nil {
			return nil, "", &core.MalformedManifestError{
				Field:  field + "." + name,
				Reason: err.Error(),
			}
		}

		if name == "python" {
			requiresPython = constraintString(constraints)
			continue
		}

		key := core.NormalizeName(name)
		if _, dup := seen[key]; dup {
			return nil, "", &core.MalformedManifestError{
				Field:  field,
				Reason: fmt.Sprintf("duplicate dependency %q", name),
			}
		}
		seen[key] = struct{}{}

		deps = append(deps, core.Dependency{
			Name:        name,
			Extras:      extras,
			Constraints: constraints,
			Marker:      marker,
		})
	}
	return deps, requiresPython, nil
}

func sortedDepNames(table map[string]any) []string {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func specValue(raw any) (spec string, extras []string, marker string, err error) {
	switch t := raw.(type) {
	case string:
		return t, nil, "", nil
	case map[string]any:
		s, _ := t["version"].(string)
		if s == "" {
			return "", nil, "", fmt.Errorf("dependency table must declare a version")
		}
		if list, ok := t["extras"].([]any); ok {
			for _, e := range list {
				if es, ok := e.(string); ok {
					extras = append(extras, es)
				}
			}
		}
		marker, _ = t["markers"].(string)
		return s, extras, marker, nil
	default:
		return "", nil, "", fmt.Errorf("expected string or table, got %T", raw)
	}
}

func constraintString(constraints []core.Constraint) string {
	parts := make([]string, 0, len(constraints))
	for _, c := range constraints {
		parts = append(parts, string(c.Op)+c.Version)
	}
	return strings.Join(parts, ",")
}

// TranslateConstraint converts a poetry constraint string into standard
// clauses: "^1.2.3" allows changes that keep the leftmost non-zero segment,
// "~1.2.3" allows patch-level changes, "*" allows anything.
func TranslateConstraint(spec string) ([]core.Constraint, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case spec == "" || spec == "*":
		return nil, nil
	case strings.HasPrefix(spec, "^"):
		return caretRange(strings.TrimPrefix(spec, "^"))
	case strings.HasPrefix(spec, "~") && !strings.HasPrefix(spec, "~="):
		return tildeRange(strings.TrimPrefix(spec, "~"))
	}

	// Bare versions mean exact pins.
	if _, err := version.New(spec); err == nil {
		return []core.Constraint{{Op: core.OpEqual, Version: spec}}, nil
	}
	return specifier.ParseConstraints(spec)
}

func caretRange(base string) ([]core.Constraint, error) {
	v, err := version.New(base)
	if err != nil {
		return nil, fmt.Errorf("caret constraint: %v", err)
	}
	upper := make([]int, len(v.Release))
	copy(upper, v.Release)
	bumped := false
	for i, n := range upper {
		if n != 0 {
			upper[i] = n + 1
			upper = upper[:i+1]
			bumped = true
			break
		}
	}
	if !bumped {
		// ^0 and ^0.0 style: the final listed segment bumps.
		upper[len(upper)-1]++
	}
	return []core.Constraint{
		{Op: core.OpGTE, Version: base},
		{Op: core.OpLT, Version: releaseString(upper)},
	}, nil
}

func tildeRange(base string) ([]core.Constraint, error) {
	v, err := version.New(base)
	if err != nil {
		return nil, fmt.Errorf("tilde constraint: %v", err)
	}
	upper := make([]int, len(v.Release))
	copy(upper, v.Release)
	if len(upper) == 1 {
		upper[0]++
	} else {
		upper = upper[:2]
		upper[1]++
	}
	return []core.Constraint{
		{Op: core.OpGTE, Version: base},
		{Op: core.OpLT, Version: releaseString(upper)},
	}, nil
}

func releaseString(release []int) string {
	parts := make([]string, len(release))
	for i, n := range release {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Marshal serializes a Descriptor to the poetry layout. Constraints are
// emitted in standard clause form, which poetry accepts verbatim.
func (p *Parser) Marshal(d *core.Descriptor) ([]byte, error) {
	poetry := map[string]any{
		"name":    d.Name,
		"version": d.Version,
	}
	if d.Description != "" {
		poetry["description"] = d.Description
	}
	if d.Readme != "" {
		poetry["readme"] = d.Readme
	}
	if d.License != "" {
		poetry["license"] = d.License
	}
	if len(d.Keywords) > 0 {
		poetry["keywords"] = d.Keywords
	}
	if len(d.Classifiers) > 0 {
		poetry["classifiers"] = d.Classifiers
	}
	if len(d.Authors) > 0 {
		poetry["authors"] = authorStrings(d.Authors)
	}
	if len(d.Maintainers) > 0 {
		poetry["maintainers"] = authorStrings(d.Maintainers)
	}
	if len(d.URLs) > 0 {
		urls := make(map[string]string, len(d.URLs))
		for label, u := range d.URLs {
			urls[label] = u
		}
		poetry["urls"] = urls
	}

	depTable := make(map[string]any)
	if d.RequiresPython != "" {
		depTable["python"] = d.RequiresPython
	}
	for _, dep := range d.Dependencies {
		depTable[dep.Name] = depValue(dep)
	}
	if len(depTable) > 0 {
		poetry["dependencies"] = depTable
	}

	if len(d.Groups) > 0 {
		groups := make(map[string]any, len(d.Groups))
		for _, g := range d.Groups {
			gdeps := make(map[string]any, len(g.Dependencies))
			for _, dep := range g.Dependencies {
				gdeps[dep.Name] = depValue(dep)
			}
			groups[g.Name] = map[string]any{"dependencies": gdeps}
		}
		poetry["group"] = groups
	}

	tool := map[string]any{"poetry": poetry}
	for name, cfg := range d.Tools {
		tool[name] = cfg
	}
	doc := map[string]any{
		"build-system": map[string]any{
			"requires":      requirementStrings(d.BuildSystem.Requires),
			"build-backend": d.BuildSystem.Backend,
		},
		"tool": tool,
	}
	return toml.Marshal(doc)
}

func depValue(dep core.Dependency) any {
	spec := constraintString(dep.Constraints)
	if spec == "" {
		spec = "*"
	}
	if len(dep.Extras) == 0 && dep.Marker == "" {
		return spec
	}
	table := map[string]any{"version": spec}
	if len(dep.Extras) > 0 {
		table["extras"] = dep.Extras
	}
	if dep.Marker != "" {
		table["markers"] = dep.Marker
	}
	return table
}

func authorStrings(authors []core.Author) []string {
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		if a.Email != "" {
			out = append(out, fmt.Sprintf("%s <%s>", a.Name, a.Email))
		} else {
			out = append(out, a.Name)
		}
	}
	return out
}

func requirementStrings(deps []core.Dependency) []string {
	out := make([]string, 0, len(deps))
	for _, dep := range deps {
		out = append(out, dep.String())
	}
	return out
}
