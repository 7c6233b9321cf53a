// Package specifier implements dependency requirement parsing and version
// range matching: named requirements with optional extras, comma-joined
// comparison clauses, and raw environment markers.
package specifier

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/git-pkgs/manifests/internal/core"
	"github.com/git-pkgs/manifests/internal/version"
)

var (
	nameRE   = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	extraRE  = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?$`)
	clauseRE = regexp.MustCompile(`^(===|==|!=|~=|>=|<=|>|<)\s*(\S+)$`)
)

// ParseRequirement parses a requirement string such as
// "requests[socks]>=2.0,<3.0; python_version >= '3.8'".
func ParseRequirement(s string) (core.Dependency, error) {
	var dep core.Dependency

	raw := strings.TrimSpace(s)
	if raw == "" {
		return dep, errors.New("empty requirement")
	}

	// Split off the environment marker; it is carried verbatim.
	if i := strings.Index(raw, ";"); i >= 0 {
		dep.Marker = strings.TrimSpace(raw[i+1:])
		raw = strings.TrimSpace(raw[:i])
	}

	// Name runs up to the first extras bracket, operator, or space.
	end := len(raw)
	for i, r := range raw {
		if r == '[' || r == '<' || r == '>' || r == '=' || r == '!' || r == '~' || r == ' ' {
			end = i
			break
		}
	}
	dep.Name = raw[:end]
	if !nameRE.MatchString(dep.Name) {
		return dep, errors.Errorf("invalid requirement name %q", dep.Name)
	}
	rest := strings.TrimSpace(raw[end:])

	if strings.HasPrefix(rest, "[") {
		close := strings.Index(rest, "]")
		if close < 0 {
			return dep, errors.Errorf("unterminated extras in %q", s)
		}
		for _, e := range strings.Split(rest[1:close], ",") {
			e = strings.TrimSpace(e)
			if e == "" {
				continue
			}
			if !extraRE.MatchString(e) {
				return dep, errors.Errorf("invalid extra %q in %q", e, s)
			}
			dep.Extras = append(dep.Extras, e)
		}
		rest = strings.TrimSpace(rest[close+1:])
	}

	if rest == "" {
		return dep, nil
	}

	// Parenthesized specifier sets are accepted: "foo (>=1.0)".
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")

	constraints, err := ParseConstraints(rest)
	if err != nil {
		return dep, errors.Wrapf(err, "requirement %q", s)
	}
	dep.Constraints = constraints
	return dep, nil
}

// ParseConstraints parses a comma-joined clause list such as ">=1.0,<2.0".
func ParseConstraints(s string) ([]core.Constraint, error) {
	var constraints []core.Constraint
	for _, clause := range strings.Split(s, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			return nil, errors.Errorf("empty clause in specifier %q", s)
		}
		m := clauseRE.FindStringSubmatch(clause)
		if m == nil {
			return nil, errors.Errorf("unresolvable constraint %q", clause)
		}
		op, ver := core.ConstraintOp(m[1]), m[2]
		if err := validateClause(op, ver); err != nil {
			return nil, err
		}
		constraints = append(constraints, core.Constraint{Op: op, Version: ver})
	}
	return constraints, nil
}

func validateClause(op core.ConstraintOp, ver string) error {
	switch op {
	case core.OpArbitrary:
		// Arbitrary equality compares verbatim; any string is allowed.
		return nil
	case core.OpEqual, core.OpNotEqual:
		if strings.HasSuffix(ver, ".*") {
			ver = strings.TrimSuffix(ver, ".*")
		}
	case core.OpCompatible:
		base, err := version.New(ver)
		if err != nil {
			return errors.Wrapf(err, "constraint %s%s", op, ver)
		}
		if len(base.Release) < 2 {
			return errors.Errorf("constraint %s%s requires at least two release segments", op, ver)
		}
		return nil
	}
	if _, err := version.New(ver); err != nil {
		return errors.Wrapf(err, "constraint %s%s", op, ver)
	}
	return nil
}

// Satisfies reports whether the candidate version satisfies every clause of
// the dependency's range. Lower bounds are inclusive under >=; upper bounds
// are exclusive under < and inclusive under <=, exactly as declared.
func Satisfies(dep core.Dependency, candidate string) (bool, error) {
	for _, c := range dep.Constraints {
		ok, err := Match(c, candidate)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Match reports whether a candidate version satisfies a single clause.
func Match(c core.Constraint, candidate string) (bool, error) {
	if c.Op == core.OpArbitrary {
		return candidate == c.Version, nil
	}

	cv, err := version.New(candidate)
	if err != nil {
		return false, errors.Wrapf(err, "candidate %q", candidate)
	}

	switch c.Op {
	case core.OpEqual:
		if strings.HasSuffix(c.Version, ".*") {
			return matchPrefix(cv, strings.TrimSuffix(c.Version, ".*"))
		}
		ref, err := version.New(c.Version)
		if err != nil {
			return false, err
		}
		return version.Compare(stripLocal(cv), stripLocal(ref)) == 0, nil
	case core.OpNotEqual:
		ok, err := Match(core.Constraint{Op: core.OpEqual, Version: c.Version}, candidate)
		return !ok, err
	case core.OpCompatible:
		// ~=X.Y.Z is >=X.Y.Z with the last release segment free to grow.
		ref, err := version.New(c.Version)
		if err != nil {
			return false, err
		}
		if version.Compare(cv, ref) < 0 {
			return false, nil
		}
		prefix := make([]string, 0, len(ref.Release)-1)
		for _, n := range ref.Release[:len(ref.Release)-1] {
			prefix = append(prefix, strconv.Itoa(n))
		}
		return matchPrefix(cv, strings.Join(prefix, "."))
	}

	ref, err := version.New(c.Version)
	if err != nil {
		return false, err
	}
	cmp := version.Compare(stripLocal(cv), ref)
	switch c.Op {
	case core.OpGTE:
		return cmp >= 0, nil
	case core.OpLTE:
		return cmp <= 0, nil
	case core.OpGT:
		return cmp > 0, nil
	case core.OpLT:
		return cmp < 0, nil
	}
	return false, errors.Errorf("unknown operator %q", c.Op)
}

func stripLocal(v version.Version) version.Version {
	v.Local = ""
	return v
}

// matchPrefix implements the "==X.Y.*" prefix form: the candidate's release
// must start with the reference's release segments, zero-padded as needed.
func matchPrefix(cv version.Version, prefix string) (bool, error) {
	ref, err := version.New(prefix)
	if err != nil {
		return false, errors.Wrapf(err, "prefix %q", prefix)
	}
	if cv.Epoch != ref.Epoch {
		return false, nil
	}
	for i, n := range ref.Release {
		var c int
		if i < len(cv.Release) {
			c = cv.Release[i]
		}
		if c != n {
			return false, nil
		}
	}
	return true, nil
}

// Check verifies a set of installed versions against a descriptor's runtime
// dependencies plus the requested optional groups. Each violation is
// reported as a ConstraintUnsatisfiedError; missing packages are skipped.
func Check(d *core.Descriptor, installed map[string]string, groups ...string) []error {
	deps := append([]core.Dependency(nil), d.Dependencies...)
	for _, name := range groups {
		if g := d.Group(name); g != nil {
			deps = append(deps, g.Dependencies...)
		}
	}

	var errs []error
	for _, dep := range deps {
		candidate, ok := lookupInstalled(installed, dep.Name)
		if !ok {
			continue
		}
		satisfied, err := Satisfies(dep, candidate)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !satisfied {
			errs = append(errs, &core.ConstraintUnsatisfiedError{
				Name:      dep.Name,
				Spec:      dep.String(),
				Installed: candidate,
			})
		}
	}
	return errs
}

func lookupInstalled(installed map[string]string, name string) (string, bool) {
	if v, ok := installed[name]; ok {
		return v, true
	}
	want := core.NormalizeName(name)
	for k, v := range installed {
		if core.NormalizeName(k) == want {
			return v, true
		}
	}
	return "", false
}
