package core

import (
	"regexp"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// PURL returns the Package URL for the descriptor, pkg:pypi/<name>[@version].
// The name is normalized per the registry's rules before projection.
func (d *Descriptor) PURL() string {
	p := packageurl.NewPackageURL(packageurl.TypePyPi, "", NormalizeName(d.Name), d.Version, nil, "")
	return p.ToString()
}

// PURL returns the Package URL for a dependency. Version ranges do not
// project into a PURL, so the result is unversioned.
func (dep Dependency) PURL() string {
	p := packageurl.NewPackageURL(packageurl.TypePyPi, "", NormalizeName(dep.Name), "", nil, "")
	return p.ToString()
}

// ParsePURL parses a Package URL string and returns its package name and
// version (empty if the PURL carries none).
func ParsePURL(purl string) (name, version string, err error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return "", "", err
	}
	name = p.Name
	if p.Namespace != "" {
		name = p.Namespace + "/" + p.Name
	}
	return name, p.Version, nil
}

var normalizeRE = regexp.MustCompile(`[-_.]+`)

// NormalizeName normalizes a package name: runs of ".", "-", "_" collapse
// to a single "-" and the result is lowercased.
func NormalizeName(name string) string {
	return strings.ToLower(normalizeRE.ReplaceAllString(name, "-"))
}
