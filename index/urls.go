package index

import (
	"fmt"
	"strings"

	"github.com/git-pkgs/manifests/internal/core"
)

// URLBuilder constructs URLs for packages on an index.
type URLBuilder interface {
	Project(name string) string
	JSON(name string) string
	PURL(name, version string) string
}

// URLs is the URLBuilder for a pypi.org compatible index.
type URLs struct {
	baseURL string
}

func (u *URLs) Project(name string) string {
	return fmt.Sprintf("%s/project/%s/", u.baseURL, core.NormalizeName(name))
}

func (u *URLs) JSON(name string) string {
	return fmt.Sprintf("%s/pypi/%s/json", u.baseURL, core.NormalizeName(name))
}

func (u *URLs) PURL(name, version string) string {
	purl := "pkg:pypi/" + core.NormalizeName(name)
	if version != "" {
		purl += "@" + version
	}
	return purl
}

// BuildURLs returns a map of all non-empty URLs for a package.
// Keys are "project", "json", and "purl".
func BuildURLs(urls URLBuilder, name, version string) map[string]string {
	result := make(map[string]string)
	if v := urls.Project(name); v != "" {
		result["project"] = v
	}
	if v := urls.JSON(name); v != "" {
		result["json"] = v
	}
	if v := urls.PURL(name, version); v != "" {
		result["purl"] = v
	}
	return result
}

func trimBase(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/")
}
