// Package resolve extracts dynamic version fields from their declared
// source files.
package resolve

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/git-pkgs/manifests/internal/core"
	"github.com/git-pkgs/manifests/internal/version"
)

// attributeRE matches the conventional module-level version attribute,
// e.g. __version__ = "1.2.3".
var attributeRE = regexp.MustCompile(`^\s*__version__\s*[:=]\s*["']([^"']+)["']`)

// Version resolves a dynamic version from its source, rooted at the
// manifest's directory. The source file is opened, scanned once, and
// closed; results are never cached across builds. Failure is fatal to the
// build: a missing source indicates a broken repository state, not a
// transient condition.
func Version(root string, src *core.VersionSource) (version.Version, error) {
	if src == nil || src.Path == "" {
		return version.Version{}, &core.VersionResolutionError{
			Path:   "",
			Reason: "no version source declared",
		}
	}

	path := src.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return version.Version{}, &core.VersionResolutionError{
			Path:   src.Path,
			Reason: err.Error(),
		}
	}
	defer f.Close()

	re := attributeRE
	if src.Pattern != "" {
		re, err = regexp.Compile(src.Pattern)
		if err != nil {
			return version.Version{}, &core.VersionResolutionError{
				Path:   src.Path,
				Reason: "invalid extraction pattern: " + err.Error(),
			}
		}
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := re.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		raw := m[0]
		if len(m) > 1 {
			raw = m[1]
		}
		v, err := version.New(strings.TrimSpace(raw))
		if err != nil {
			return version.Version{}, &core.VersionResolutionError{
				Path:   src.Path,
				Reason: err.Error(),
			}
		}
		return v, nil
	}
	if err := scanner.Err(); err != nil {
		return version.Version{}, &core.VersionResolutionError{
			Path:   src.Path,
			Reason: err.Error(),
		}
	}

	return version.Version{}, &core.VersionResolutionError{
		Path:   src.Path,
		Reason: "no version found in source",
	}
}
