// Package plan turns a parsed descriptor into a build plan: backend to
// invoke, metadata to embed, constraints to enforce at install time.
package plan

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/git-pkgs/manifests/internal/core"
	"github.com/git-pkgs/manifests/internal/resolve"
)

// Load reads and parses a manifest file, detecting its format. It also
// rejects a dynamic version whose declared source path does not exist,
// which a pure text parse cannot check.
func Load(path string) (*core.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}
	p, err := core.Detect(data)
	if err != nil {
		return nil, err
	}
	d, err := p.Parse(data)
	if err != nil {
		return nil, err
	}

	if d.IsDynamic("version") && d.VersionSource != nil {
		src := d.VersionSource.Path
		if !filepath.IsAbs(src) {
			src = filepath.Join(filepath.Dir(path), src)
		}
		if _, err := os.Stat(src); err != nil {
			return nil, &core.MalformedManifestError{
				Field:  "project.dynamic",
				Reason: "version source " + d.VersionSource.Path + " does not exist",
			}
		}
	}

	return d, nil
}

// Build produces the build plan for a descriptor rooted at the manifest's
// directory. The dynamic version, if any, is resolved exactly once here.
func Build(root string, d *core.Descriptor) (*core.BuildPlan, error) {
	p := &core.BuildPlan{
		Backend:         d.BuildSystem.Backend,
		BackendRequires: d.BuildSystem.Requires,
		Name:            d.Name,
		Version:         d.Version,
		RequiresPython:  d.RequiresPython,
		Dependencies:    d.Dependencies,
		Groups:          d.Groups,
	}

	if d.IsDynamic("version") {
		v, err := resolve.Version(root, d.VersionSource)
		if err != nil {
			return nil, err
		}
		p.Version = v.String()
	}

	return p, nil
}

// File loads a manifest and plans its build in one step.
func File(path string) (*core.BuildPlan, error) {
	d, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Build(filepath.Dir(path), d)
}
