package index

import (
	"context"
	"strings"
	"sync"

	"github.com/git-pkgs/manifests/internal/core"
	"github.com/git-pkgs/manifests/internal/specifier"
	"github.com/git-pkgs/manifests/internal/version"
)

const defaultConcurrency = 10

// Result reports how a declared dependency range relates to the versions
// actually published on the index.
type Result struct {
	Name             string
	Spec             string
	Published        int
	Satisfying       []string
	Latest           string
	LatestSatisfying string
	URLs             map[string]string
	Err              error
}

// Satisfiable reports whether at least one published version satisfies
// the declared range.
func (r Result) Satisfiable() bool {
	return r.Err == nil && len(r.Satisfying) > 0
}

// Audit checks one dependency against the index. Yanked versions and
// prereleases never satisfy a range unless the range pins them exactly.
func (idx *Index) Audit(ctx context.Context, dep core.Dependency) Result {
	res := Result{
		Name: dep.Name,
		Spec: dep.String(),
		URLs: BuildURLs(idx.urls, dep.Name, ""),
	}

	versions, err := idx.FetchVersions(ctx, dep.Name)
	if err != nil {
		res.Err = err
		return res
	}
	res.Published = len(versions)

	for _, v := range versions {
		if v.Status != StatusNone {
			continue
		}
		if pv, err := version.New(v.Number); err == nil && pv.IsPrerelease() {
			if !pinnedExactly(dep, v.Number) {
				continue
			}
		}
		ok, err := specifier.Satisfies(dep, v.Number)
		if err != nil || !ok {
			continue
		}
		res.Satisfying = append(res.Satisfying, v.Number)
		res.LatestSatisfying = v.Number
	}

	// Latest stable, from the list already fetched.
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Status != StatusNone {
			continue
		}
		if pv, err := version.New(versions[i].Number); err != nil || pv.IsPrerelease() {
			continue
		}
		res.Latest = versions[i].Number
		break
	}

	return res
}

// pinnedExactly reports whether the range pins the published version by an
// exact clause. == clauses compare as versions, so spelling variants such
// as "4.0.0-alpha1" pin the published "4.0.0a1".
func pinnedExactly(dep core.Dependency, candidate string) bool {
	for _, c := range dep.Constraints {
		switch c.Op {
		case core.OpArbitrary:
			if c.Version == candidate {
				return true
			}
		case core.OpEqual:
			if strings.HasSuffix(c.Version, ".*") {
				continue
			}
			if version.Cmp(c.Version, candidate) == 0 {
				return true
			}
		}
	}
	return false
}

// AuditAll checks multiple dependencies in parallel with the default
// concurrency limit. Results keep the input order.
func (idx *Index) AuditAll(ctx context.Context, deps []core.Dependency) []Result {
	return idx.AuditAllWithConcurrency(ctx, deps, defaultConcurrency)
}

// AuditAllWithConcurrency checks dependencies with a custom concurrency limit.
func (idx *Index) AuditAllWithConcurrency(ctx context.Context, deps []core.Dependency, concurrency int) []Result {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]Result, len(deps))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, dep := range deps {
		wg.Add(1)
		go func(i int, dep core.Dependency) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = Result{Name: dep.Name, Spec: dep.String(), Err: ctx.Err()}
				return
			}

			results[i] = idx.Audit(ctx, dep)
		}(i, dep)
	}

	wg.Wait()
	return results
}

// AuditPURL audits a single dependency given as a Package URL. A versioned
// PURL is treated as an exact pin.
func (idx *Index) AuditPURL(ctx context.Context, purl string) (Result, error) {
	name, ver, err := core.ParsePURL(purl)
	if err != nil {
		return Result{}, err
	}
	dep := core.Dependency{Name: name}
	if ver != "" {
		dep.Constraints = []core.Constraint{{Op: core.OpEqual, Version: ver}}
	}
	return idx.Audit(ctx, dep), nil
}
