package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/git-pkgs/manifests/internal/version"
)

// DefaultURL is the public package index.
const DefaultURL = "https://pypi.org"

// VersionStatus represents the status of a published version.
type VersionStatus string

const (
	StatusNone   VersionStatus = ""
	StatusYanked VersionStatus = "yanked"
)

// Version is one published version of a package.
type Version struct {
	Number      string
	PublishedAt time.Time
	Status      VersionStatus
}

// JSONClient fetches and decodes JSON documents. Both Client and
// BreakerClient implement it.
type JSONClient interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// Index is a pypi.org compatible package index.
type Index struct {
	baseURL string
	client  JSONClient
	urls    *URLs
}

// New creates an index client. If baseURL is empty, DefaultURL is used;
// if client is nil, DefaultClient() is used.
func New(baseURL string, client JSONClient) *Index {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if client == nil {
		client = DefaultClient()
	}
	idx := &Index{
		baseURL: trimBase(baseURL),
		client:  client,
	}
	idx.urls = &URLs{baseURL: idx.baseURL}
	return idx
}

// URLs returns the URL builder for this index.
func (idx *Index) URLs() URLBuilder {
	return idx.urls
}

type projectResponse struct {
	Info     infoBlock                `json:"info"`
	Releases map[string][]releaseFile `json:"releases"`
}

type infoBlock struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
	Version string `json:"version"`
}

type releaseFile struct {
	UploadTime   string `json:"upload_time"`
	Yanked       bool   `json:"yanked"`
	YankedReason string `json:"yanked_reason"`
}

// NotFoundError wraps ErrNotFound with the package name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("package %s not found on index", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// FetchVersions retrieves all published versions of a package, sorted
// ascending. A release is yanked when every file in it is yanked.
func (idx *Index) FetchVersions(ctx context.Context, name string) ([]Version, error) {
	var resp projectResponse
	if err := idx.client.GetJSON(ctx, idx.urls.JSON(name), &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Name: name}
		}
		return nil, err
	}

	versions := make([]Version, 0, len(resp.Releases))
	for num, files := range resp.Releases {
		v := Version{Number: num}

		if len(files) > 0 {
			yanked := true
			for _, f := range files {
				if !f.Yanked {
					yanked = false
				}
				if t, err := time.Parse("2006-01-02T15:04:05", f.UploadTime); err == nil {
					if v.PublishedAt.IsZero() || t.Before(v.PublishedAt) {
						v.PublishedAt = t
					}
				}
			}
			if yanked {
				v.Status = StatusYanked
			}
		}

		versions = append(versions, v)
	}

	sort.Slice(versions, func(i, j int) bool {
		return version.Cmp(versions[i].Number, versions[j].Number) < 0
	})
	return versions, nil
}

// LatestVersion returns the newest non-yanked, non-prerelease version, or
// nil if none exists.
func (idx *Index) LatestVersion(ctx context.Context, name string) (*Version, error) {
	versions, err := idx.FetchVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Status != StatusNone {
			continue
		}
		v, err := version.New(versions[i].Number)
		if err != nil || v.IsPrerelease() {
			continue
		}
		return &versions[i], nil
	}
	return nil, nil
}
