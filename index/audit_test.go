package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/git-pkgs/manifests/internal/core"
)

func auditServer(t *testing.T) *httptest.Server {
	t.Helper()
	catalog := map[string]map[string][]releaseFile{
		"aiohttp": {
			"3.8.0":   {{UploadTime: "2021-10-31T12:00:00"}},
			"3.8.1":   {{UploadTime: "2021-11-14T12:00:00"}},
			"3.9.1":   {{UploadTime: "2023-11-26T12:00:00"}},
			"4.0.0a1": {{UploadTime: "2024-01-01T12:00:00"}},
		},
		"pydantic": {
			"1.10.13": {{UploadTime: "2023-09-27T12:00:00"}},
			"2.5.0":   {{UploadTime: "2023-11-13T12:00:00"}},
		},
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "pypi" || parts[2] != "json" {
			w.WriteHeader(404)
			return
		}
		releases, ok := catalog[parts[1]]
		if !ok {
			w.WriteHeader(404)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(projectResponse{
			Info:     infoBlock{Name: parts[1]},
			Releases: releases,
		})
	}))
}

func TestAudit(t *testing.T) {
	server := auditServer(t)
	defer server.Close()

	idx := New(server.URL, DefaultClient())
	dep := core.Dependency{
		Name: "aiohttp",
		Constraints: []core.Constraint{
			{Op: core.OpGTE, Version: "3.8.1"},
			{Op: core.OpLT, Version: "4.0"},
		},
	}

	res := idx.Audit(context.Background(), dep)
	if res.Err != nil {
		t.Fatalf("Audit failed: %v", res.Err)
	}
	if !res.Satisfiable() {
		t.Fatal("expected range to be satisfiable")
	}
	if res.Published != 4 {
		t.Errorf("expected 4 published versions, got %d", res.Published)
	}
	if len(res.Satisfying) != 2 { // 3.8.1 and 3.9.1; prerelease excluded
		t.Errorf("expected 2 satisfying versions, got %v", res.Satisfying)
	}
	if res.LatestSatisfying != "3.9.1" {
		t.Errorf("expected latest satisfying 3.9.1, got %q", res.LatestSatisfying)
	}
	if res.Latest != "3.9.1" {
		t.Errorf("expected latest 3.9.1, got %q", res.Latest)
	}
	if res.URLs["purl"] != "pkg:pypi/aiohttp" {
		t.Errorf("unexpected purl: %q", res.URLs["purl"])
	}
}

func TestAuditUnsatisfiable(t *testing.T) {
	server := auditServer(t)
	defer server.Close()

	idx := New(server.URL, DefaultClient())
	dep := core.Dependency{
		Name:        "pydantic",
		Constraints: []core.Constraint{{Op: core.OpGTE, Version: "3.0"}},
	}

	res := idx.Audit(context.Background(), dep)
	if res.Err != nil {
		t.Fatalf("Audit failed: %v", res.Err)
	}
	if res.Satisfiable() {
		t.Errorf("expected unsatisfiable range, got %v", res.Satisfying)
	}
}

func TestAuditExactPinSpellingVariant(t *testing.T) {
	server := auditServer(t)
	defer server.Close()

	idx := New(server.URL, DefaultClient())
	// "-alpha1" and "a1" are the same version; the pin must admit the
	// prerelease as published.
	dep := core.Dependency{
		Name:        "aiohttp",
		Constraints: []core.Constraint{{Op: core.OpEqual, Version: "4.0.0-alpha1"}},
	}

	res := idx.Audit(context.Background(), dep)
	if res.Err != nil {
		t.Fatalf("Audit failed: %v", res.Err)
	}
	if len(res.Satisfying) != 1 || res.Satisfying[0] != "4.0.0a1" {
		t.Errorf("expected pinned prerelease 4.0.0a1 to satisfy, got %v", res.Satisfying)
	}
}

func TestAuditAllZeroConcurrency(t *testing.T) {
	server := auditServer(t)
	defer server.Close()

	idx := New(server.URL, DefaultClient())
	deps := []core.Dependency{
		{Name: "aiohttp"},
		{Name: "pydantic"},
	}

	results := idx.AuditAllWithConcurrency(context.Background(), deps, 0)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("%s: %v", r.Name, r.Err)
		}
	}
}

func TestAuditAll(t *testing.T) {
	server := auditServer(t)
	defer server.Close()

	idx := New(server.URL, DefaultClient())
	deps := []core.Dependency{
		{Name: "aiohttp", Constraints: []core.Constraint{{Op: core.OpGTE, Version: "3.8"}}},
		{Name: "pydantic", Constraints: []core.Constraint{{Op: core.OpLT, Version: "2.0"}}},
		{Name: "no-such-package"},
	}

	results := idx.AuditAll(context.Background(), deps)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Name != "aiohttp" || !results[0].Satisfiable() {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].LatestSatisfying != "1.10.13" {
		t.Errorf("expected 1.10.13, got %q", results[1].LatestSatisfying)
	}
	if results[2].Err == nil {
		t.Error("expected error for unknown package")
	}
}

func TestAuditPURL(t *testing.T) {
	server := auditServer(t)
	defer server.Close()

	idx := New(server.URL, DefaultClient())
	res, err := idx.AuditPURL(context.Background(), "pkg:pypi/pydantic@2.5.0")
	if err != nil {
		t.Fatalf("AuditPURL failed: %v", err)
	}
	if !res.Satisfiable() {
		t.Errorf("expected pinned version to be satisfiable: %+v", res)
	}
	if res.LatestSatisfying != "2.5.0" {
		t.Errorf("expected 2.5.0, got %q", res.LatestSatisfying)
	}

	if _, err := idx.AuditPURL(context.Background(), "not a purl"); err == nil {
		t.Error("expected error for invalid PURL")
	}
}
