package resolve

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/git-pkgs/manifests/internal/core"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, filepath.Dir(name)), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestVersionAttribute(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "aiofast/__init__.py", "from .handler import View\n\n__version__ = '0.2.1'\n")

	v, err := Version(dir, &core.VersionSource{Path: "aiofast/__init__.py"})
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v.String() != "0.2.1" {
		t.Errorf("expected 0.2.1, got %s", v)
	}
}

func TestVersionPattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "VERSION", "1.4.0\n")

	v, err := Version(dir, &core.VersionSource{Path: "VERSION", Pattern: `^\s*(\S+)\s*$`})
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v.String() != "1.4.0" {
		t.Errorf("expected 1.4.0, got %s", v)
	}
}

func TestVersionMissingFile(t *testing.T) {
	_, err := Version(t.TempDir(), &core.VersionSource{Path: "aiofast/__init__.py"})
	if err == nil {
		t.Fatal("expected error for missing source file")
	}
	var vr *core.VersionResolutionError
	if !errors.As(err, &vr) {
		t.Fatalf("expected VersionResolutionError, got %T: %v", err, err)
	}
	if !errors.Is(err, core.ErrVersionUnresolved) {
		t.Error("expected error to unwrap to ErrVersionUnresolved")
	}
}

func TestVersionNoAttribute(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pkg/__init__.py", "print('no version here')\n")

	_, err := Version(dir, &core.VersionSource{Path: "pkg/__init__.py"})
	if !errors.Is(err, core.ErrVersionUnresolved) {
		t.Fatalf("expected ErrVersionUnresolved, got %v", err)
	}
}

func TestVersionInvalidValue(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pkg/__init__.py", "__version__ = 'not-a-version'\n")

	_, err := Version(dir, &core.VersionSource{Path: "pkg/__init__.py"})
	if !errors.Is(err, core.ErrVersionUnresolved) {
		t.Fatalf("expected ErrVersionUnresolved, got %v", err)
	}
}

func TestVersionNoSource(t *testing.T) {
	_, err := Version(t.TempDir(), nil)
	if !errors.Is(err, core.ErrVersionUnresolved) {
		t.Fatalf("expected ErrVersionUnresolved, got %v", err)
	}
}
