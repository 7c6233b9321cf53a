package core

import (
	"errors"
	"fmt"
)

// ErrMalformedManifest is the sentinel for structurally invalid manifests.
var ErrMalformedManifest = errors.New("malformed manifest")

// ErrVersionUnresolved is the sentinel for dynamic version resolution failures.
var ErrVersionUnresolved = errors.New("version unresolved")

// ErrConstraintUnsatisfied is the sentinel for violated dependency ranges.
var ErrConstraintUnsatisfied = errors.New("constraint unsatisfied")

// ErrUnknownFormat is returned when no parser is registered for a format.
var ErrUnknownFormat = errors.New("unknown manifest format")

// MalformedManifestError reports an unparseable or structurally invalid
// manifest, naming the offending field. The build is aborted.
type MalformedManifestError struct {
	Field  string
	Reason string
}

func (e *MalformedManifestError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed manifest: %s", e.Reason)
	}
	return fmt.Sprintf("malformed manifest: %s: %s", e.Field, e.Reason)
}

func (e *MalformedManifestError) Unwrap() error {
	return ErrMalformedManifest
}

// VersionResolutionError reports a missing or unreadable version source.
// Fatal and non-retryable: a broken version source indicates a broken
// repository state, not a transient condition.
type VersionResolutionError struct {
	Path   string
	Reason string
}

func (e *VersionResolutionError) Error() string {
	return fmt.Sprintf("resolving version from %s: %s", e.Path, e.Reason)
}

func (e *VersionResolutionError) Unwrap() error {
	return ErrVersionUnresolved
}

// ConstraintUnsatisfiedError reports an installed dependency that violates
// its declared range. Surfaced at install time; not recoverable locally.
type ConstraintUnsatisfiedError struct {
	Name      string
	Spec      string
	Installed string
}

func (e *ConstraintUnsatisfiedError) Error() string {
	return fmt.Sprintf("%s %s does not satisfy %s", e.Name, e.Installed, e.Spec)
}

func (e *ConstraintUnsatisfiedError) Unwrap() error {
	return ErrConstraintUnsatisfied
}
