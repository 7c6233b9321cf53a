// Package all imports all supported manifest format implementations.
//
// Import this package for its side effects to register all formats:
//
//	import (
//		"github.com/git-pkgs/manifests"
//		_ "github.com/git-pkgs/manifests/all"
//	)
//
//	// Now all formats are available
//	formats := manifests.SupportedFormats()
//	// ["pyproject", "poetry"]
package all

import (
	_ "github.com/git-pkgs/manifests/internal/poetry"
	_ "github.com/git-pkgs/manifests/internal/pyproject"
)
