package platform

import (
	"os"
	"path/filepath"
	"strings"
)

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}

	// `go run` builds into the system temp directory.
	if strings.HasPrefix(strings.ToLower(exe), strings.ToLower(os.TempDir())) {
		return true
	}

	if strings.HasSuffix(exe, ".test") || strings.HasSuffix(exe, ".test.exe") {
		return true
	}

	return false
}

// ResolveDBPath determines the actual SQLite file for path based on safety
// rules. When forceTemp is set, the file is re-rooted under a namespaced
// temporary directory so a dev run never churns a real database, unless
// path already lies inside the temp directory.
func ResolveDBPath(path string, forceTemp bool) string {
	if !forceTemp {
		if path == "" {
			return DefaultDBFile
		}
		return path
	}

	clean := filepath.Clean(path)
	tempRoot := os.TempDir()
	if path != "" {
		rel, err := filepath.Rel(tempRoot, clean)
		if err == nil && filepath.IsAbs(clean) && !strings.HasPrefix(rel, "..") {
			return clean
		}
	}

	name := filepath.Base(clean)
	if path == "" || name == "." || name == string(os.PathSeparator) {
		name = DefaultDBFile
	}
	return filepath.Join(tempRoot, "churn-dev", name)
}
