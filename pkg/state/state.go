// Package state manages the recorder's on-disk runtime layout under
// output_dir: crash dumps, abort-request markers, the binary-mode blob
// directory, and the per-type daily text files.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EnsureStateDirs ensures the canonical runtime folder layout exists under
// outputDir. It verifies paths are not symlinks and have restrictive
// permissions, and that they are writable by the process.
func EnsureStateDirs(outputDir string) error {
	statePath := filepath.Join(outputDir, "state")
	crashPath := filepath.Join(statePath, "crash")
	abortPath := filepath.Join(statePath, "abort")
	tmpPath := filepath.Join(statePath, "tmp")
	binaryPath := filepath.Join(outputDir, "errors_binary")
	dailyPath := filepath.Join(outputDir, "daily")

	paths := []string{crashPath, abortPath, tmpPath, binaryPath, dailyPath}

	for _, p := range paths {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", p, err)
		}

		if fi, err := os.Lstat(p); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", p)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", p)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode (group/other write): %s", p)
			}
		}

		if err := os.MkdirAll(p, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", p, err)
		}

		if fi2, err := os.Lstat(p); err == nil {
			if fi2.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink after creation: %s", p)
			}
			if fi2.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode after creation: %s", p)
			}
		}

		tmp, err := os.CreateTemp(p, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", p, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	return nil
}

// Paths holds canonical locations for runtime artifacts under output_dir.
type Paths struct {
	OutputDir string
	State     string
	Crash     string
	Abort     string
	Tmp       string
	Binary    string // errors_binary/ blob directory (§4.3)
	Daily     string // per-type daily text files (§4.5)
}

// PathsFor returns the canonical Paths for the provided output directory.
func PathsFor(outputDir string) Paths {
	statePath := filepath.Join(outputDir, "state")
	return Paths{
		OutputDir: outputDir,
		State:     statePath,
		Crash:     filepath.Join(statePath, "crash"),
		Abort:     filepath.Join(statePath, "abort"),
		Tmp:       filepath.Join(statePath, "tmp"),
		Binary:    filepath.Join(outputDir, "errors_binary"),
		Daily:     filepath.Join(outputDir, "daily"),
	}
}

func CrashPath(outputDir string) string  { return PathsFor(outputDir).Crash }
func AbortPath(outputDir string) string  { return PathsFor(outputDir).Abort }
func TmpPath(outputDir string) string    { return PathsFor(outputDir).Tmp }
func BinaryPath(outputDir string) string { return PathsFor(outputDir).Binary }
func DailyPath(outputDir string) string  { return PathsFor(outputDir).Daily }

var (
	// PathsVar is the canonical layout for the running process, normally
	// set once at startup. Reconfigure (internal/app) calls Init again
	// after set_output_dir, so this is a plain assignment rather than a
	// sync.Once latch — the caller is responsible for not racing Init
	// against a read of PathsVar, which App.Reconfigure already serializes.
	PathsVar Paths
	mu       sync.Mutex
)

// Init (re)initializes the package-level Paths for the running process.
func Init(outputDir string) {
	mu.Lock()
	defer mu.Unlock()
	PathsVar = PathsFor(outputDir)
}
