package serial

import (
	"os"
	"path/filepath"
	"sort"
)

// ListPorts enumerates candidate serial devices on this host. This backs
// the core's ListPorts() primitive (SPEC_FULL.md); port enumeration was
// named out of scope for the external CLI, not for the core providing it.
func ListPorts() []string {
	seen := map[string]struct{}{}
	var out []string

	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, pattern := range []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*"} {
		matches, _ := filepath.Glob(pattern)
		for _, m := range matches {
			add(m)
		}
	}

	if entries, err := os.ReadDir("/dev/serial/by-id"); err == nil {
		for _, e := range entries {
			if target, err := filepath.EvalSymlinks(filepath.Join("/dev/serial/by-id", e.Name())); err == nil {
				add(target)
			}
		}
	}

	sort.Strings(out)
	return out
}
