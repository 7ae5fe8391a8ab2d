package scan

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"videoanalyzer/internal/model"
)

// bundleExtensions are directory extensions treated as opaque leaves —
// their descendants are never individually discovered.
var bundleExtensions = map[string]bool{
	".bundle": true,
	".app":    true,
}

// discover recursively enumerates root, skipping hidden entries and bundle
// descendants, and returns an ordered list of absolute paths whose
// extension (case-insensitive) is in model.SupportedExtensions. Grounded
// on the teacher's internal/library/scanner.go walk-and-filter shape,
// generalized from its NAS-lifecycle classification to a plain extension
// allowlist.
func discover(fs afero.Fs, root string) ([]string, error) {
	var out []string

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := afero.ReadDir(fs, dir)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, ".") {
				continue
			}
			path := filepath.Join(dir, name)

			if entry.IsDir() {
				if bundleExtensions[strings.ToLower(filepath.Ext(name))] {
					continue
				}
				if err := walk(path); err != nil {
					return err
				}
				continue
			}

			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
			if model.SupportedExtensions[ext] {
				out = append(out, path)
			}
		}
		return nil
	}

	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}
