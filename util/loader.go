// Package util - filesystem helpers shared by the CLI tools.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// supported lists the raster formats the pipeline can decode.
var supported = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
}

// ListImageFiles returns the paths of all decodable images directly under
// dir, sorted by name. Subdirectories are skipped.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if supported[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(paths)
	return paths, nil
}
