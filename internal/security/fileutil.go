package security

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExcludedDirs are directory names never descended into.
var DefaultExcludedDirs = []string{"vendor", "node_modules", ".git", "storage", "bootstrap/cache"}

// ListFiles walks each root under base and returns the files whose names
// end in one of exts, as slash-separated paths relative to base. Roots may
// be files or directories; missing roots are ignored. Directories in
// DefaultExcludedDirs and paths matching exclude are skipped.
func ListFiles(ctx context.Context, base string, roots, exts, exclude []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, root := range roots {
		abs := filepath.Join(base, filepath.FromSlash(root))
		if _, err := os.Stat(abs); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		err := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, relErr := filepath.Rel(base, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				if path != abs && (isExcludedDir(rel) || IsExcluded(rel, exclude)) {
					return filepath.SkipDir
				}
				return nil
			}
			if seen[rel] || !hasExt(rel, exts) || IsExcluded(rel, exclude) {
				return nil
			}
			seen[rel] = true
			files = append(files, rel)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isExcludedDir(rel string) bool {
	for _, dir := range DefaultExcludedDirs {
		if rel == dir || strings.HasSuffix(rel, "/"+dir) {
			return true
		}
	}
	return false
}

func hasExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	for _, ext := range exts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// IsExcluded returns true if the relative path matches any of the exclude patterns.
func IsExcluded(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, relPath)
		if err == nil && matched {
			return true
		}
		if strings.Contains(pattern, "**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			if strings.HasPrefix(relPath, prefix+"/") || relPath == prefix {
				return true
			}
		}
	}
	return false
}
