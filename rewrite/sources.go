package rewrite

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
)

// skipDirs contains directory names never scanned for sources.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".dart_tool":   true,
	".idea":        true,
	".keyfold":     true,
	"node_modules": true,
	"build":        true,
	"vendor":       true,
}

// SourceSet selects the source files to scan.
type SourceSet struct {
	Dirs       []string
	Extensions []string
	// Exclude holds glob patterns matched against the base name and the
	// slash-separated path relative to its scan dir.
	Exclude []string
}

// FindSources walks s.Dirs recursively and returns the matching files,
// sorted. Missing directories are skipped.
func FindSources(s SourceSet) ([]string, error) {
	excludes := make([]glob.Glob, 0, len(s.Exclude))
	for _, p := range s.Exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		excludes = append(excludes, g)
	}
	exts := make(map[string]bool, len(s.Extensions))
	for _, e := range s.Extensions {
		exts[e] = true
	}

	var files []string
	seen := make(map[string]bool)
	for _, dir := range s.Dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // skip unreadable entries
			}
			if info.IsDir() {
				if path != dir && skipDirs[info.Name()] {
					return filepath.SkipDir
				}
				return nil
			}
			if !exts[filepath.Ext(path)] || seen[path] {
				return nil
			}
			rel, _ := filepath.Rel(dir, path)
			rel = filepath.ToSlash(rel)
			for _, g := range excludes {
				if g.Match(info.Name()) || g.Match(rel) {
					return nil
				}
			}
			seen[path] = true
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
	}

	sort.Strings(files)
	return files, nil
}
