// Package workspace finds build outputs in a directory tree.
package workspace

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// Finder resolves comma-separated glob patterns against a base directory.
type Finder interface {
	Find(baseDir, patterns string) ([]string, error)
	Open(baseDir, path string) (io.ReadCloser, error)
	Size(baseDir, path string) (int64, error)
}

// GlobFinder matches slash-separated relative paths. "*" stays within a
// path segment, "**" crosses segments and "{a,b}" alternates. A "**/"
// segment also matches zero directories, so "**/*.aab" finds "app.aab".
type GlobFinder struct{}

func NewGlobFinder() *GlobFinder {
	return &GlobFinder{}
}

// SplitPatterns splits a comma-separated pattern list, keeping commas that
// appear inside {...} alternations.
func SplitPatterns(patterns string) []string {
	var out []string
	depth, start := 0, 0
	for i, c := range patterns {
		switch c {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = appendPattern(out, patterns[start:i])
				start = i + 1
			}
		}
	}
	return appendPattern(out, patterns[start:])
}

func appendPattern(out []string, p string) []string {
	p = strings.TrimSpace(p)
	if p == "" {
		return out
	}
	return append(out, filepath.ToSlash(p))
}

// expandDoubleStar returns p plus every variant with one or more "**/"
// segments removed.
func expandDoubleStar(p string) []string {
	for i := 0; i+3 <= len(p); i++ {
		if !strings.HasPrefix(p[i:], "**/") || (i > 0 && p[i-1] != '/') {
			continue
		}
		var out []string
		for _, rest := range expandDoubleStar(p[i+3:]) {
			out = append(out, p[:i+3]+rest, p[:i]+rest)
		}
		return out
	}
	return []string{p}
}

func compile(patterns string) ([]glob.Glob, error) {
	var matchers []glob.Glob
	for _, p := range SplitPatterns(patterns) {
		for _, variant := range expandDoubleStar(p) {
			g, err := glob.Compile(variant, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
			}
			matchers = append(matchers, g)
		}
	}
	return matchers, nil
}

func matchAny(matchers []glob.Glob, rel string) bool {
	for _, m := range matchers {
		if m.Match(rel) {
			return true
		}
	}
	return false
}

// MatchPaths filters slash-separated relative paths by patterns and
// returns the matches sorted.
func MatchPaths(paths []string, patterns string) ([]string, error) {
	matchers, err := compile(patterns)
	if err != nil {
		return nil, err
	}

	var found []string
	for _, p := range paths {
		if matchAny(matchers, p) {
			found = append(found, p)
		}
	}
	sort.Strings(found)
	return found, nil
}

// Find returns the sorted relative paths of regular files under baseDir
// matching any of the patterns.
func (f *GlobFinder) Find(baseDir, patterns string) ([]string, error) {
	matchers, err := compile(patterns)
	if err != nil {
		return nil, err
	}
	if len(matchers) == 0 {
		return nil, nil
	}

	var found []string
	err = filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchAny(matchers, rel) {
			found = append(found, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", baseDir, err)
	}

	sort.Strings(found)
	return found, nil
}

func (f *GlobFinder) Open(baseDir, path string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(baseDir, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

func (f *GlobFinder) Size(baseDir, path string) (int64, error) {
	info, err := os.Stat(filepath.Join(baseDir, filepath.FromSlash(path)))
	if err != nil {
		return 0, fmt.Errorf("stat file: %w", err)
	}
	return info.Size(), nil
}
