package bulkpin

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreList holds gitignore style patterns for remote paths that are never pinned.
// It is immutable once built so it can be consulted from CanPin.
type IgnoreList struct {
	rules  []string
	ignore *gitignore.GitIgnore
	// include narrows the pinned set to paths matching one of these globs
	include []string
}

func NewIgnoreList(lines ...string) *IgnoreList {
	rules := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}

	return &IgnoreList{
		rules:  rules,
		ignore: gitignore.CompileIgnoreLines(rules...),
	}
}

// LoadIgnoreFile reads patterns from path, one per line, appended to extra.
// A missing file is not an error.
func LoadIgnoreFile(path string, extra ...string) (*IgnoreList, error) {
	lines := append([]string{}, extra...)

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewIgnoreList(lines...), nil
	} else if err != nil {
		return nil, fmt.Errorf("open ignore file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ignore file %s: %w", path, err)
	}

	list := NewIgnoreList(lines...)
	slog.Info("loaded pin ignore file", "path", path, "rules", len(list.rules))
	return list, nil
}

// Only returns a copy of the list that also ignores every path not matching
// one of the doublestar globs, e.g. "photos/**/*.jpg".
func (l *IgnoreList) Only(patterns ...string) (*IgnoreList, error) {
	out := &IgnoreList{}
	if l != nil {
		*out = *l
	}
	if out.ignore == nil {
		out.ignore = gitignore.CompileIgnoreLines()
	}

	out.include = nil
	for _, p := range patterns {
		p = strings.TrimPrefix(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern %q", p)
		}
		out.include = append(out.include, p)
	}
	return out, nil
}

// ShouldIgnore expects a path relative to the synchronized root.
func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	if l == nil {
		return false
	}
	if len(l.include) > 0 && !l.included(relPath) {
		return true
	}
	if len(l.rules) == 0 {
		return false
	}
	return l.ignore.MatchesPath(relPath)
}

func (l *IgnoreList) included(relPath string) bool {
	for _, p := range l.include {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

func (l *IgnoreList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.rules)
}
