package report

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"covimport/logger"
	"covimport/utils"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultReportPaths are probed, relative to the project directory, when no
// report path is configured.
var DefaultReportPaths = []string{
	"target/site/jacoco/jacoco.xml",
	"target/site/jacoco-it/jacoco.xml",
	"build/reports/jacoco/test/jacocoTestReport.xml",
}

// Locator discovers report documents from configured paths and patterns.
type Locator struct {
	baseDir  string
	patterns []string
}

func NewLocator(baseDir string, patterns []string) *Locator {
	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Locator{baseDir: baseDir, patterns: cleaned}
}

// Locate returns absolute report paths in configuration order, with glob
// matches sorted and duplicates removed. An empty result means there is
// nothing to import.
func (l *Locator) Locate(ctx context.Context) ([]string, error) {
	base, err := filepath.Abs(l.baseDir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var found []string
	add := func(path string) {
		path = filepath.Clean(path)
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		found = append(found, path)
	}

	if len(l.patterns) == 0 {
		for _, def := range DefaultReportPaths {
			path := filepath.Join(base, filepath.FromSlash(def))
			if isRegularFile(path) {
				add(path)
			}
		}
		return found, nil
	}

	for _, pattern := range l.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target := utils.ResolvePath(base, filepath.FromSlash(pattern))
		if !utils.HasGlobMeta(pattern) {
			if !isRegularFile(target) {
				logger.Warnf("Report doesn't exist: '%s'", target)
				continue
			}
			add(target)
			continue
		}
		matches, err := expandGlob(target)
		if err != nil {
			logger.Warnf("Invalid report path pattern '%s': %v", pattern, err)
			continue
		}
		if len(matches) == 0 {
			logger.Infof("No report found for pattern '%s'", pattern)
			continue
		}
		for _, m := range matches {
			add(m)
		}
	}
	return found, nil
}

func expandGlob(pattern string) ([]string, error) {
	root, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
	matches, err := doublestar.Glob(os.DirFS(filepath.FromSlash(root)), rest, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(filepath.FromSlash(root), filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
