package project

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"covimport/logger"
	"covimport/utils"
)

// DefaultSourceDirs are the conventional Maven/Gradle source roots.
var DefaultSourceDirs = []string{
	"src/main/java",
	"src/main/kotlin",
	"src/main/scala",
	"src/main/groovy",
	"src/test/java",
	"src/test/kotlin",
}

var skippedDirs = map[string]struct{}{
	".git": {},
	".svn": {},
	".hg":  {},
}

// ScanOptions controls how the project tree is indexed.
type ScanOptions struct {
	BaseDir         string
	SourceDirs      []string
	IncludePatterns []string
	ExcludePatterns []string
}

// Scan walks every source directory under BaseDir and indexes regular files
// by their path relative to that source directory. Earlier source
// directories win on key collisions.
func Scan(ctx context.Context, opts ScanOptions) (*Index, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	base, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, err
	}
	sourceDirs := opts.SourceDirs
	if len(sourceDirs) == 0 {
		sourceDirs = DefaultSourceDirs
	}
	matcher := utils.NewPatternMatcher(opts.IncludePatterns, opts.ExcludePatterns)
	var w walker = fastWalker{}

	var files []File
	seen := make(map[string]string)
	for _, dir := range sourceDirs {
		root := utils.ResolvePath(base, filepath.FromSlash(dir))
		if !utils.IsPathWithin(root, []string{base}) {
			logger.Warnf("Source directory %s is outside of the project directory, skipping", dir)
			continue
		}
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			logger.Debugf("Source directory %s not found, skipping", dir)
			continue
		}
		sourceDir, err := utils.SlashRel(base, root)
		if err != nil {
			return nil, err
		}

		err = w.Walk(ctx, root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.Warnf("Failed to access %s: %v", path, err)
				return nil
			}
			if d == nil {
				return nil
			}
			if d.IsDir() {
				if _, skip := skippedDirs[d.Name()]; skip && path != root {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			projectRel, err := utils.SlashRel(base, path)
			if err != nil || !matcher.ShouldInclude(projectRel) {
				return nil
			}
			key, err := utils.SlashRel(root, path)
			if err != nil {
				return nil
			}
			if first, dup := seen[key]; dup {
				logger.Debugf("Ignoring %s: key %s already provided by %s", projectRel, key, first)
				return nil
			}
			seen[key] = projectRel
			files = append(files, File{Key: key, Path: path, SourceDir: sourceDir})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	logger.Debugf("Indexed %d source file(s) under %s", len(files), base)
	return NewIndex(files), nil
}
