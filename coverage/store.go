package coverage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"covimport/project"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultLineCountCacheSize = 4096

// Conditions are the branch counters of one line.
type Conditions struct {
	Total   int `json:"total"`
	Covered int `json:"covered"`
}

// FileCoverage is the committed coverage of one project file, merged across
// every report that covered it.
type FileCoverage struct {
	File       project.File       `json:"file"`
	LineCount  int                `json:"line_count"`
	Hits       map[int]int        `json:"hits"`
	Conditions map[int]Conditions `json:"conditions,omitempty"`
	Reports    int                `json:"reports"`
}

func (fc FileCoverage) LinesToCover() int { return len(fc.Hits) }

func (fc FileCoverage) CoveredLines() int {
	n := 0
	for _, h := range fc.Hits {
		if h > 0 {
			n++
		}
	}
	return n
}

func (fc FileCoverage) ConditionsToCover() int {
	n := 0
	for _, c := range fc.Conditions {
		n += c.Total
	}
	return n
}

func (fc FileCoverage) CoveredConditions() int {
	n := 0
	for _, c := range fc.Conditions {
		n += c.Covered
	}
	return n
}

// Store is an in-memory coverage sink. It validates line numbers against
// the file on disk and merges coverage committed by several reports.
type Store struct {
	mu         sync.Mutex
	files      map[string]*FileCoverage
	lineCounts *lru.Cache[string, int]
	countLines func(path string) (int, error)
}

// NewStore creates a Store whose line-count cache holds up to cacheSize
// files.
func NewStore(cacheSize int) *Store {
	if cacheSize <= 0 {
		cacheSize = defaultLineCountCacheSize
	}
	cache, err := lru.New[string, int](cacheSize)
	if err != nil {
		panic(err)
	}
	return &Store{
		files:      make(map[string]*FileCoverage),
		lineCounts: cache,
		countLines: countFileLines,
	}
}

func (s *Store) NewCoverage(file project.File) (Coverage, error) {
	lines, err := s.lineCount(file.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", ErrInvalidCoverageData, file, err)
	}
	return &session{
		store:      s,
		file:       file,
		lineCount:  lines,
		hits:       make(map[int]int),
		conditions: make(map[int]Conditions),
		recorded:   make(map[int]struct{}),
	}, nil
}

func (s *Store) lineCount(path string) (int, error) {
	if n, ok := s.lineCounts.Get(path); ok {
		return n, nil
	}
	n, err := s.countLines(path)
	if err != nil {
		return 0, err
	}
	s.lineCounts.Add(path, n)
	return n, nil
}

// Files returns a snapshot of committed coverage sorted by file.
func (s *Store) Files() []FileCoverage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileCoverage, 0, len(s.files))
	for _, fc := range s.files {
		cp := *fc
		cp.Hits = make(map[int]int, len(fc.Hits))
		for k, v := range fc.Hits {
			cp.Hits[k] = v
		}
		cp.Conditions = make(map[int]Conditions, len(fc.Conditions))
		for k, v := range fc.Conditions {
			cp.Conditions[k] = v
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File.String() < out[j].File.String() })
	return out
}

// Len returns the number of files with committed coverage.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

func (s *Store) merge(cov *session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.files[cov.file.Path]
	if ok {
		for line, c := range cov.conditions {
			if prev, found := existing.Conditions[line]; found && prev.Total != c.Total {
				return fmt.Errorf("%w: line %d has %d conditions, previously recorded %d", ErrInvalidCoverageData, line, c.Total, prev.Total)
			}
		}
	} else {
		existing = &FileCoverage{
			File:       cov.file,
			LineCount:  cov.lineCount,
			Hits:       make(map[int]int, len(cov.hits)),
			Conditions: make(map[int]Conditions, len(cov.conditions)),
		}
		s.files[cov.file.Path] = existing
	}

	for line, h := range cov.hits {
		existing.Hits[line] += h
	}
	for line, c := range cov.conditions {
		prev, found := existing.Conditions[line]
		if found && prev.Covered > c.Covered {
			c.Covered = prev.Covered
		}
		existing.Conditions[line] = c
	}
	existing.Reports++
	return nil
}

type session struct {
	store      *Store
	file       project.File
	lineCount  int
	hits       map[int]int
	conditions map[int]Conditions
	recorded   map[int]struct{}
	committed  bool
}

func (c *session) RecordLine(line, coveredInstructions, missedInstructions, coveredBranches, missedBranches int) error {
	if c.committed {
		return fmt.Errorf("%w: coverage for %s already committed", ErrInvalidCoverageData, c.file)
	}
	if line < 1 || line > c.lineCount {
		return fmt.Errorf("%w: line %d is out of range, %s has %d line(s)", ErrInvalidCoverageData, line, c.file, c.lineCount)
	}
	if coveredInstructions < 0 || missedInstructions < 0 || coveredBranches < 0 || missedBranches < 0 {
		return fmt.Errorf("%w: negative counter on line %d", ErrInvalidCoverageData, line)
	}
	if _, dup := c.recorded[line]; dup {
		return fmt.Errorf("%w: line %d recorded twice", ErrInvalidCoverageData, line)
	}
	c.recorded[line] = struct{}{}

	if coveredInstructions+missedInstructions > 0 {
		hits := 0
		if coveredInstructions > 0 {
			hits = 1
		}
		c.hits[line] = hits
	}
	if coveredBranches+missedBranches > 0 {
		c.conditions[line] = Conditions{Total: coveredBranches + missedBranches, Covered: coveredBranches}
	}
	return nil
}

func (c *session) Commit() error {
	if c.committed {
		return fmt.Errorf("%w: coverage for %s already committed", ErrInvalidCoverageData, c.file)
	}
	if err := c.store.merge(c); err != nil {
		return err
	}
	c.committed = true
	return nil
}

func countFileLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	lines := 0
	last := byte('\n')
	for {
		n, err := f.Read(buf)
		if n > 0 {
			lines += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		lines++
	}
	return lines, nil
}
