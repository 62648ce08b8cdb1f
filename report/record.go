package report

import (
	"errors"
	"strings"
)

// ErrReportUnreadable marks any failure to read or decode one report document.
var ErrReportUnreadable = errors.New("report unreadable")

// Line holds the JaCoCo counters reported for one source line.
type Line struct {
	Number              int `json:"nr"`
	MissedInstructions  int `json:"mi"`
	CoveredInstructions int `json:"ci"`
	MissedBranches      int `json:"mb"`
	CoveredBranches     int `json:"cb"`
}

// SourceFile is one <sourcefile> entry of a report. Lines are ordered by
// strictly increasing line number.
type SourceFile struct {
	PackageName string `json:"package"`
	Name        string `json:"name"`
	Lines       []Line `json:"lines"`
}

// Resolvable reports whether both the package and the file name are set.
// Default-package records have an empty package and are never resolved.
func (s SourceFile) Resolvable() bool {
	return s.PackageName != "" && s.Name != ""
}

// RootPackageName returns the first segment of the package path, or "" when
// the package has a single segment.
func (s SourceFile) RootPackageName() string {
	idx := strings.IndexByte(s.PackageName, '/')
	if idx < 0 {
		return ""
	}
	return s.PackageName[:idx]
}

// Report is the parsed content of one report location, in document order.
type Report struct {
	Location    string
	Name        string
	SourceFiles []SourceFile
}
