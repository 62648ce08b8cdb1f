package coverage

import (
	"errors"

	"covimport/project"
)

// ErrInvalidCoverageData is returned when a sink rejects coverage facts as
// structurally invalid for the target file.
var ErrInvalidCoverageData = errors.New("invalid coverage data")

// Sink receives coverage for matched project files.
type Sink interface {
	// NewCoverage begins a coverage session for file.
	NewCoverage(file project.File) (Coverage, error)
}

// Coverage is one file's pending coverage. Nothing is visible in the sink
// until Commit succeeds.
type Coverage interface {
	RecordLine(line, coveredInstructions, missedInstructions, coveredBranches, missedBranches int) error
	Commit() error
}
