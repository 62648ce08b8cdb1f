package coverage

import (
	"fmt"

	"covimport/project"
	"covimport/report"
)

// Apply writes the line facts of one source file into sink and commits them.
// A failure at any step leaves the sink untouched for that file.
func Apply(sink Sink, file project.File, lines []report.Line) error {
	cov, err := sink.NewCoverage(file)
	if err != nil {
		return fmt.Errorf("begin coverage for %s: %w", file, err)
	}
	for _, l := range lines {
		if err := cov.RecordLine(l.Number, l.CoveredInstructions, l.MissedInstructions, l.CoveredBranches, l.MissedBranches); err != nil {
			return fmt.Errorf("record line %d of %s: %w", l.Number, file, err)
		}
	}
	if err := cov.Commit(); err != nil {
		return fmt.Errorf("commit coverage for %s: %w", file, err)
	}
	return nil
}
