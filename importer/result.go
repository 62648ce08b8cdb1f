package importer

import (
	"covimport/project"
	"covimport/report"
)

// FileFailure is a matched file whose coverage the sink rejected.
type FileFailure struct {
	File project.File
	Err  error
}

// ReportResult is the outcome of importing one report. Err is nil when the
// report was read and processed; file failures do not fail the report.
type ReportResult struct {
	Location      string
	Metadata      *report.Metadata
	Scheme        PackageScheme
	Records       int
	FilesImported int
	Unmatched     int
	FileFailures  []FileFailure
	Err           error
}

// Imported reports whether the report was read and processed.
func (r ReportResult) Imported() bool { return r.Err == nil }

// Summary aggregates a batch. Results keep discovery order and omit reports
// that were never scheduled because the run was cancelled.
type Summary struct {
	Discovered    int
	Imported      int
	Failed        int
	FilesImported int
	FilesFailed   int
	Unmatched     int
	Results       []ReportResult
}

func (s *Summary) add(r ReportResult) {
	s.Results = append(s.Results, r)
	if r.Err != nil {
		s.Failed++
	} else {
		s.Imported++
	}
	// Files committed before a report failed stay committed.
	s.FilesImported += r.FilesImported
	s.FilesFailed += len(r.FileFailures)
	s.Unmatched += r.Unmatched
}
