package output

import (
	"path"
	"path/filepath"
	"sort"

	"covimport/coverage"
	"covimport/importer"
)

type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// ReportRecord describes one imported or failed report.
type ReportRecord struct {
	Location      string            `json:"location"`
	Name          string            `json:"name"`
	PackageScheme string            `json:"package_scheme"`
	Records       int               `json:"records"`
	FilesImported int               `json:"files_imported"`
	Unmatched     int               `json:"unmatched"`
	FileErrors    []FileError       `json:"file_errors,omitempty"`
	Error         string            `json:"error,omitempty"`
	Size          int64             `json:"size,omitempty"`
	ModTime       string            `json:"mod_time,omitempty"`
	CreationTime  string            `json:"creation_time,omitempty"`
	Digests       map[string]string `json:"digests,omitempty"`
}

type LineRecord struct {
	Line              int  `json:"line"`
	Hits              *int `json:"hits,omitempty"`
	Conditions        int  `json:"conditions,omitempty"`
	CoveredConditions int  `json:"covered_conditions,omitempty"`
}

// FileRecord is the merged coverage of one project file.
type FileRecord struct {
	Key               string       `json:"key"`
	SourceDir         string       `json:"source_dir,omitempty"`
	Path              string       `json:"path"`
	Name              string       `json:"name"`
	LineCount         int          `json:"line_count"`
	LinesToCover      int          `json:"lines_to_cover"`
	CoveredLines      int          `json:"covered_lines"`
	ConditionsToCover int          `json:"conditions_to_cover"`
	CoveredConditions int          `json:"covered_conditions"`
	Reports           int          `json:"reports"`
	Lines             []LineRecord `json:"lines"`
}

func NewReportRecord(res importer.ReportResult) ReportRecord {
	rec := ReportRecord{
		Location:      res.Location,
		Name:          filepath.Base(res.Location),
		PackageScheme: res.Scheme.String(),
		Records:       res.Records,
		FilesImported: res.FilesImported,
		Unmatched:     res.Unmatched,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	for _, ff := range res.FileFailures {
		rec.FileErrors = append(rec.FileErrors, FileError{File: ff.File.String(), Error: ff.Err.Error()})
	}
	if md := res.Metadata; md != nil {
		rec.Size = md.Size
		rec.ModTime = md.ModTime
		rec.CreationTime = md.CreationTime
		rec.Digests = md.Digests
	}
	return rec
}

func NewFileRecord(fc coverage.FileCoverage) FileRecord {
	rec := FileRecord{
		Key:               fc.File.Key,
		SourceDir:         fc.File.SourceDir,
		Path:              fc.File.Path,
		Name:              path.Base(fc.File.Key),
		LineCount:         fc.LineCount,
		LinesToCover:      fc.LinesToCover(),
		CoveredLines:      fc.CoveredLines(),
		ConditionsToCover: fc.ConditionsToCover(),
		CoveredConditions: fc.CoveredConditions(),
		Reports:           fc.Reports,
	}
	lines := make(map[int]*LineRecord, len(fc.Hits))
	get := func(n int) *LineRecord {
		if l, ok := lines[n]; ok {
			return l
		}
		l := &LineRecord{Line: n}
		lines[n] = l
		return l
	}
	for n, hits := range fc.Hits {
		h := hits
		get(n).Hits = &h
	}
	for n, c := range fc.Conditions {
		l := get(n)
		l.Conditions = c.Total
		l.CoveredConditions = c.Covered
	}
	rec.Lines = make([]LineRecord, 0, len(lines))
	for _, l := range lines {
		rec.Lines = append(rec.Lines, *l)
	}
	sort.Slice(rec.Lines, func(i, j int) bool { return rec.Lines[i].Line < rec.Lines[j].Line })
	return rec
}

// WriteReport records the outcome of one report.
func (w *Writer) WriteReport(res importer.ReportResult) {
	w.WriteRecord("report", NewReportRecord(res))
	w.reportsWritten.Add(1)
}

// WriteFile records the merged coverage of one file.
func (w *Writer) WriteFile(fc coverage.FileCoverage) {
	w.WriteRecord("file", NewFileRecord(fc))
	w.filesWritten.Add(1)
}

// MetricsFromSummary copies batch counters into m.
func MetricsFromSummary(m *Metrics, s importer.Summary) {
	m.ReportsDiscovered = s.Discovered
	m.ReportsImported = s.Imported
	m.ReportsFailed = s.Failed
	m.FilesImported = s.FilesImported
	m.FilesFailed = s.FilesFailed
	m.RecordsUnmatched = s.Unmatched
}
