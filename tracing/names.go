package tracing

import "os"

// Task, region and log category names seen in `go tool trace`.
const (
	taskImport     = "covimport.import"
	regionReport   = "covimport.report"
	categoryReport = "covimport.report.location"
)

// DefaultTraceFile receives the execution trace of a traced build unless
// COVIMPORT_TRACE_FILE names another file.
const DefaultTraceFile = "covimport-trace.out"

func traceFilePath() string {
	if p := os.Getenv("COVIMPORT_TRACE_FILE"); p != "" {
		return p
	}
	return DefaultTraceFile
}
