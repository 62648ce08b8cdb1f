//go:build trace

package tracing

import (
	"context"
	"os"
	"runtime/trace"
)

var traceFile *os.File

// Start writes the execution trace of the whole run to traceFilePath().
func Start() error {
	f, err := os.Create(traceFilePath())
	if err != nil {
		return err
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return err
	}
	traceFile = f
	return nil
}

func Stop() {
	trace.Stop()
	if traceFile != nil {
		traceFile.Close()
		traceFile = nil
	}
}

// ImportTask groups every report of one batch under a single trace task.
func ImportTask(ctx context.Context) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, taskImport)
	return ctx, task.End
}

// ReportRegion marks the processing of one report and tags it with the
// report location.
func ReportRegion(ctx context.Context, location string) func() {
	region := trace.StartRegion(ctx, regionReport)
	trace.Log(ctx, categoryReport, location)
	return region.End
}
