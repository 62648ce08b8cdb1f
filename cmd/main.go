package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"covimport/config"
	"covimport/coverage"
	"covimport/diag"
	"covimport/importer"
	"covimport/logger"
	"covimport/output"
	"covimport/project"
	"covimport/report"
	"covimport/tracing"
)

func main() {
	if err := tracing.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start trace: %v\n", err)
	} else {
		defer tracing.Stop()
	}

	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.LogLevel)

	if cfg.TraceFlight {
		if err := tracing.StartFlightRecorder(cfg.TraceFlightMaxBytes, cfg.TraceFlightMinAge); err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			defer func() {
				if err := tracing.WriteFlightRecorder(cfg.TraceFlightFile); err != nil {
					logger.Warnf("Failed to write flight recorder: %v", err)
				}
				tracing.StopFlightRecorder()
			}()
		}
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go handleSignalEvent(ctx, cancel, cfg.TraceFlight, cfg.TraceFlightFile, sigChan)

	summary, err := run(ctx, cfg)
	if err != nil {
		logger.Fatalf("Import failed: %v", err)
	}
	if summary.Failed > 0 || summary.FilesFailed > 0 {
		logger.Warnf("Import completed with %d failed report(s) and %d failed file(s).", summary.Failed, summary.FilesFailed)
		return
	}
	logger.Info("Import completed successfully.")
}

// run indexes the project, imports every located report and writes the
// results. Only setup failures are returned; report and file failures are
// part of the summary.
func run(ctx context.Context, cfg *config.Config) (importer.Summary, error) {
	metrics := output.Metrics{StartTime: time.Now().Format(time.RFC3339)}

	writer, err := output.New(cfg, &metrics)
	if err != nil {
		return importer.Summary{}, fmt.Errorf("initialize output: %w", err)
	}
	defer writer.Close()

	index, err := project.Scan(ctx, project.ScanOptions{
		BaseDir:         cfg.ProjectDir,
		SourceDirs:      cfg.SourceDirs,
		IncludePatterns: cfg.IncludePatterns,
		ExcludePatterns: cfg.ExcludePatterns,
	})
	if err != nil {
		return importer.Summary{}, fmt.Errorf("index project files: %w", err)
	}
	logger.Infof("Indexed %d project file(s) under %s", index.Len(), cfg.ProjectDir)

	var done, total atomic.Int64
	var dumpFlight func(string) error
	if cfg.TraceFlight {
		dumpFlight = tracing.WriteFlightRecorder
	}
	store := coverage.NewStore(cfg.LineCacheSize)
	imp := importer.New(
		report.NewLocator(cfg.ProjectDir, cfg.ReportPaths),
		report.NewXMLParser(cfg.MmapMinSize),
		index,
		store,
		importer.Options{
			Concurrency:         cfg.ConcurrencyLevel,
			MaxReportsPerSecond: cfg.MaxReportsPerSecond,
			Describe:            true,
			OnLocate:            func(n int) { total.Store(int64(n)) },
			OnProgress:          func() { done.Add(1) },
		},
	)
	controller := diag.NewController(diag.Options{
		SlowImportThreshold: cfg.DiagSlowImportThreshold,
		Dir:                 cfg.DiagDir,
		GoroutineLeak:       cfg.DiagGoroutineLeak,
		ProgressCountFn:     done.Load,
		TotalFn:             total.Load,
		InFlightFn:          imp.InFlight,
		DumpFlightRecorder:  dumpFlight,
	})
	controller.Start(ctx)
	defer controller.Close()

	summary, err := imp.Run(ctx)
	if err != nil {
		return summary, err
	}

	for _, res := range summary.Results {
		writer.WriteReport(res)
	}
	for _, fc := range store.Files() {
		writer.WriteFile(fc)
	}

	output.MetricsFromSummary(&metrics, summary)
	metrics.EndTime = time.Now().Format(time.RFC3339)
	writer.SetMetrics(metrics)
	logger.Infof("Coverage of %d file(s) written to %s", writer.FilesWritten(), cfg.OutputFileName)
	return summary, nil
}

func handleSignalEvent(ctx context.Context, cancelFunc context.CancelFunc, traceFlight bool, traceFlightFile string, sigChan <-chan os.Signal) {
	select {
	case <-ctx.Done():
		return
	case <-sigChan:
	}
	logger.Info("Interrupt signal received. Shutting down...")

	if traceFlight {
		if err := tracing.WriteFlightRecorder(traceFlightFile); err != nil {
			logger.Warnf("Failed to write flight recorder: %v", err)
		}
	}

	cancelFunc()
}
