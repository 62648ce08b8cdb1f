package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"covimport/coverage"
	"covimport/logger"
	"covimport/project"
	"covimport/report"
	"covimport/tracing"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

// Locator discovers report locations.
type Locator interface {
	Locate(ctx context.Context) ([]string, error)
}

// Options tune a batch run.
type Options struct {
	// Concurrency is the number of reports processed at once. Values below
	// one mean one.
	Concurrency int
	// MaxReportsPerSecond throttles report reads. Zero disables throttling.
	MaxReportsPerSecond int
	// Describe attaches size, times and digests of each report to its result.
	Describe bool
	// OnLocate receives the number of discovered reports before any is read.
	OnLocate func(total int)
	// OnProgress is called after each report finishes.
	OnProgress func()
}

// Importer drives the import of every located report into a coverage sink.
type Importer struct {
	locator  Locator
	parser   report.Parser
	resolver Resolver
	sink     coverage.Sink
	opts     Options
	describe func(string) (report.Metadata, error)

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(locator Locator, parser report.Parser, resolver Resolver, sink coverage.Sink, opts Options) *Importer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Importer{
		locator:  locator,
		parser:   parser,
		resolver: resolver,
		sink:     sink,
		opts:     opts,
		describe: report.Describe,
		inFlight: make(map[string]struct{}),
	}
}

// InFlight returns the reports currently being read, sorted.
func (im *Importer) InFlight() []string {
	im.mu.Lock()
	defer im.mu.Unlock()
	out := make([]string, 0, len(im.inFlight))
	for loc := range im.inFlight {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

func (im *Importer) track(location string) func() {
	im.mu.Lock()
	im.inFlight[location] = struct{}{}
	im.mu.Unlock()
	return func() {
		im.mu.Lock()
		delete(im.inFlight, location)
		im.mu.Unlock()
	}
}

// Run locates and imports every report. A failing report or file never stops
// the batch; only a failure to locate reports is returned as an error.
func (im *Importer) Run(ctx context.Context) (Summary, error) {
	ctx, endTask := tracing.ImportTask(ctx)
	defer endTask()

	locations, err := im.locator.Locate(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("locate reports: %w", err)
	}
	summary := Summary{Discovered: len(locations)}
	if im.opts.OnLocate != nil {
		im.opts.OnLocate(len(locations))
	}
	if len(locations) == 0 {
		logger.Info("No report imported")
		return summary, nil
	}
	logger.Infof("Importing %d report(s). Turn your logs in debug mode in order to see the exhaustive list.", len(locations))

	bar := progressbar.NewOptions(len(locations),
		progressbar.OptionSetDescription("Importing reports"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetVisibility(progressVisible()),
		progressbar.OptionFullWidth(),
	)
	progressCh := make(chan int, max(im.opts.Concurrency*4, 64))
	var progressWG sync.WaitGroup
	progressWG.Add(1)
	go func() {
		defer progressWG.Done()
		for delta := range progressCh {
			_ = bar.Add(delta)
			if im.opts.OnProgress != nil {
				im.opts.OnProgress()
			}
		}
	}()

	var limiter *rate.Limiter
	if im.opts.MaxReportsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(im.opts.MaxReportsPerSecond), im.opts.MaxReportsPerSecond)
	}

	results := make([]*ReportResult, len(locations))
	tasks := make(chan int, im.opts.Concurrency)
	go func() {
		defer close(tasks)
		for i := range locations {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case tasks <- i:
			}
		}
	}()

	var wg sync.WaitGroup
	for range im.opts.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				if ctx.Err() != nil {
					continue
				}
				res := im.importLocation(ctx, locations[i])
				if res != nil {
					results[i] = res
				}
				progressCh <- 1
			}
		}()
	}
	wg.Wait()
	close(progressCh)
	progressWG.Wait()
	_ = bar.Finish()

	for _, res := range results {
		if res != nil {
			summary.add(*res)
		}
	}
	logger.Infof("Imported coverage from %d/%d report(s) (%d file(s), %d unmatched record(s), %d file error(s))",
		summary.Imported, summary.Discovered, summary.FilesImported, summary.Unmatched, summary.FilesFailed)
	return summary, nil
}

// importLocation returns nil when the report was abandoned because ctx was
// cancelled before anything from it was committed.
func (im *Importer) importLocation(ctx context.Context, location string) *ReportResult {
	defer tracing.ReportRegion(ctx, location)()
	defer im.track(location)()
	logger.Debugf("Reading report '%s'", location)

	res := im.importReport(ctx, location)
	if res.Err != nil {
		if ctx.Err() != nil && res.FilesImported == 0 && isContextError(res.Err) {
			logger.Debugf("Import of report '%s' cancelled", location)
			return nil
		}
		logger.Errorf("Coverage report '%s' could not be read/imported. Error: %v", location, res.Err)
	}
	if im.opts.Describe {
		md, err := im.describe(location)
		if err != nil {
			logger.Warnf("Failed to describe report '%s': %v", location, err)
		} else {
			res.Metadata = &md
		}
	}
	return &res
}

func (im *Importer) importReport(ctx context.Context, location string) (res ReportResult) {
	res.Location = location
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%w: panic: %v", report.ErrReportUnreadable, r)
		}
	}()

	rep, err := im.parser.Parse(ctx, location)
	if err != nil {
		res.Err = err
		return res
	}
	res.Records = len(rep.SourceFiles)
	if len(rep.SourceFiles) == 0 {
		return res
	}

	records := make([]report.SourceFile, 0, len(rep.SourceFiles))
	for _, sf := range rep.SourceFiles {
		if !sf.Resolvable() {
			res.Unmatched++
			logger.Debugf("Skipping '%s' of the default package in report '%s'", sf.Name, location)
			continue
		}
		records = append(records, sf)
	}
	if len(records) == 0 {
		return res
	}

	res.Scheme = DecideScheme(im.resolver, records[0])
	if res.Scheme.StrippedRootPrefix {
		logger.Debugf("Report '%s' duplicates the root package in its package paths", location)
	}

	for _, sf := range records {
		pkg := res.Scheme.EffectivePackage(sf)
		file, ok := im.resolver.Resolve(pkg, sf.Name)
		if !ok {
			res.Unmatched++
			logger.Debugf("No project file for '%s' in report '%s'", project.CandidateKey(pkg, sf.Name), location)
			continue
		}
		if err := coverage.Apply(im.sink, file, sf.Lines); err != nil {
			logger.Errorf("Cannot import coverage information for file '%s', coverage data is invalid. Error: %v", file, err)
			res.FileFailures = append(res.FileFailures, FileFailure{File: file, Err: err})
			continue
		}
		res.FilesImported++
	}
	return res
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("COVIMPORT_DISABLE_PROGRESS")))
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return false
	}
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
