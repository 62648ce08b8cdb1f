package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"covimport/logger"
)

const artifactPrefix = "covimport"

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

type Options struct {
	// SlowImportThreshold enables the stall watchdog when positive.
	SlowImportThreshold time.Duration
	Dir                 string
	GoroutineLeak       bool
	// ProgressCountFn reports how many reports have finished so far.
	ProgressCountFn func() int64
	// TotalFn reports how many reports the run is expected to process.
	TotalFn func() int64
	// InFlightFn lists the reports being read when a stall is detected.
	InFlightFn         func() []string
	DumpFlightRecorder func(path string) error
	NowFn              func() time.Time
	ProfileLookupFn    func(name string) profileWriter
}

// Controller watches import progress and writes diagnostic artifacts when it
// stalls for longer than the configured threshold.
type Controller struct {
	threshold          time.Duration
	dir                string
	goroutineLeak      bool
	progressCountFn    func() int64
	totalFn            func() int64
	inFlightFn         func() []string
	dumpFlightRecorder func(path string) error
	nowFn              func() time.Time
	profileLookupFn    func(name string) profileWriter

	mu             sync.Mutex
	lastProgressAt time.Time
	lastProgress   int64
	lastDumpAt     time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewController(opts Options) *Controller {
	nowFn := opts.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	profileLookup := opts.ProfileLookupFn
	if profileLookup == nil {
		profileLookup = func(name string) profileWriter {
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	return &Controller{
		threshold:          opts.SlowImportThreshold,
		dir:                dir,
		goroutineLeak:      opts.GoroutineLeak,
		progressCountFn:    opts.ProgressCountFn,
		totalFn:            opts.TotalFn,
		inFlightFn:         opts.InFlightFn,
		dumpFlightRecorder: opts.DumpFlightRecorder,
		nowFn:              nowFn,
		profileLookupFn:    profileLookup,
	}
}

func (c *Controller) Start(ctx context.Context) {
	if c == nil || c.threshold <= 0 || c.progressCountFn == nil || c.stopCh != nil {
		return
	}

	now := c.nowFn()
	c.mu.Lock()
	c.lastProgress = c.progressCountFn()
	c.lastProgressAt = now
	c.lastDumpAt = time.Time{}
	c.mu.Unlock()

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	interval := probeInterval(c.threshold)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(c.doneCh)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.runProbe(c.nowFn())
			}
		}
	}()
}

func probeInterval(threshold time.Duration) time.Duration {
	interval := threshold / 2
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return min(interval, 2*time.Second)
}

func (c *Controller) Close() {
	if c == nil {
		return
	}
	if c.stopCh != nil {
		close(c.stopCh)
		if c.doneCh != nil {
			<-c.doneCh
		}
		c.stopCh = nil
		c.doneCh = nil
	}

	if c.goroutineLeak {
		if _, err := c.writeProfile("goroutine", 2); err != nil {
			logger.Warnf("Diagnostics goroutine profile dump failed: %v", err)
		}
	}
}

func (c *Controller) runProbe(now time.Time) {
	if c == nil || c.progressCountFn == nil || c.threshold <= 0 {
		return
	}

	progress := c.progressCountFn()

	c.mu.Lock()
	if progress != c.lastProgress || c.lastProgressAt.IsZero() {
		c.lastProgress = progress
		c.lastProgressAt = now
		c.mu.Unlock()
		return
	}
	stalledFor := now.Sub(c.lastProgressAt)
	shouldDump := stalledFor >= c.threshold &&
		(c.lastDumpAt.IsZero() || now.Sub(c.lastDumpAt) >= c.threshold)
	if shouldDump {
		c.lastDumpAt = now
	}
	c.mu.Unlock()

	if shouldDump {
		logger.Warnf("Import made no progress for %s (%d report(s) done)", stalledFor.Round(time.Millisecond), progress)
		if err := c.dumpSlowImportArtifacts(now, progress, stalledFor); err != nil {
			logger.Warnf("Diagnostics slow-import dump failed: %v", err)
		}
	}
}

func (c *Controller) dumpSlowImportArtifacts(now time.Time, progress int64, stalledFor time.Duration) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}
	ts := stamp(now)
	eventPath := filepath.Join(c.dir, fmt.Sprintf("%s-slow-import-%s.json", artifactPrefix, ts))
	event := map[string]interface{}{
		"event":               "slow_import_threshold_exceeded",
		"timestamp":           now.UTC().Format(time.RFC3339Nano),
		"reports_done":        progress,
		"threshold_ms":        c.threshold.Milliseconds(),
		"observed_stalled_ms": stalledFor.Milliseconds(),
	}
	if c.totalFn != nil {
		event["reports_total"] = c.totalFn()
	}
	if c.inFlightFn != nil {
		event["reports_in_flight"] = c.inFlightFn()
	}
	b, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(eventPath, b, 0600); err != nil {
		return err
	}

	if c.dumpFlightRecorder != nil {
		tracePath := filepath.Join(c.dir, fmt.Sprintf("%s-flight-%s.out", artifactPrefix, ts))
		if err := c.dumpFlightRecorder(tracePath); err != nil {
			logger.Warnf("Diagnostics flight recorder dump failed: %v", err)
		}
	}
	return nil
}

func (c *Controller) writeProfile(name string, debug int) (string, error) {
	if c == nil {
		return "", fmt.Errorf("diagnostics controller is nil")
	}
	if c.profileLookupFn == nil {
		return "", fmt.Errorf("profile lookup function is nil")
	}
	profile := c.profileLookupFn(name)
	if profile == nil {
		return "", fmt.Errorf("pprof profile %q unavailable", name)
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(c.dir, fmt.Sprintf("%s-%s-profile-%s.pprof", artifactPrefix, name, stamp(c.nowFn())))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := profile.WriteTo(f, debug); err != nil {
		return "", err
	}
	return path, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format("20060102-150405.000")
}
