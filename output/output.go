package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"covimport/config"
	"covimport/logger"
)

// SchemaVersion is stamped on every emitted record.
const SchemaVersion = "1.0.0"

const (
	flushEveryRecords = 64
	flushMaxInterval  = 2 * time.Second
)

type Metrics struct {
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	ReportsDiscovered int    `json:"reports_discovered"`
	ReportsImported   int    `json:"reports_imported"`
	ReportsFailed     int    `json:"reports_failed"`
	FilesImported     int    `json:"files_imported"`
	FilesFailed       int    `json:"files_failed"`
	RecordsUnmatched  int    `json:"records_unmatched"`
	ReportsWritten    int    `json:"reports_written"`
	FilesWritten      int    `json:"files_written"`
}

type envelope struct {
	RecordType    string      `json:"record_type"`
	SchemaVersion string      `json:"schema_version"`
	Payload       interface{} `json:"payload"`
}

// Writer emits NDJSON records to a size-rotated file and, when configured,
// to an OTLP log endpoint.
type Writer struct {
	mu               sync.Mutex
	file             *os.File
	buf              *bufio.Writer
	metrics          *Metrics
	otel             *otelLogger
	base             string
	ext              string
	index            int
	size             int64
	maxSize          int64
	recordsSinceSync int
	lastSyncAt       time.Time
	reportsWritten   atomic.Int64
	filesWritten     atomic.Int64
}

func New(cfg *config.Config, m *Metrics) (*Writer, error) {
	ext := filepath.Ext(cfg.OutputFileName)
	base := strings.TrimSuffix(cfg.OutputFileName, ext)

	w := &Writer{
		metrics: m,
		base:    base,
		ext:     ext,
		maxSize: cfg.MaxOutputFileSize,
	}
	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else {
		w.otel = otel
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

// FileName returns the file currently written to.
func (w *Writer) FileName() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileNameLocked()
}

func (w *Writer) fileNameLocked() string {
	if w.index > 0 {
		return fmt.Sprintf("%s.%d%s", w.base, w.index, w.ext)
	}
	return w.base + w.ext
}

func (w *Writer) openFile() error {
	f, err := os.OpenFile(w.fileNameLocked(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 256*1024)
	w.size = 0
	w.recordsSinceSync = 0
	w.lastSyncAt = time.Now()
	return nil
}

// WriteRecord appends one record. Write failures are logged; output never
// aborts an import.
func (w *Writer) WriteRecord(recordType string, payload interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writeRecordLocked(recordType, payload)
}

func (w *Writer) writeRecordLocked(recordType string, payload interface{}) {
	if w.buf == nil {
		return
	}
	data, err := encodeLine(recordType, payload)
	if err != nil {
		logger.Warnf("Failed to encode %s record: %v", recordType, err)
		return
	}
	n, err := w.buf.Write(data)
	w.size += int64(n)
	if err != nil {
		logger.Warnf("Failed to write %s record: %v", recordType, err)
		return
	}
	w.recordsSinceSync++
	if w.shouldSync() {
		w.flush()
	}
	w.emitRecordLocked(recordType, payload)

	if w.maxSize > 0 && w.size >= w.maxSize {
		w.rotate()
	}
}

func (w *Writer) shouldSync() bool {
	if w.recordsSinceSync == 1 || w.recordsSinceSync >= flushEveryRecords {
		return true
	}
	return time.Since(w.lastSyncAt) >= flushMaxInterval
}

func (w *Writer) SetMetrics(m Metrics) {
	w.mu.Lock()
	defer w.mu.Unlock()
	m.ReportsWritten = int(w.reportsWritten.Load())
	m.FilesWritten = int(w.filesWritten.Load())
	w.metrics = &m
}

func (w *Writer) ReportsWritten() int { return int(w.reportsWritten.Load()) }

func (w *Writer) FilesWritten() int { return int(w.filesWritten.Load()) }

// Close writes the metrics record, closes the file and flushes the OTLP
// exporter.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.metrics != nil {
		w.writeRecordLocked("metrics", w.metrics)
	}
	w.closeFile()
	if w.otel != nil {
		w.otel.Shutdown()
	}
}

func (w *Writer) rotate() {
	w.closeFile()
	w.index++
	if err := w.openFile(); err != nil {
		logger.Errorf("Failed to rotate output file: %v", err)
		w.file = nil
		w.buf = nil
	}
}

func (w *Writer) closeFile() {
	if w.file == nil {
		return
	}
	w.flush()
	_ = w.file.Sync()
	_ = w.file.Close()
	w.file = nil
	w.buf = nil
}

func (w *Writer) flush() {
	if w.buf != nil {
		if err := w.buf.Flush(); err != nil {
			logger.Warnf("Failed to flush output: %v", err)
		}
	}
	w.recordsSinceSync = 0
	w.lastSyncAt = time.Now()
}

func (w *Writer) emitRecordLocked(recordType string, payload interface{}) {
	if w.otel == nil {
		return
	}
	w.otel.Emit(recordType, payload)
}
