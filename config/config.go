package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"covimport/version"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const (
	envProjectDir  = "COVIMPORT_PROJECT_DIR"
	envReportPaths = "COVIMPORT_REPORT_PATHS"
	envLogLevel    = "COVIMPORT_LOG_LEVEL"
)

type Config struct {
	ProjectDir              string            `json:"project_dir"`
	ReportPaths             []string          `json:"report_paths"`
	SourceDirs              []string          `json:"source_dirs"`
	IncludePatterns         []string          `json:"include_patterns"`
	ExcludePatterns         []string          `json:"exclude_patterns"`
	ConcurrencyLevel        int               `json:"concurrency"`
	MaxReportsPerSecond     int               `json:"max_reports_per_second"`
	MmapMinSize             int64             `json:"mmap_min_size"`
	LineCacheSize           int               `json:"line_cache_size"`
	OutputFileName          string            `json:"output_file_name"`
	MaxOutputFileSize       int64             `json:"max_output_file_size"`
	LogLevel                string            `json:"log_level"`
	ConfigFile              string            `json:"config_file"`
	EnvFile                 string            `json:"-"`
	DiagSlowImportThreshold time.Duration     `json:"diag_slow_import_threshold"`
	DiagDir                 string            `json:"diag_dir"`
	DiagGoroutineLeak       bool              `json:"diag_goroutine_leak"`
	OtelEndpoint            string            `json:"otel_endpoint"`
	OtelFromEnv             bool              `json:"otel_from_env"`
	OtelHeaders             map[string]string `json:"otel_headers"`
	OtelServiceName         string            `json:"otel_service_name"`
	OtelTimeout             time.Duration     `json:"otel_timeout"`
	OtelExportPaths         bool              `json:"otel_export_paths"`
	TraceFlight             bool              `json:"trace_flight"`
	TraceFlightFile         string            `json:"trace_flight_file"`
	TraceFlightMaxBytes     uint64            `json:"trace_flight_max_bytes"`
	TraceFlightMinAge       time.Duration     `json:"trace_flight_min_age"`
}

func defaults() *Config {
	now := time.Now().UTC()
	timestamp := now.Format("20060102-150405")
	return &Config{
		ProjectDir:              ".",
		ReportPaths:             []string{},
		SourceDirs:              []string{},
		IncludePatterns:         []string{},
		ExcludePatterns:         []string{},
		ConcurrencyLevel:        1,
		MaxReportsPerSecond:     0,
		MmapMinSize:             4 * 1024 * 1024,
		LineCacheSize:           4096,
		OutputFileName:          fmt.Sprintf("covimport-%s-%d.ndjson", timestamp, now.Unix()),
		MaxOutputFileSize:       104857600,
		LogLevel:                "info",
		EnvFile:                 ".env",
		DiagSlowImportThreshold: 0,
		DiagDir:                 ".",
		DiagGoroutineLeak:       false,
		OtelEndpoint:            "",
		OtelFromEnv:             false,
		OtelHeaders:             map[string]string{},
		OtelServiceName:         "covimport",
		OtelTimeout:             5 * time.Second,
		OtelExportPaths:         false,
		TraceFlight:             false,
		TraceFlightFile:         "trace-flight.out",
		TraceFlightMaxBytes:     0,
		TraceFlightMinAge:       0,
	}
}

func LoadConfig() (*Config, error) {
	cfg := defaults()

	projectDir := flag.String("project-dir", cfg.ProjectDir, fmt.Sprintf("Project base directory (default: %s).", cfg.ProjectDir))
	reportPaths := flag.String("report-paths", "", "Comma-separated report paths or glob patterns, relative to the project directory (default: conventional JaCoCo locations).")
	sourceDirs := flag.String("source-dirs", "", "Comma-separated source directories, relative to the project directory (default: src/main/java, src/main/kotlin, ...).")
	includes := flag.String("include", "", "Comma-separated list of include patterns for project files (default: none).")
	excludes := flag.String("exclude", "", "Comma-separated list of exclude patterns for project files (default: none).")
	concurrency := flag.Int("concurrency", cfg.ConcurrencyLevel, fmt.Sprintf("Number of reports imported in parallel (default: %d).", cfg.ConcurrencyLevel))
	maxReports := flag.Int("max-reports-per-second", cfg.MaxReportsPerSecond, "Maximum reports read per second (default: 0, unlimited).")
	mmapMinSize := flag.Int64("mmap-min-size", cfg.MmapMinSize, fmt.Sprintf("Minimum report size in bytes read through mmap (default: %d).", cfg.MmapMinSize))
	lineCacheSize := flag.Int("line-cache-size", cfg.LineCacheSize, fmt.Sprintf("Number of source file line counts kept in memory (default: %d).", cfg.LineCacheSize))
	output := flag.String("output", cfg.OutputFileName, "Output file name (default: covimport-<timestamp>-<unix>.ndjson).")
	maxOutputFileSize := flag.Int64("max-output-file-size", cfg.MaxOutputFileSize, fmt.Sprintf("Maximum output file size before rotation in bytes (default: %d).", cfg.MaxOutputFileSize))
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	configFile := flag.String("config", "", "Path to JSON or YAML configuration file (default: none).")
	envFile := flag.String("env-file", cfg.EnvFile, fmt.Sprintf("Path to a dotenv file read before other settings (default: %s).", cfg.EnvFile))
	diagSlowImportThreshold := flag.Duration(
		"diag-slow-import-threshold",
		cfg.DiagSlowImportThreshold,
		"If positive, emit diagnostics when import progress stalls for this duration (default: 0/off).",
	)
	diagDir := flag.String("diag-dir", cfg.DiagDir, "Diagnostics output directory (default: current directory).")
	diagGoroutineLeak := flag.Bool(
		"diag-goroutine-leak",
		cfg.DiagGoroutineLeak,
		"Write goroutine leak profile on shutdown (default: false).",
	)
	otelEndpoint := flag.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint (default: none).")
	otelFromEnv := flag.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: covimport).")
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportPaths := flag.Bool("otel-export-paths", cfg.OtelExportPaths, "Include report and source file paths in OTEL payloads (default: false).")
	traceFlight := flag.Bool("trace-flight", cfg.TraceFlight, fmt.Sprintf("Enable flight recorder tracing (default: %t).", cfg.TraceFlight))
	traceFlightFile := flag.String("trace-flight-file", cfg.TraceFlightFile, fmt.Sprintf("Flight recorder output file (default: %s).", cfg.TraceFlightFile))
	traceFlightMaxBytes := flag.Uint64("trace-flight-max-bytes", cfg.TraceFlightMaxBytes, "Max bytes for flight recorder buffer (default: 0 for runtime default).")
	traceFlightMinAge := flag.Duration("trace-flight-min-age", cfg.TraceFlightMinAge, "Minimum age of trace events to retain (default: 0).")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = displayHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("covimport version %s\n", version.Version)
		os.Exit(0)
	}

	cfg.EnvFile = *envFile
	if err := loadEnvFile(cfg.EnvFile); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "project-dir":
			cfg.ProjectDir = strings.TrimSpace(*projectDir)
		case "report-paths":
			cfg.ReportPaths = parseCommaSeparated(*reportPaths)
		case "source-dirs":
			cfg.SourceDirs = parseCommaSeparated(*sourceDirs)
		case "include":
			cfg.IncludePatterns = parseCommaSeparated(*includes)
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(*excludes)
		case "concurrency":
			cfg.ConcurrencyLevel = *concurrency
		case "max-reports-per-second":
			cfg.MaxReportsPerSecond = *maxReports
		case "mmap-min-size":
			cfg.MmapMinSize = *mmapMinSize
		case "line-cache-size":
			cfg.LineCacheSize = *lineCacheSize
		case "output":
			cfg.OutputFileName = *output
		case "max-output-file-size":
			cfg.MaxOutputFileSize = *maxOutputFileSize
		case "log-level":
			cfg.LogLevel = *logLevel
		case "diag-slow-import-threshold":
			cfg.DiagSlowImportThreshold = *diagSlowImportThreshold
		case "diag-dir":
			cfg.DiagDir = strings.TrimSpace(*diagDir)
		case "diag-goroutine-leak":
			cfg.DiagGoroutineLeak = *diagGoroutineLeak
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-paths":
			cfg.OtelExportPaths = *otelExportPaths
		case "trace-flight":
			cfg.TraceFlight = *traceFlight
		case "trace-flight-file":
			cfg.TraceFlightFile = *traceFlightFile
		case "trace-flight-max-bytes":
			cfg.TraceFlightMaxBytes = *traceFlightMaxBytes
		case "trace-flight-min-age":
			cfg.TraceFlightMinAge = *traceFlightMinAge
		}
	})
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func displayHelp() {
	fmt.Println("covimport - JaCoCo coverage report importer")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  covimport [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  covimport --project-dir ./service")
	fmt.Println("  covimport --report-paths \"build/reports/jacoco/**/*.xml,target/site/jacoco/jacoco.xml\"")
	fmt.Println("  covimport --config covimport.yaml --concurrency 4")
}

// loadEnvFile exports variables from a dotenv file without overriding the
// process environment. A missing file is not an error.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not load env file: %w", err)
	}
	return nil
}

func (cfg *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(envProjectDir)); v != "" {
		cfg.ProjectDir = v
	}
	if v := strings.TrimSpace(os.Getenv(envReportPaths)); v != "" {
		cfg.ReportPaths = parseCommaSeparated(v)
	}
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		cfg.LogLevel = v
	}
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config file format: %w", err)
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.ProjectDir = strings.TrimSpace(cfg.ProjectDir)
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = "."
	}
	cfg.ReportPaths = compact(cfg.ReportPaths)
	cfg.SourceDirs = compact(cfg.SourceDirs)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if strings.TrimSpace(cfg.DiagDir) == "" {
		cfg.DiagDir = "."
	}
	if strings.TrimSpace(cfg.OtelServiceName) == "" {
		cfg.OtelServiceName = "covimport"
	}
	if cfg.TraceFlight && cfg.TraceFlightFile == "" {
		cfg.TraceFlightFile = "trace-flight.out"
	}
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.ProjectDir) == "" {
		return fmt.Errorf("project directory must be specified")
	}
	if info, err := os.Stat(cfg.ProjectDir); err != nil {
		return fmt.Errorf("invalid project directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("project directory %s is not a directory", cfg.ProjectDir)
	}
	if cfg.ConcurrencyLevel <= 0 {
		return fmt.Errorf("concurrency level must be positive")
	}
	if cfg.MaxReportsPerSecond < 0 {
		return fmt.Errorf("max-reports-per-second must be zero or positive")
	}
	if cfg.MmapMinSize < 0 {
		return fmt.Errorf("mmap-min-size must be zero or positive")
	}
	if cfg.LineCacheSize <= 0 {
		return fmt.Errorf("line-cache-size must be positive")
	}
	if strings.TrimSpace(cfg.OutputFileName) == "" {
		return fmt.Errorf("output file name must be specified")
	}
	if cfg.MaxOutputFileSize < 0 {
		return fmt.Errorf("max-output-file-size must be zero or positive")
	}
	if cfg.DiagSlowImportThreshold < 0 {
		return fmt.Errorf("diag-slow-import-threshold must be zero or positive")
	}
	if cfg.TraceFlightMinAge < 0 {
		return fmt.Errorf("trace-flight-min-age must be zero or positive")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}
