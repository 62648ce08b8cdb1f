package output

import (
	"testing"

	"covimport/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelLog "go.opentelemetry.io/otel/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

func findAttr(kvs []otelLog.KeyValue, key string) (otelLog.Value, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return otelLog.Value{}, false
}

func TestResolveOtelEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "https://logs.example.test/v1/logs")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://fallback.example.test")

	cfg := &config.Config{OtelEndpoint: "  https://explicit.example.test  ", OtelFromEnv: true}
	assert.Equal(t, "https://explicit.example.test", resolveOtelEndpoint(cfg))

	cfg = &config.Config{OtelFromEnv: true}
	assert.Equal(t, "https://logs.example.test/v1/logs", resolveOtelEndpoint(cfg))

	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "")
	assert.Equal(t, "https://fallback.example.test", resolveOtelEndpoint(cfg))

	assert.Empty(t, resolveOtelEndpoint(&config.Config{OtelFromEnv: false}))
	assert.Empty(t, resolveOtelEndpoint(nil))
}

func TestSanitizePayloadStripsPaths(t *testing.T) {
	reportPayload := ReportRecord{Location: "/home/dev/app/target/site/jacoco/jacoco.xml", Name: "jacoco.xml"}
	sanitized, ok := sanitizePayload("report", reportPayload, otelPolicy{}).(map[string]interface{})
	require.True(t, ok)
	assert.NotContains(t, sanitized, "location")
	assert.Equal(t, "jacoco.xml", sanitized["name"])

	filePayload := map[string]interface{}{"path": "/home/dev/app/src/main/java/Foo.java", "key": "Foo.java"}
	sanitized, ok = sanitizePayload("file", filePayload, otelPolicy{}).(map[string]interface{})
	require.True(t, ok)
	assert.NotContains(t, sanitized, "path")
	assert.Contains(t, filePayload, "path", "original payload must remain unchanged")

	kept, ok := sanitizePayload("file", filePayload, otelPolicy{includePaths: true}).(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, kept, "path")
}

func TestReportSemanticAttributes(t *testing.T) {
	payload := payloadToMap(ReportRecord{
		Location:      "/p/build/jacoco.xml",
		Name:          "jacoco.xml",
		PackageScheme: "stripped-root",
		Records:       4,
		FilesImported: 3,
		FileErrors:    []FileError{{File: "a/B.kt", Error: "bad"}},
		Size:          99,
		Digests:       map[string]string{"xxh64": "bbb", "sha256": "aaa"},
	})

	attrs := reportSemanticAttributes(payload, otelPolicy{})
	_, hasPath := findAttr(attrs, string(semconv.FilePathKey))
	assert.False(t, hasPath)

	name, ok := findAttr(attrs, string(semconv.FileNameKey))
	require.True(t, ok)
	assert.Equal(t, "jacoco.xml", name.AsString())

	size, ok := findAttr(attrs, string(semconv.FileSizeKey))
	require.True(t, ok)
	assert.Equal(t, int64(99), size.AsInt64())

	scheme, ok := findAttr(attrs, "covimport.report.package_scheme")
	require.True(t, ok)
	assert.Equal(t, "stripped-root", scheme.AsString())

	fileErrors, ok := findAttr(attrs, "covimport.report.file_errors")
	require.True(t, ok)
	assert.Equal(t, int64(1), fileErrors.AsInt64())

	sha, ok := findAttr(attrs, "covimport.report.digest.sha256")
	require.True(t, ok)
	assert.Equal(t, "aaa", sha.AsString())

	withPaths := reportSemanticAttributes(payload, otelPolicy{includePaths: true})
	path, ok := findAttr(withPaths, string(semconv.FilePathKey))
	require.True(t, ok)
	assert.Equal(t, "/p/build/jacoco.xml", path.AsString())
}

func TestFileSemanticAttributes(t *testing.T) {
	payload := payloadToMap(FileRecord{
		Key:          "com/acme/Foo.java",
		Path:         "/p/src/main/java/com/acme/Foo.java",
		Name:         "Foo.java",
		LinesToCover: 4,
		CoveredLines: 3,
	})
	attrs := fileSemanticAttributes(payload, otelPolicy{})

	ext, ok := findAttr(attrs, string(semconv.FileExtensionKey))
	require.True(t, ok)
	assert.Equal(t, "java", ext.AsString())

	ratio, ok := findAttr(attrs, "covimport.file.line_coverage")
	require.True(t, ok)
	assert.InDelta(t, 0.75, ratio.AsFloat64(), 1e-9)

	_, hasPath := findAttr(attrs, string(semconv.FilePathKey))
	assert.False(t, hasPath)
}

func TestMetricsSemanticAttributes(t *testing.T) {
	attrs := semanticAttributes("metrics", Metrics{StartTime: "s", ReportsDiscovered: 2, ReportsFailed: 1}, otelPolicy{})
	discovered, ok := findAttr(attrs, "covimport.metrics.reports_discovered")
	require.True(t, ok)
	assert.Equal(t, int64(2), discovered.AsInt64())
	start, ok := findAttr(attrs, "covimport.metrics.start_time")
	require.True(t, ok)
	assert.Equal(t, "s", start.AsString())

	assert.Nil(t, semanticAttributes("unknown", map[string]interface{}{"a": 1}, otelPolicy{}))
}

func TestToLogValueCompositeTypes(t *testing.T) {
	v := toLogValue(map[string]interface{}{"lines": []interface{}{map[string]interface{}{"line": 1}}})
	assert.Equal(t, otelLog.KindMap, v.Kind())
	assert.Equal(t, otelLog.KindSlice, toLogValue([]string{"a"}).Kind())
	assert.Equal(t, otelLog.KindEmpty, toLogValue(struct{}{}).Kind())
}

func TestToLogKeyValuesSortedOrder(t *testing.T) {
	kvs := toLogKeyValues(map[string]interface{}{"zeta": 1, "alpha": 2, "middle": 3})
	require.Len(t, kvs, 3)
	assert.Equal(t, []string{"alpha", "middle", "zeta"}, []string{kvs[0].Key, kvs[1].Key, kvs[2].Key})
}

func TestOtelLoggerEndpointAndValidation(t *testing.T) {
	var nilLogger *otelLogger
	assert.Empty(t, nilLogger.Endpoint())
	nilLogger.Emit("report", nil)
	nilLogger.Shutdown()

	ol := &otelLogger{endpoint: "https://otel.example.test"}
	assert.Equal(t, "https://otel.example.test", ol.Endpoint())

	disabled, err := newOtelLogger(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, disabled)

	_, err = newOtelLogger(&config.Config{OtelEndpoint: "localhost:4318", OtelServiceName: "covimport", OtelTimeout: 1})
	assert.Error(t, err)
}
