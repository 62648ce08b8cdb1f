package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"covimport/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLocateDefaults(t *testing.T) {
	logger.Init("error")
	base := t.TempDir()
	maven := writeFile(t, filepath.Join(base, "target", "site", "jacoco", "jacoco.xml"), "<report/>")
	gradle := writeFile(t, filepath.Join(base, "build", "reports", "jacoco", "test", "jacocoTestReport.xml"), "<report/>")

	got, err := NewLocator(base, nil).Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{maven, gradle}, got)
}

func TestLocateNothingFound(t *testing.T) {
	logger.Init("error")
	got, err := NewLocator(t.TempDir(), nil).Locate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocateConfiguredPaths(t *testing.T) {
	logger.Init("error")
	base := t.TempDir()
	a := writeFile(t, filepath.Join(base, "reports", "a.xml"), "<report/>")
	outside := writeFile(t, filepath.Join(t.TempDir(), "other.xml"), "<report/>")

	got, err := NewLocator(base, []string{"reports/a.xml", " ", "reports/missing.xml", outside, "./reports/a.xml"}).Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{a, outside}, got)
}

func TestLocateGlobPatterns(t *testing.T) {
	logger.Init("error")
	base := t.TempDir()
	b := writeFile(t, filepath.Join(base, "module-b", "target", "site", "jacoco", "jacoco.xml"), "<report/>")
	a := writeFile(t, filepath.Join(base, "module-a", "target", "site", "jacoco", "jacoco.xml"), "<report/>")
	writeFile(t, filepath.Join(base, "module-a", "target", "site", "jacoco", "index.html"), "<html/>")

	got, err := NewLocator(base, []string{"**/jacoco.xml", "module-a/target/site/jacoco/jacoco.xml", "nomatch/**/*.xml"}).Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, got)
}

func TestLocateCanceled(t *testing.T) {
	logger.Init("error")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocator(t.TempDir(), []string{"a.xml"}).Locate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
