//go:build !trace

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntracedBuildIsNoOp(t *testing.T) {
	require.NoError(t, Start())
	Stop()

	parent := context.Background()
	ctx, endTask := ImportTask(parent)
	assert.Equal(t, parent, ctx)
	ReportRegion(ctx, "target/site/jacoco/jacoco.xml")()
	endTask()
}

func TestTraceFilePath(t *testing.T) {
	t.Setenv("COVIMPORT_TRACE_FILE", "")
	assert.Equal(t, DefaultTraceFile, traceFilePath())

	t.Setenv("COVIMPORT_TRACE_FILE", "/tmp/run.trace")
	assert.Equal(t, "/tmp/run.trace", traceFilePath())
}
