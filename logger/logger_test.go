package logger

import (
	"bytes"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFunctions(t *testing.T) {
	Init("invalid") // should default to info
	require.NotNil(t, log)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	// Avoid os.Exit on Fatal
	log.ExitFunc = func(int) {}
	var buf bytes.Buffer
	log.SetOutput(&buf)

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	Debugf("%s", "debugf")
	Infof("%s", "infof")
	Warnf("%s", "warnf")
	Errorf("%s", "errorf")
	Fatal("fatal")
	Fatalf("%s", "fatalf")

	out := buf.String()
	assert.NotContains(t, out, "msg=debug")
	assert.Contains(t, out, "msg=infof")
	assert.Contains(t, out, "msg=errorf")
}

func TestInitDebugLevel(t *testing.T) {
	Init("DEBUG")
	assert.True(t, IsDebug())
	Init("warn")
	assert.False(t, IsDebug())
}

func TestWithFields(t *testing.T) {
	Init("info")
	var buf bytes.Buffer
	log.SetOutput(&buf)

	WithFields(map[string]interface{}{"report": "jacoco.xml"}).Info("reading")
	WithField("file", "Foo.java").Warn("skipped")

	out := buf.String()
	assert.Contains(t, out, "report=jacoco.xml")
	assert.Contains(t, out, "file=Foo.java")
}

func TestAddHookSurvivesInitAndRestores(t *testing.T) {
	hook := new(test.Hook)
	restore := AddHook(hook)

	Init("info")
	log.SetOutput(&bytes.Buffer{})
	Errorf("report %s failed", "bad.xml")
	Debug("hidden")

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "report bad.xml failed", hook.LastEntry().Message)

	restore()
	Error("after restore")
	assert.Len(t, hook.AllEntries(), 1)
}

func TestConcurrentLoggingWithoutInit(t *testing.T) {
	log.SetOutput(&bytes.Buffer{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Infof("worker %d", i)
			_ = IsDebug()
		}()
	}
	wg.Wait()
}
