package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// log is created eagerly so logging before Init is safe from any goroutine.
var log = logrus.New()

// Init configures the package logger in place, so hooks attached earlier
// survive. Unknown levels fall back to info.
func Init(level string) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}

func get() *logrus.Logger {
	return log
}

// AddHook attaches h to the package logger and returns a function that
// restores the previous hooks.
func AddHook(h logrus.Hook) func() {
	prev := log.ReplaceHooks(make(logrus.LevelHooks))
	next := make(logrus.LevelHooks, len(prev))
	for lvl, hooks := range prev {
		next[lvl] = append([]logrus.Hook(nil), hooks...)
	}
	next.Add(h)
	log.ReplaceHooks(next)
	return func() { log.ReplaceHooks(prev) }
}

// IsDebug reports whether debug output is enabled.
func IsDebug() bool {
	return get().IsLevelEnabled(logrus.DebugLevel)
}

// WithField returns an entry carrying a single structured field.
func WithField(key string, value interface{}) *logrus.Entry {
	return get().WithField(key, value)
}

// WithFields returns an entry carrying the given structured fields.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return get().WithFields(logrus.Fields(fields))
}

func Debug(args ...interface{}) { get().Debug(args...) }
func Info(args ...interface{})  { get().Info(args...) }
func Warn(args ...interface{})  { get().Warn(args...) }
func Error(args ...interface{}) { get().Error(args...) }
func Fatal(args ...interface{}) { get().Fatal(args...) }

func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { get().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { get().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { get().Fatalf(format, args...) }
