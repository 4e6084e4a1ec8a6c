package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// M carries the structured fields of a single log record.
type M map[string]any

type Level uint32

const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}

func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func SetLevel(level Level) {
	var l logrus.Level
	switch level {
	case LevelTrace:
		l = logrus.TraceLevel
	case LevelDebug:
		l = logrus.DebugLevel
	case LevelInfo:
		l = logrus.InfoLevel
	case LevelWarn:
		l = logrus.WarnLevel
	case LevelError:
		l = logrus.ErrorLevel
	case LevelFatal:
		l = logrus.FatalLevel
	default:
		l = logrus.InfoLevel
	}
	std.SetLevel(l)
}

func Tracew(msg string, args M) {
	std.WithFields(logrus.Fields(args)).Trace(msg)
}

func Debugw(msg string, args M) {
	std.WithFields(logrus.Fields(args)).Debug(msg)
}

func Infow(msg string, args M) {
	std.WithFields(logrus.Fields(args)).Info(msg)
}

func Warnw(msg string, args M) {
	std.WithFields(logrus.Fields(args)).Warn(msg)
}

func Errorw(msg string, args M) {
	std.WithFields(logrus.Fields(args)).Error(msg)
}

func Fatalw(msg string, args M) {
	std.WithFields(logrus.Fields(args)).Fatal(msg)
}
