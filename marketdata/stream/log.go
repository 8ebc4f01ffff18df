package stream

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logger is what the package reports through. A *zap.SugaredLogger
// satisfies it.
type Logger interface {
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

type logLevel int

const (
	levelInfo logLevel = iota
	levelWarn
	levelError
)

func (l logLevel) String() string {
	switch l {
	case levelInfo:
		return "INFO"
	case levelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// stdLog is a Logger on top of the standard library logger, which has no
// levels: messages below min are dropped.
type stdLog struct {
	logger *log.Logger
	min    logLevel
}

var _ Logger = (*stdLog)(nil)

func newStdLog(w io.Writer, minLevel logLevel) *stdLog {
	return &stdLog{logger: log.New(w, "", log.LstdFlags), min: minLevel}
}

func (s *stdLog) logf(l logLevel, format string, v []interface{}) {
	if l < s.min {
		return
	}
	s.logger.Printf("%s %s", l, fmt.Sprintf(format, v...))
}

func (s *stdLog) Infof(format string, v ...interface{})  { s.logf(levelInfo, format, v) }
func (s *stdLog) Warnf(format string, v ...interface{})  { s.logf(levelWarn, format, v) }
func (s *stdLog) Errorf(format string, v ...interface{}) { s.logf(levelError, format, v) }

var defaultLogger Logger = newStdLog(os.Stderr, levelError)

// DefaultLogger returns the logger used when none is configured: it only
// prints errors to stderr. Inject a leveled logger to see the rest.
func DefaultLogger() Logger {
	return defaultLogger
}
