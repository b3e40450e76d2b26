// Package status delivers human-readable progress and failure messages to
// whatever is presenting the authorization flow
package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level classifies a status message
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Sink receives status messages
type Sink interface {
	Report(message string, level Level)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(message string, level Level)

// Report calls f(message, level)
func (f SinkFunc) Report(message string, level Level) {
	f(message, level)
}

// Nop discards every message
type Nop struct{}

// Report does nothing
func (Nop) Report(string, Level) {}

// OrNop returns s, or Nop when s is nil
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// LogrusSink writes status messages through a logrus logger
type LogrusSink struct {
	logger logrus.FieldLogger
}

// NewLogrusSink creates a sink that logs with the given logger.
// A nil logger selects the logrus standard logger.
func NewLogrusSink(logger logrus.FieldLogger) *LogrusSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusSink{logger: logger.WithField("component", "oauth2")}
}

// Report logs message at a level matching the status level
func (s *LogrusSink) Report(message string, level Level) {
	entry := s.logger.WithField("status", string(level))
	switch level {
	case LevelError:
		entry.Error(message)
	default:
		entry.Info(message)
	}
}

// WriterSink prints status messages as lines on a terminal
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Report writes "[level] message"
func (s *WriterSink) Report(message string, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "[%s] %s\n", level, message)
}
