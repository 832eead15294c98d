// Package clog provides the driver's internal tagged logging and the
// fan-out sink behind the public Session.Logs() observable log stream.
package clog

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Level mirrors the three-valued (level, source, message) log entry shape
// named in the external interface of the specification.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Entry is one observable log record, delivered to subscribers in order.
type Entry struct {
	Level   Level
	Source  string // component tag, e.g. "conn", "pool", "control"
	Message string
}

// Logger is a tagged, conditional logger backed by zerolog and fanned out
// to any number of subscriber channels (see Session.Logs).
type Logger struct {
	zl   zerolog.Logger
	mu   sync.RWMutex
	subs []chan<- Entry
}

// New creates a Logger writing human-readable output to stderr by default.
// Debug-level records are only emitted to subscribers, never to stderr,
// unless debug is true — mirroring the teacher's Debug-gated log.Printf calls.
func New(debug bool) *Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false}).With().Timestamp().Logger()
	lvl := zerolog.InfoLevel
	if debug {
		lvl = zerolog.DebugLevel
	}
	zl = zl.Level(lvl)
	return &Logger{zl: zl}
}

// Subscribe registers a channel to receive every future log entry. Sends are
// non-blocking: a slow or full subscriber drops entries rather than stalling
// the driver.
func (l *Logger) Subscribe(ch chan<- Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = append(l.subs, ch)
}

func (l *Logger) emit(level Level, source, msg string) {
	entry := Entry{Level: level, Source: source, Message: msg}

	var zev *zerolog.Event
	switch level {
	case Debug:
		zev = l.zl.Debug()
	case Info:
		zev = l.zl.Info()
	case Warn:
		zev = l.zl.Warn()
	default:
		zev = l.zl.Error()
	}
	zev.Str("component", source).Msg(msg)

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, sub := range l.subs {
		select {
		case sub <- entry:
		default:
		}
	}
}

func (l *Logger) Debugf(source, format string, args ...interface{}) {
	l.emit(Debug, source, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(source, format string, args ...interface{}) {
	l.emit(Info, source, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(source, format string, args ...interface{}) {
	l.emit(Warn, source, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(source, format string, args ...interface{}) {
	l.emit(Error, source, fmt.Sprintf(format, args...))
}
