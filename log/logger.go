package log

import (
	"io"
	"os"

	"github.com/op/go-logging"
)

type Level logging.Level

// The levels that can be passed to the SetLevel function.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

// The logger format
var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level}]%{color:reset} %{message}`,
)

var (
	// The internal leveled logger backend
	leveledBackend logging.LeveledBackend

	// The currently active level; re-applied whenever the sink changes.
	activeLevel = logging.NOTICE
)

// The logger interface
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// Create a new named logger.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// Override the backend output sink.
func SetSink(sink io.Writer) {
	backend := logging.NewLogBackend(sink, "", 0)
	backendWithFormatter := logging.NewBackendFormatter(backend, format)
	leveledBackend = logging.AddModuleLevel(backendWithFormatter)
	leveledBackend.SetLevel(activeLevel, "")
	logging.SetBackend(leveledBackend)
}

// Discard all log output. Mostly useful for silencing tests and benchmarks.
func Discard() {
	SetSink(io.Discard)
}

// Set logger verbosity.
func SetLevel(level Level) {
	switch level {
	case Debug:
		activeLevel = logging.DEBUG
	case Info:
		activeLevel = logging.INFO
	case Notice:
		activeLevel = logging.NOTICE
	case Warning:
		activeLevel = logging.WARNING
	case Error:
		activeLevel = logging.ERROR
	}

	leveledBackend.SetLevel(activeLevel, "")
}

// Check whether messages at the given level would be emitted.
func Enabled(level Level) bool {
	switch level {
	case Debug:
		return activeLevel >= logging.DEBUG
	case Info:
		return activeLevel >= logging.INFO
	case Notice:
		return activeLevel >= logging.NOTICE
	case Warning:
		return activeLevel >= logging.WARNING
	}
	return true
}

func init() {
	SetSink(os.Stderr)
	SetLevel(Notice)
}
