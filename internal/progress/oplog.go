package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// OpLog is the operation log: one "[HH:MM:SS] message key=value" line per
// event, appended to a file and optionally mirrored to a console.
type OpLog struct {
	zerolog.Logger

	path   string
	file   *os.File
	errors atomic.Int64
}

// LineWriter formats zerolog events as plain operation log lines.
func LineWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:             w,
		NoColor:         true,
		PartsOrder:      []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatTimestamp: formatTimestamp,
		FormatLevel:     formatLevel,
	}
}

func formatTimestamp(i interface{}) string {
	s, _ := i.(string)
	t, err := time.Parse(zerolog.TimeFieldFormat, s)
	if err != nil {
		return "[" + s + "]"
	}
	return t.Local().Format("[15:04:05]")
}

// Only warnings and errors carry a level marker.
func formatLevel(i interface{}) string {
	switch i {
	case zerolog.LevelWarnValue:
		return "WARN"
	case zerolog.LevelErrorValue:
		return "ERROR"
	case zerolog.LevelFatalValue:
		return "FATAL"
	}
	return ""
}

// OpenOpLog appends to path. Empty path logs to console only. A nil console
// disables mirroring.
func OpenOpLog(path string, level zerolog.Level, console io.Writer) (*OpLog, error) {
	l := &OpLog{path: path}

	var writers []io.Writer
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("could not create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		l.file = file
		writers = append(writers, LineWriter(file))
	}
	if console != nil {
		writers = append(writers, LineWriter(console))
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}
	l.Logger = zerolog.New(out).
		Level(level).
		Hook(zerolog.HookFunc(func(_ *zerolog.Event, lvl zerolog.Level, _ string) {
			if lvl >= zerolog.ErrorLevel {
				l.errors.Add(1)
			}
		})).
		With().Timestamp().Logger()
	return l, nil
}

// ErrorCount returns the number of error events logged so far.
func (l *OpLog) ErrorCount() int64 {
	return l.errors.Load()
}

// Path returns the log file path, or "".
func (l *OpLog) Path() string {
	return l.path
}

// Summary returns a one-line error summary.
func (l *OpLog) Summary() string {
	n := l.ErrorCount()
	if n == 0 {
		return "No errors"
	}
	if l.path == "" {
		return fmt.Sprintf("%d errors logged", n)
	}
	return fmt.Sprintf("%d errors logged to %s", n, l.path)
}

// Close closes the log file.
func (l *OpLog) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
