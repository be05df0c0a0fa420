// Package logging provides the bus's ambient logging: a session-scoped
// sink that writes every record to a timestamped log file, echoes info
// records to the console outside quiet mode, and always echoes error
// records to the console.
// It implements logr.LogSink so the rest of the module depends only on
// the standard logr.Logger type, not a bespoke logger interface.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// session holds the shared, mutex-guarded file handle. SessionSink values
// derived via WithName/WithValues share one session but carry their own
// name/field prefix.
type session struct {
	mu          sync.Mutex
	file        *os.File
	sessionPath string
	quiet       bool
}

// SessionSink is a logr.LogSink that mirrors records to a session file and,
// selectively, to the console.
type SessionSink struct {
	s      *session
	name   string
	values []interface{}
}

var _ logr.LogSink = (*SessionSink)(nil)

// NewSession opens a new timestamped session log file under logDir and
// returns a logr.Logger backed by it. quiet suppresses non-error console
// output; the file always receives every record.
func NewSession(logDir string, quiet bool) (logr.Logger, *SessionSink, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return logr.Logger{}, nil, fmt.Errorf("creating log directory: %w", err)
	}
	sessionID := time.Now().Format("20060102-150405")
	sessionPath := filepath.Join(logDir, fmt.Sprintf("session-%s.log", sessionID))
	file, err := os.OpenFile(sessionPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return logr.Logger{}, nil, fmt.Errorf("opening session log file: %w", err)
	}
	sink := &SessionSink{s: &session{file: file, sessionPath: sessionPath, quiet: quiet}}
	sink.writeLine("INFO", fmt.Sprintf("session started: %s", sessionID), nil)
	return logr.New(sink), sink, nil
}

// SessionPath returns the path of the file this sink writes to.
func (s *SessionSink) SessionPath() string {
	return s.s.sessionPath
}

// Close closes the underlying session file.
func (s *SessionSink) Close() error {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	if s.s.file == nil {
		return nil
	}
	s.writeLineLocked("INFO", "session ended", nil)
	return s.s.file.Close()
}

// Init implements logr.LogSink.
func (s *SessionSink) Init(info logr.RuntimeInfo) {}

// Enabled implements logr.LogSink. Every level is recorded to the file;
// console mirroring is handled in Info/Error directly.
func (s *SessionSink) Enabled(level int) bool { return true }

// Info implements logr.LogSink.
func (s *SessionSink) Info(level int, msg string, kv ...interface{}) {
	fields := append(append([]interface{}{}, s.values...), kv...)
	s.writeLine("INFO", msg, fields)
	if !s.s.quiet {
		fmt.Println(formatLine(s.name, msg, fields))
	}
}

// Error implements logr.LogSink. Errors always reach the console.
func (s *SessionSink) Error(err error, msg string, kv ...interface{}) {
	fields := append(append([]interface{}{}, s.values...), kv...)
	fields = append(fields, "error", err)
	s.writeLine("ERROR", msg, fields)
	fmt.Fprintln(os.Stderr, formatLine(s.name, msg, fields))
}

// WithValues implements logr.LogSink.
func (s *SessionSink) WithValues(kv ...interface{}) logr.LogSink {
	return &SessionSink{
		s:      s.s,
		name:   s.name,
		values: append(append([]interface{}{}, s.values...), kv...),
	}
}

// WithName implements logr.LogSink.
func (s *SessionSink) WithName(name string) logr.LogSink {
	newName := name
	if s.name != "" {
		newName = s.name + "." + name
	}
	return &SessionSink{s: s.s, name: newName, values: s.values}
}

func (s *SessionSink) writeLine(level, msg string, fields []interface{}) {
	s.s.mu.Lock()
	defer s.s.mu.Unlock()
	s.writeLineLocked(level, msg, fields)
}

func (s *SessionSink) writeLineLocked(level, msg string, fields []interface{}) {
	if s.s.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05")
	line := formatLine(s.name, msg, fields)
	fmt.Fprintf(s.s.file, "[%s] %s: %s\n", timestamp, level, line)
	s.s.file.Sync()
}

func formatLine(name, msg string, fields []interface{}) string {
	line := msg
	if name != "" {
		line = name + ": " + msg
	}
	for i := 0; i+1 < len(fields); i += 2 {
		line += fmt.Sprintf(" %v=%v", fields[i], fields[i+1])
	}
	return line
}
