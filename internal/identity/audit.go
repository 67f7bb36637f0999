package identity

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// AuditLog records every patient identifier that was pseudonymized so that
// authorized staff can re-identify uploaded data.
type AuditLog struct {
	mu      sync.Mutex
	path    string
	w       io.Writer
	closer  io.Closer
	entries int
}

// OpenAuditLog opens path for appending, creating it and its directory if needed.
func OpenAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("could not open audit log: %w", err)
	}
	return &AuditLog{path: path, w: file, closer: file}, nil
}

// NewAuditLog wraps an arbitrary writer. Close does not close w.
func NewAuditLog(w io.Writer) *AuditLog {
	return &AuditLog{w: w}
}

// Record appends one "Orig ID: [...]  New ID: [...]" line.
func (a *AuditLog) Record(original, pseudonym string) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := fmt.Fprintf(a.w, "Orig ID: [%s]  New ID: [%s]\n", original, pseudonym); err != nil {
		return fmt.Errorf("could not write audit entry: %w", err)
	}
	a.entries++
	return nil
}

// Entries returns the number of lines written since the log was opened.
func (a *AuditLog) Entries() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries
}

// Path returns the file backing the log, or "" for writer-backed logs.
func (a *AuditLog) Path() string {
	return a.path
}

// Close closes the underlying file.
func (a *AuditLog) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closer.Close()
}
