// Package reqlog appends one JSON record per remote API call to a
// date-partitioned log file. Writes are best-effort: callers treat a
// failed append as an observability gap, never as a call failure.
package reqlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockFileSuffix = ".lock"

// Record is a single request log line.
type Record struct {
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
}

// Logger writes records to <dir>/<YYYY-MM-DD>.log, one JSON object per line.
// Files are partitioned by UTC date. Safe for concurrent use within a
// process (mutex) and across processes (flock).
type Logger struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func New(dir string) *Logger {
	return &Logger{dir: dir, now: time.Now}
}

// Append writes a single record. The log file handle is the one shared
// mutable resource of the whole system, so appends hold both the process
// mutex and an exclusive file lock.
func (l *Logger) Append(message string, data interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}

	ts := l.now().UTC()
	path := filepath.Join(l.dir, ts.Format("2006-01-02")+".log")

	line, err := json.Marshal(Record{Timestamp: ts, Message: message, Data: data})
	if err != nil {
		return err
	}

	fileLock := flock.New(path + lockFileSuffix)
	if err := fileLock.Lock(); err != nil {
		return err
	}
	defer fileLock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

// Path returns the log file that Append would write to right now.
func (l *Logger) Path() string {
	return filepath.Join(l.dir, l.now().UTC().Format("2006-01-02")+".log")
}
