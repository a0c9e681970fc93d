package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// FileLogger writes operational log lines (print jobs, printer checks, broker
// state) to a file, optionally echoing them to a second writer such as stderr.
// It is safe for concurrent use.
type FileLogger struct {
	file   *os.File
	out    io.Writer // file, or file plus echo
	mu     sync.Mutex
	closed bool
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &FileLogger{file: file, out: file}, nil
}

// Log writes one timestamped line. The signature matches engine.LogFunc.
func (l *FileLogger) Log(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	fmt.Fprintf(l.out, "%s %s\n", time.Now().Format(timeLayout), fmt.Sprintf(format, args...))
}

// SetEcho mirrors every subsequent line to w. A nil writer disables echoing.
func (l *FileLogger) SetEcho(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w == nil {
		l.out = l.file
		return
	}
	l.out = io.MultiWriter(l.file, w)
}

// Path returns the log file path.
func (l *FileLogger) Path() string {
	return l.file.Name()
}

// Close closes the log file. Later calls to Log are dropped.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}
