package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var errWriterClosed = errors.New("log writer is closed")

// DailyFileWriter is an io.Writer appending to {service}_{date}.log in a
// directory. The file is switched on the first write of a new day. Safe for
// concurrent use.
type DailyFileWriter struct {
	service string
	dir     string
	now     func() time.Time

	mu       sync.Mutex
	file     *os.File
	currDate string
	closed   bool
}

// NewDailyFileWriter opens today's log file in logDir. The directory must
// already exist.
//
// Parameters:
//   - service: Service name used in log file names
//   - logDir: Directory path for log files
//
// Returns:
//   - The new DailyFileWriter, or an error if the initial file could not be opened
func NewDailyFileWriter(service string, logDir string) (*DailyFileWriter, error) {
	w := &DailyFileWriter{service: service, dir: logDir, now: time.Now}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateLocked(w.now().Format(time.DateOnly)); err != nil {
		return nil, fmt.Errorf("initial rotation failed: %w", err)
	}

	return w, nil
}

// Write implements io.Writer.
func (w *DailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errWriterClosed
	}

	if date := w.now().Format(time.DateOnly); date != w.currDate || w.file == nil {
		if err := w.rotateLocked(date); err != nil {
			return 0, fmt.Errorf("rotation failed: %w", err)
		}
	}

	return w.file.Write(p)
}

// CurrentLogFile returns the path of the file currently written to, or "".
func (w *DailyFileWriter) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ""
	}

	return w.path(w.currDate)
}

// Close closes the current file. Later writes fail. Safe to call repeatedly.
func (w *DailyFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil
	return err
}

// rotateLocked switches to the file for date; caller holds w.mu.
func (w *DailyFileWriter) rotateLocked(date string) error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	filename := w.path(date)
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", filename, err)
	}

	w.file = file
	w.currDate = date
	return nil
}

func (w *DailyFileWriter) path(date string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, date))
}
