package reqlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is a buffered record together with its serialized line.
type Entry struct {
	Record Record
	Line   []byte
}

// Sink persists flushed batches. WriteBatch receives entries in enqueue order.
type Sink interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

// DailyFile appends newline-delimited records to <dir>/app-YYYY-MM-DD.log.
// A new file is opened when the UTC calendar date changes.
type DailyFile struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// OpenDailyFile creates dir if needed and opens today's file.
func OpenDailyFile(dir string) (*DailyFile, error) {
	return openDailyFile(dir, time.Now)
}

func openDailyFile(dir string, now func() time.Time) (*DailyFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	d := &DailyFile{dir: dir, now: now}
	if err := d.rotate(); err != nil {
		return nil, err
	}
	return d, nil
}

// FileName returns the log file name for the given instant.
func FileName(t time.Time) string {
	return "app-" + t.UTC().Format("2006-01-02") + ".log"
}

// Path returns the file currently written to.
func (d *DailyFile) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return filepath.Join(d.dir, "app-"+d.day+".log")
}

func (d *DailyFile) WriteBatch(_ context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, e := range entries {
		buf.Write(e.Line)
		buf.WriteByte('\n')
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return os.ErrClosed
	}
	if d.day != d.now().UTC().Format("2006-01-02") {
		if err := d.rotate(); err != nil {
			return err
		}
	}
	if _, err := d.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("appending to %s: %w", d.file.Name(), err)
	}
	return nil
}

// rotate opens the file for the current date. Caller holds mu or is the
// constructor.
func (d *DailyFile) rotate() error {
	now := d.now()
	path := filepath.Join(d.dir, FileName(now))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if d.file != nil {
		d.file.Close()
	}
	d.file = f
	d.day = now.UTC().Format("2006-01-02")
	return nil
}

func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// Multi fans a batch out to several sinks. The first sink is the primary
// store; the others are mirrors. Every sink sees the batch even when an
// earlier one fails. When only mirrors fail the joined error is wrapped in a
// *MirrorError, meaning the batch itself was persisted.
type Multi []Sink

// MirrorError reports mirror sinks that failed while the primary succeeded.
type MirrorError struct {
	Err error
}

func (e *MirrorError) Error() string { return "log mirror: " + e.Err.Error() }

func (e *MirrorError) Unwrap() error { return e.Err }

func (m Multi) WriteBatch(ctx context.Context, entries []Entry) error {
	var (
		errs          []error
		primaryFailed bool
	)
	for i, s := range m {
		if err := s.WriteBatch(ctx, entries); err != nil {
			errs = append(errs, err)
			if i == 0 {
				primaryFailed = true
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if primaryFailed {
		return errors.Join(errs...)
	}
	return &MirrorError{Err: errors.Join(errs...)}
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
