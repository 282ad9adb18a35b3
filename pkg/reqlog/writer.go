package reqlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultBufferSize    = 10
	DefaultFlushInterval = 5 * time.Second
)

// Writer buffers serialized records in memory and hands them to a Sink in
// batches: when the buffer reaches BufferSize, every FlushInterval, and once
// on Close.
type Writer struct {
	sink     Sink
	size     int
	interval time.Duration

	mu  sync.Mutex // guards buf
	buf []Entry

	// flushMu is held for the whole duration of a flush. A second flush that
	// cannot take it returns without doing anything.
	flushMu sync.Mutex

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	flushes        atomic.Uint64
	written        atomic.Uint64
	droppedBatches atomic.Uint64
	droppedRecords atomic.Uint64
	mirrorFailures atomic.Uint64
}

type Options struct {
	BufferSize    int
	FlushInterval time.Duration
}

// Stats is a snapshot of the writer counters.
type Stats struct {
	Buffered       int
	Flushes        uint64
	Written        uint64
	DroppedBatches uint64
	DroppedRecords uint64
	MirrorFailures uint64
}

// NewWriter starts the flush timer. The writer owns sink: Close closes it
// when it implements io.Closer.
func NewWriter(sink Sink, opts Options) *Writer {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	w := &Writer{
		sink:     sink,
		size:     opts.BufferSize,
		interval: opts.FlushInterval,
		buf:      make([]Entry, 0, opts.BufferSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.flushLoop()
	return w
}

// Enqueue serializes rec and appends it to the buffer. When the buffer is
// full it flushes before returning. Failures are reported through slog only.
func (w *Writer) Enqueue(rec Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		slog.Error("reqlog: encoding record", "error", err, "path", rec.Path)
		return
	}

	w.mu.Lock()
	w.buf = append(w.buf, Entry{Record: rec, Line: line})
	n := len(w.buf)
	w.mu.Unlock()
	bufferedRecords.Set(float64(n))

	if n >= w.size {
		_ = w.Flush(context.Background())
	}
}

// Flush writes every buffered record to the sink. It is a no-op when the
// buffer is empty or when another flush is in progress; records enqueued
// meanwhile stay buffered for the next flush. A batch the primary sink
// rejected is dropped; a mirror-only failure is counted separately.
func (w *Writer) Flush(ctx context.Context) error {
	if !w.flushMu.TryLock() {
		return nil
	}
	defer w.flushMu.Unlock()
	return w.flushLocked(ctx)
}

func (w *Writer) flushLocked(ctx context.Context) error {
	batch := w.take()
	if len(batch) == 0 {
		return nil
	}

	w.flushes.Add(1)
	flushesTotal.Inc()
	err := w.sink.WriteBatch(ctx, batch)
	var mirr *MirrorError
	if errors.As(err, &mirr) {
		w.mirrorFailures.Add(1)
		mirrorFailures.Inc()
		slog.Warn("reqlog: mirror sink failed, batch kept by primary", "error", mirr.Err, "records", len(batch))
		w.written.Add(uint64(len(batch)))
		recordsWritten.Add(float64(len(batch)))
		return fmt.Errorf("flushing %d records: %w", len(batch), err)
	}
	if err != nil {
		w.droppedBatches.Add(1)
		w.droppedRecords.Add(uint64(len(batch)))
		droppedBatches.Inc()
		droppedRecords.Add(float64(len(batch)))
		slog.Error("reqlog: flush failed, batch dropped", "error", err, "records", len(batch))
		return fmt.Errorf("flushing %d records: %w", len(batch), err)
	}
	w.written.Add(uint64(len(batch)))
	recordsWritten.Add(float64(len(batch)))
	return nil
}

// take detaches the buffer contents and leaves an empty buffer behind.
func (w *Writer) take() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return nil
	}
	batch := w.buf
	w.buf = make([]Entry, 0, w.size)
	bufferedRecords.Set(0)
	return batch
}

func (w *Writer) flushLoop() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			_ = w.Flush(ctx)
			cancel()
		case <-w.stop:
			return
		}
	}
}

// Close stops the timer, waits for an in-flight flush, writes what is left
// and closes the sink. Only the first call does anything.
func (w *Writer) Close(ctx context.Context) error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		<-w.done

		w.flushMu.Lock()
		err = w.flushLocked(ctx)
		w.flushMu.Unlock()

		if c, ok := w.sink.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing log sink: %w", cerr)
			}
		}
	})
	return err
}

func (w *Writer) Stats() Stats {
	w.mu.Lock()
	n := len(w.buf)
	w.mu.Unlock()
	return Stats{
		Buffered:       n,
		Flushes:        w.flushes.Load(),
		Written:        w.written.Load(),
		DroppedBatches: w.droppedBatches.Load(),
		DroppedRecords: w.droppedRecords.Load(),
		MirrorFailures: w.mirrorFailures.Load(),
	}
}
