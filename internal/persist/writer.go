package persist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultDelay is the debounce window for station writes.
const DefaultDelay = 400 * time.Millisecond

// Store is the durable storage a Writer flushes into.
type Store interface {
	Reader
	Putter
	PutMany(ctx context.Context, values map[string][]byte) error
}

// Writer coalesces bursts of writes. Put buffers the encoded value and
// re-arms a single flush timer; Get serves buffered and in-flight values
// before storage, so callers always read what they last wrote. The last
// value queued for a key is the one that reaches storage.
//
// Under a continuous burst the flush is forced once the oldest buffered
// value has waited maxWait.
type Writer struct {
	store   Store
	delay   time.Duration
	maxWait time.Duration
	logger  *slog.Logger

	flushMu sync.Mutex // serializes flushes

	mu        sync.Mutex
	pending   map[string][]byte
	flushing  map[string][]byte // batch handed to storage, until it settles
	firstPut  time.Time
	timer     *time.Timer
	closed    bool
	lastError error
}

// NewWriter creates a Writer over store. delay <= 0 disables debouncing.
func NewWriter(store Store, delay time.Duration, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Writer{
		store:   store,
		delay:   delay,
		maxWait: 4 * delay,
		logger:  logger,
		pending: make(map[string][]byte),
	}
}

// Get returns the buffered or in-flight value for key, or reads through to
// storage.
func (w *Writer) Get(ctx context.Context, key string) ([]byte, error) {
	w.mu.Lock()
	if data, ok := w.pending[key]; ok {
		w.mu.Unlock()
		return data, nil
	}
	if data, ok := w.flushing[key]; ok {
		w.mu.Unlock()
		return data, nil
	}
	w.mu.Unlock()
	return w.store.Get(ctx, key)
}

// Put queues value for key. With debouncing disabled, or after Close, it
// writes through synchronously.
func (w *Writer) Put(ctx context.Context, key string, value []byte) error {
	w.mu.Lock()
	if w.delay <= 0 || w.closed {
		w.mu.Unlock()
		return w.store.Put(ctx, key, value)
	}

	now := time.Now()
	if len(w.pending) == 0 {
		w.firstPut = now
	}
	w.pending[key] = value

	switch {
	case w.timer == nil:
		w.timer = time.AfterFunc(w.delay, w.flushScheduled)
	case now.Sub(w.firstPut) < w.maxWait:
		w.timer.Reset(w.delay)
	}
	w.mu.Unlock()
	return nil
}

// Pending reports how many keys are waiting to be flushed.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// LastError returns the error of the most recent failed background flush.
func (w *Writer) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

// Flush writes every buffered value now, in one batch. The batch stays
// readable through Get until storage has accepted or rejected it.
func (w *Writer) Flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	batch := w.pending
	if len(batch) == 0 {
		w.mu.Unlock()
		return nil
	}
	w.pending = make(map[string][]byte)
	w.flushing = batch
	w.mu.Unlock()

	err := w.store.PutMany(ctx, batch)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushing = nil
	if err != nil {
		w.requeueLocked(batch)
		return fmt.Errorf("flushing %d keys: %w", len(batch), err)
	}
	return nil
}

// Close flushes and switches the Writer to write-through.
func (w *Writer) Close(ctx context.Context) error {
	err := w.Flush(ctx)
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return err
}

func (w *Writer) flushScheduled() {
	err := w.Flush(context.Background())

	w.mu.Lock()
	w.lastError = err
	if err != nil && len(w.pending) > 0 && w.timer == nil && !w.closed {
		w.timer = time.AfterFunc(w.delay, w.flushScheduled)
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("deferred write failed, will retry", "error", err)
	}
}

// requeueLocked puts a failed batch back, never overwriting a value queued
// since.
func (w *Writer) requeueLocked(batch map[string][]byte) {
	if len(w.pending) == 0 {
		w.firstPut = time.Now()
	}
	for key, value := range batch {
		if _, newer := w.pending[key]; !newer {
			w.pending[key] = value
		}
	}
}
