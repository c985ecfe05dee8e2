// Package audit appends one JSON object per line for every decision
// the runner takes, in strict event order.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrClosed         = errors.New("audit writer closed")
	ErrNotStarted     = errors.New("audit writer not started")
	ErrAlreadyStarted = errors.New("audit writer already started")
)

const (
	defaultQueueSize     = 1024
	defaultFlushInterval = time.Second
	tsLayout             = "2006-01-02T15:04:05.000Z"
)

// Config controls the audit writer.
type Config struct {
	Path          string
	QueueSize     int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	return c
}

// Writer appends audit lines from a buffered queue through a single
// goroutine, so lines are never interleaved or reordered.
type Writer struct {
	cfg Config
	ch  chan []byte
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32

	file *os.File
	buf  *bufio.Writer
}

// NewWriter opens the audit file for appending, creating parent
// directories as needed.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if cfg.Path == "" {
		return nil, errors.New("audit path is empty")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{
		cfg:  cfg,
		ch:   make(chan []byte, cfg.QueueSize),
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start() error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()
	return nil
}

// Append enqueues one event line. It blocks rather than drop: a missing
// audit line would hide a causal gap between decisions.
func (w *Writer) Append(event Event, fields map[string]any) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}

	line := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		line[k] = v
	}
	line["ts"] = time.Now().UTC().Format(tsLayout)
	line["event"] = event

	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	w.ch <- b
	return nil
}

// Close stops the writer and flushes buffered lines to disk.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first write error observed, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (w *Writer) run() {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case b, ok := <-w.ch:
			if !ok {
				w.finish()
				return
			}
			w.write(b)
		case <-ticker.C:
			if err := w.buf.Flush(); err != nil {
				w.setErr(err)
			}
		}
	}
}

func (w *Writer) write(b []byte) {
	if _, err := w.buf.Write(b); err != nil {
		w.setErr(err)
		return
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		w.setErr(err)
	}
}

func (w *Writer) finish() {
	// drain anything enqueued before close
	for b := range w.ch {
		w.write(b)
	}
	if err := w.buf.Flush(); err != nil {
		w.setErr(err)
	}
	if err := w.file.Sync(); err != nil {
		w.setErr(err)
	}
	if err := w.file.Close(); err != nil {
		w.setErr(err)
	}
}

func (w *Writer) setErr(err error) {
	if w.err.Load() == nil {
		w.err.Store(err)
	}
}
