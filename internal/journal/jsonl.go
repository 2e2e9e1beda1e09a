package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	ErrClosed     = errors.New("journal: writer is closed")
	ErrBufferFull = errors.New("journal: buffer full")
)

const drainTimeout = 5 * time.Second

// Entry is one line of the handoff journal.
type Entry struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Payload any       `json:"payload"`
}

// Writer appends entries as JSON lines to date-organized files. Writes are
// queued and flushed by a single goroutine so callers never block on disk.
type Writer struct {
	baseDir   string
	name      string
	maxSizeMB int

	writeCh chan Entry
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	now     func() time.Time

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
}

// NewWriter starts a journal writing to baseDir/<date>/<name>.jsonl.
func NewWriter(baseDir, name string, bufferSize, maxSizeMB int) *Writer {
	if name == "" {
		name = "handoff"
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	w := &Writer{
		baseDir:   baseDir,
		name:      name,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan Entry, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}

	w.wg.Add(1)
	go w.writeLoop()

	return w
}

// Append queues a payload under kind. It never blocks: a full buffer drops
// the entry and reports ErrBufferFull.
func (w *Writer) Append(kind string, payload any) error {
	entry := Entry{At: w.now().UTC(), Kind: kind, Payload: payload}
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.writeCh <- entry:
		return nil
	case <-w.done:
		return ErrClosed
	default:
		slog.Warn("journal buffer full, dropping entry", "kind", kind)
		return ErrBufferFull
	}
}

// Close stops the writer and flushes queued entries.
func (w *Writer) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()

		timeout := time.After(drainTimeout)
	drain:
		for {
			select {
			case entry := <-w.writeCh:
				w.writeEntry(entry)
			case <-timeout:
				slog.Warn("journal close timeout, some entries may be lost")
				break drain
			default:
				break drain
			}
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.logger != nil {
			err = w.logger.Close()
			w.logger = nil
		}
	})
	return err
}

// Path returns the file the next entry will land in.
func (w *Writer) Path() string {
	return filepath.Join(w.baseDir, w.now().UTC().Format("2006-01-02"), w.name+".jsonl")
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()

	for {
		select {
		case entry := <-w.writeCh:
			w.writeEntry(entry)
		case <-w.done:
			return
		}
	}
}

func (w *Writer) writeEntry(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		slog.Error("journal marshal failed", "kind", entry.Kind, "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := entry.At.Format("2006-01-02")
	if w.logger == nil || date != w.currentDate {
		if err := w.rotateForDate(date); err != nil {
			slog.Error("journal rotate failed", "date", date, "error", err)
			return
		}
	}

	if _, err := w.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "kind", entry.Kind, "error", err)
	}
}

func (w *Writer) rotateForDate(date string) error {
	if w.logger != nil {
		_ = w.logger.Close()
		w.logger = nil
	}

	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	filename := filepath.Join(dir, w.name+".jsonl")
	w.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     30,
		LocalTime:  false,
	}
	w.currentDate = date
	slog.Info("journal opened", "file", filename)
	return nil
}
