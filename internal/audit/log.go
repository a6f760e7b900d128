// Package audit implements the append-only JSONL event store from
// spec.md §4.7: one file per UTC day, rotated on first write after the
// day rolls over, synchronous append-and-flush before acknowledgment, and
// a fatal signal on write failure that must halt trading (spec.md §7's
// AuditWriteFailure). Grounded on gurre-prime-fix-md-go's
// transaction-then-commit discipline in fixclient/storage.go, rendered
// here as write-then-flush rather than a SQL transaction since the
// destination is a flat file.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dundas/truex-mm/internal/model"
)

// EntryType is the kind of audit entry.
type EntryType string

const (
	EntryFixMessage EntryType = "FIX_MESSAGE"
	EntryOrderEvent EntryType = "ORDER_EVENT"
	EntryFillEvent  EntryType = "FILL_EVENT"
	EntryError      EntryType = "ERROR"
)

// Entry is a single append-only record.
type Entry struct {
	TS        time.Time       `json:"ts"`
	Type      EntryType       `json:"type"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
}

// Log is a daily-rotated, single-writer JSONL append log. All writes
// serialize through one writer and block until flushed to disk, per
// spec.md §5.
type Log struct {
	dir       string
	sessionID string

	mu          sync.Mutex
	file        *os.File
	writer      *bufio.Writer
	currentDate string

	halted   bool
	onHalt   func(reason string)
}

// New opens (or creates) today's audit file under dir.
func New(dir, sessionID string, onHalt func(reason string)) (*Log, error) {
	l := &Log{dir: dir, sessionID: sessionID, onHalt: onHalt}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, model.Wrap(model.StorageError, "mkdir audit dir", err)
	}
	if err := l.rotateIfNeeded(time.Now()); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) pathForDate(date string) string {
	return filepath.Join(l.dir, fmt.Sprintf("truex-audit-%s.jsonl", date))
}

// rotateIfNeeded opens a new day's file if the UTC date has rolled over.
// Caller must hold l.mu, except on the very first call from New.
func (l *Log) rotateIfNeeded(now time.Time) error {
	date := now.UTC().Format("2006-01-02")
	if date == l.currentDate && l.file != nil {
		return nil
	}
	if l.file != nil {
		l.writer.Flush()
		l.file.Close()
	}
	f, err := os.OpenFile(l.pathForDate(date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return model.Wrap(model.StorageError, "open audit file", err)
	}
	l.file = f
	l.writer = bufio.NewWriter(f)
	l.currentDate = date
	return nil
}

// Append writes entry synchronously and flushes before returning. On
// failure it sets Halted and invokes onHalt exactly once — every
// callsite that stores a state transition MUST wait for this call to
// return before exposing the transition elsewhere, per spec.md §4.7/§5.
func (l *Log) Append(entryType EntryType, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return model.Wrap(model.StorageError, "marshal audit payload", err)
	}
	entry := Entry{TS: time.Now().UTC(), Type: entryType, SessionID: l.sessionID, Payload: raw}
	line, err := json.Marshal(entry)
	if err != nil {
		return model.Wrap(model.StorageError, "marshal audit entry", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted {
		return model.New(model.AuditWriteFailure, "audit log halted, no further writes accepted")
	}

	if err := l.rotateIfNeeded(time.Now()); err != nil {
		l.halt(err)
		return model.Wrap(model.AuditWriteFailure, "audit rotation failed", err)
	}

	if _, err := l.writer.Write(append(line, '\n')); err != nil {
		l.halt(err)
		return model.Wrap(model.AuditWriteFailure, "audit write failed", err)
	}
	if err := l.writer.Flush(); err != nil {
		l.halt(err)
		return model.Wrap(model.AuditWriteFailure, "audit flush failed", err)
	}
	if err := l.file.Sync(); err != nil {
		l.halt(err)
		return model.Wrap(model.AuditWriteFailure, "audit fsync failed", err)
	}
	return nil
}

// halt marks the log halted and fires onHalt once. Caller must hold l.mu.
func (l *Log) halt(cause error) {
	if l.halted {
		return
	}
	l.halted = true
	if l.onHalt != nil {
		go l.onHalt(cause.Error())
	}
}

// Halted reports whether the log has stopped accepting writes.
func (l *Log) Halted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

// Close flushes and closes the current file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	l.writer.Flush()
	return l.file.Close()
}
