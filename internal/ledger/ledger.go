// Package ledger holds the per-batch table of per-document processing
// state. One Ledger is created per batch and discarded with it; it is
// the only object mutated by concurrent workers.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/qianyu2019/firedoor-extractor/internal/models"
)

// Entry is the processing state of one document. Image is written once
// at creation; Markdown, Record and Err are written only through Mutate.
type Entry struct {
	SourcePath string
	Image      []byte // encoded PNG of the cropped page
	Markdown   string
	Record     *models.ExtractionRecord
	Err        error
}

// Settled reports whether the entry reached a terminal outcome: a real
// record or the failure sentinel.
func (e *Entry) Settled() bool {
	return e.Record != nil
}

// Ledger maps document keys to entries behind a single mutex. Contention
// is low (one write per document per step), so per-key locking is not
// worth it.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates an empty batch ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// Create registers a document. Duplicate keys are a programmer error.
func (l *Ledger) Create(key, sourcePath string, image []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[key]; ok {
		return fmt.Errorf("ledger: duplicate key %q", key)
	}
	l.entries[key] = &Entry{SourcePath: sourcePath, Image: image}
	return nil
}

// Get returns a copy of the entry for key.
func (l *Ledger) Get(key string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Mutate applies fn to the entry for key under the ledger lock. It is
// the only way to write Markdown, Record or Err; fn must not block.
func (l *Ledger) Mutate(key string, fn func(*Entry)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		return fmt.Errorf("ledger: unknown key %q", key)
	}
	fn(e)
	return nil
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Keys returns all document keys in sorted order.
func (l *Ledger) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of every entry, keyed by document. Exporters
// call this once the batch barrier has passed.
func (l *Ledger) Snapshot() map[string]Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Entry, len(l.entries))
	for k, e := range l.entries {
		out[k] = *e
	}
	return out
}
