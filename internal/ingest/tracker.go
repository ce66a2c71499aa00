// Package ingest classifies dropped sources, expands ZIP archives,
// suppresses duplicate files and feeds the pair matcher.
package ingest

import (
	"fmt"
	"sync"
)

// KeyTracker decides whether a file has already been ingested this session.
// The key is relativePathOrName + "_" + size + "_" + lastModified; the
// first occurrence is accepted and recorded, later occurrences are dropped
// silently. Re-dropping the same folder is a no-op, not a failure.
type KeyTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewKeyTracker creates an empty tracker.
func NewKeyTracker() *KeyTracker {
	return &KeyTracker{seen: make(map[string]struct{})}
}

// Accept reports whether this file is new to the session, recording it when
// it is.
func (t *KeyTracker) Accept(pathOrName string, size, lastModified int64) bool {
	key := fmt.Sprintf("%s_%d_%d", pathOrName, size, lastModified)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.seen[key]; dup {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}

// Len returns the number of recorded keys.
func (t *KeyTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}
