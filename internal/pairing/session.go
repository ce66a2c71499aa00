// Package pairing reconciles XML and XSL documents by basename across
// asynchronous, out-of-order arrival. All state hangs off a Session so that
// independent clients (and tests) never share caches.
package pairing

import (
	"fmt"
	"sync"

	"github.com/formpair/backend/internal/models"
)

// Session holds the pairing state for one client: the basename-keyed XSL
// cache, the XML pending pool, the completed pair list and the current
// selection. The cache and pool are mutated only by the Matcher; the pair
// list additionally supports delete-by-key from the API layer.
type Session struct {
	mu       sync.RWMutex
	xslCache map[string]*models.XslEntry
	pending  map[string][]*models.PendingXML
	pairs    []*models.FilePair
	selected string
	counter  uint64
}

// NewSession creates an empty pairing session.
func NewSession() *Session {
	return &Session{
		xslCache: make(map[string]*models.XslEntry),
		pending:  make(map[string][]*models.PendingXML),
	}
}

// Pairs returns the completed pairs in creation order.
func (s *Session) Pairs() []*models.FilePair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.FilePair, len(s.pairs))
	copy(out, s.pairs)
	return out
}

// Get returns a pair by key.
func (s *Session) Get(key string) (*models.FilePair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pairs {
		if p.Key == key {
			return p, true
		}
	}
	return nil, false
}

// Delete removes a pair by key. If the deleted pair was selected, the
// selection is cleared.
func (s *Session) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.pairs {
		if p.Key == key {
			s.pairs = append(s.pairs[:i], s.pairs[i+1:]...)
			if s.selected == key {
				s.selected = ""
			}
			return true
		}
	}
	return false
}

// Selected returns the key of the currently selected pair, or "".
func (s *Session) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Select makes the given pair the current selection.
func (s *Session) Select(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pairs {
		if p.Key == key {
			s.selected = key
			return nil
		}
	}
	return fmt.Errorf("pair not found: %s", key)
}

// SelectIfNone sets the selection to key only when nothing is selected yet.
// Returns true when the selection changed. This is the implicit first-pair
// selection the ingestion pipeline applies after a batch.
func (s *Session) SelectIfNone(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != "" {
		return false
	}
	s.selected = key
	return true
}

// PendingCount returns the number of XML documents waiting for an XSL
// counterpart.
func (s *Session) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, q := range s.pending {
		n += len(q)
	}
	return n
}

// XslCount returns the number of cached stylesheets.
func (s *Session) XslCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.xslCache)
}
