// Package session manages pairing-session lifetimes. Each UI client gets an
// isolated state object (XSL cache, pending pool, pairs, selection) so
// independent sessions never cross-contaminate.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/formpair/backend/internal/ingest"
	"github.com/formpair/backend/internal/pairing"
	"github.com/google/uuid"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion.
const MaxSessions = 50

// KeepAliveWindow is how long an actively used session is protected from
// idle cleanup.
const KeepAliveWindow = 5 * time.Minute

// State bundles everything owned by one pairing session.
type State struct {
	ID           string
	Pairing      *pairing.Session
	Matcher      *pairing.Matcher
	Pipeline     *ingest.Pipeline
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Manager handles active pairing sessions.
type Manager struct {
	sessions     map[string]*State
	mu           sync.RWMutex
	keywords     []string
	allowedTypes []string
}

// NewManager creates a session manager. keywords is the organization-name
// keyword set handed to every matcher (nil means built-in defaults);
// allowedTypes is the extension whitelist handed to every pipeline (nil
// means .xml/.xsl/.zip).
func NewManager(keywords, allowedTypes []string) *Manager {
	return &Manager{
		sessions:     make(map[string]*State),
		keywords:     keywords,
		allowedTypes: allowedTypes,
	}
}

// Create builds a fresh session with its own matcher actor and pipeline.
func (m *Manager) Create() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= MaxSessions {
		m.evictOldestLocked()
	}
	if len(m.sessions) >= MaxSessions {
		return nil, fmt.Errorf("session limit reached (%d)", MaxSessions)
	}

	ps := pairing.NewSession()
	matcher := pairing.NewMatcher(ps, m.keywords)
	state := &State{
		ID:           uuid.New().String(),
		Pairing:      ps,
		Matcher:      matcher,
		Pipeline:     ingest.NewPipeline(ps, matcher, m.allowedTypes),
		CreatedAt:    time.Now(),
		LastAccessed: time.Now(),
	}
	m.sessions[state.ID] = state

	fmt.Printf("[Session %s] Created\n", state.ID[:8])
	return state, nil
}

// Get returns a session by ID and refreshes its keep-alive timestamp.
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	state.LastAccessed = time.Now()
	return state, true
}

// Delete drops a session, stopping its matcher actor. All pairing state is
// discarded (session reset).
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.Matcher.Close()
	delete(m.sessions, id)
	fmt.Printf("[Session %s] Deleted\n", id[:8])
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupIdleSessions removes sessions idle for longer than maxAge, keeping
// anything touched within KeepAliveWindow.
func (m *Manager) CleanupIdleSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-KeepAliveWindow)

	for id, state := range m.sessions {
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			state.Matcher.Close()
			delete(m.sessions, id)
			fmt.Printf("[Session %s] Cleaned up idle session (last accessed %s ago)\n",
				id[:8], time.Since(state.LastAccessed).Round(time.Second))
		}
	}
}

// evictOldestLocked drops the least recently accessed session to make room.
func (m *Manager) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, state := range m.sessions {
		if oldestID == "" || state.LastAccessed.Before(oldest) {
			oldestID = id
			oldest = state.LastAccessed
		}
	}
	if oldestID != "" {
		m.sessions[oldestID].Matcher.Close()
		delete(m.sessions, oldestID)
		fmt.Printf("[Session %s] Evicted to stay under session limit\n", oldestID[:8])
	}
}
