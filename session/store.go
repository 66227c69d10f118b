// Package session provides scoped persistent state shared across multiple
// invocations from the same logical client conversation.
package session

import (
	"sort"
	"sync"
	"time"
)

// Store defines the interface for keyed per-session state.
//
// Implementations must serialize concurrent access per key, not globally:
// operations on unrelated keys in the same session proceed concurrently,
// as do operations on unrelated sessions.
type Store interface {
	// Get retrieves a value. The second return is false if the key is unset;
	// an unset key is not an error.
	Get(sessionID, key string) (string, bool, error)

	// Set stores a value, creating the session lazily if needed.
	Set(sessionID, key, value string) error

	// Delete removes a key. Deleting an unset key is not an error.
	Delete(sessionID, key string) error

	// Keys returns the keys currently set for a session, sorted.
	Keys(sessionID string) ([]string, error)

	// Close discards all state for a session.
	Close(sessionID string) error

	// Sweep discards sessions idle for longer than maxIdle and returns
	// how many were removed. Idle expiry is owned by the store.
	Sweep(maxIdle time.Duration) (int, error)

	// CloseAll releases the store and any backing resources.
	CloseAll() error
}

// Session is a handle binding a Store to one session id. Routers receive it
// from the dispatcher and never name the id themselves.
type Session struct {
	id    string
	store Store
}

// NewSession binds store to sessionID.
func NewSession(sessionID string, store Store) *Session {
	return &Session{id: sessionID, store: store}
}

// ID returns the session id this handle is bound to.
func (s *Session) ID() string {
	return s.id
}

// Get retrieves a value for this session.
func (s *Session) Get(key string) (string, bool, error) {
	return s.store.Get(s.id, key)
}

// Set stores a value for this session.
func (s *Session) Set(key, value string) error {
	return s.store.Set(s.id, key, value)
}

// Delete removes a key for this session.
func (s *Session) Delete(key string) error {
	return s.store.Delete(s.id, key)
}

// Keys returns the keys set for this session.
func (s *Session) Keys() ([]string, error) {
	return s.store.Keys(s.id)
}

// entry is one key's slot. Its mutex serializes readers and writers of that
// key only.
type entry struct {
	mu    sync.Mutex
	value string
}

// sessionData holds one session's keys. mu guards the keys map structure,
// never the values; value access goes through each entry's own lock.
type sessionData struct {
	mu       sync.Mutex
	keys     map[string]*entry
	lastUsed time.Time
}

// MemoryStore provides an in-memory implementation of Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionData
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*sessionData),
	}
}

// getOrCreateSession creates the session lazily on first access.
func (m *MemoryStore) getOrCreateSession(sessionID string) *sessionData {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		sess = &sessionData{keys: make(map[string]*entry)}
		m.sessions[sessionID] = sess
	}
	sess.lastUsed = time.Now()
	return sess
}

func (s *sessionData) entryFor(key string, create bool) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.keys[key]
	if !ok && create {
		e = &entry{}
		s.keys[key] = e
	}
	return e
}

// Get implements Store.
func (m *MemoryStore) Get(sessionID, key string) (string, bool, error) {
	sess := m.getOrCreateSession(sessionID)
	e := sess.entryFor(key, false)
	if e == nil {
		return "", false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, true, nil
}

// Set implements Store.
func (m *MemoryStore) Set(sessionID, key, value string) error {
	sess := m.getOrCreateSession(sessionID)
	e := sess.entryFor(key, true)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = value
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(sessionID, key string) error {
	sess := m.getOrCreateSession(sessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	delete(sess.keys, key)
	return nil
}

// Keys implements Store.
func (m *MemoryStore) Keys(sessionID string) ([]string, error) {
	sess := m.getOrCreateSession(sessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	keys := make([]string, 0, len(sess.keys))
	for key := range sess.keys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Store.
func (m *MemoryStore) Close(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	return nil
}

// Sweep implements Store.
func (m *MemoryStore) Sweep(maxIdle time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for id, sess := range m.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// CloseAll implements Store.
func (m *MemoryStore) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = make(map[string]*sessionData)
	return nil
}
