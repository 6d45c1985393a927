package session

import (
	"errors"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petpal/health-backend/internal/model/session"
)

var (
	ErrSessionExists    = errors.New("session already active")
	ErrSessionNotFound  = errors.New("session not found")
	ErrUpstreamAttached = errors.New("upstream already attached")
)

type entry struct {
	session  session.Session
	upstream io.Closer
}

// Manager owns the process-wide mapping from session id to open session.
// Entries live only as long as their socket.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewManager returns an empty registry.
func NewManager() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// Open registers a new session. An empty id gets a random one; an id that is
// still registered is rejected with ErrSessionExists.
func (m *Manager) Open(id string, kind session.Kind) (session.Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	sess := session.Session{
		ID:        id,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[id]; exists {
		return session.Session{}, ErrSessionExists
	}
	m.entries[id] = &entry{session: sess}
	return sess, nil
}

// Attach binds the upstream connection of a session. A session holds at most one.
func (m *Manager) Attach(id string, upstream io.Closer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ErrSessionNotFound
	}
	if e.upstream != nil {
		return ErrUpstreamAttached
	}
	e.upstream = upstream
	return nil
}

// Get retrieves a session by identifier.
func (m *Manager) Get(id string) (session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return session.Session{}, ErrSessionNotFound
	}
	return e.session, nil
}

// Remove drops the entry. Closing the upstream stays with whoever attached it.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// List returns open sessions ordered by creation time.
func (m *Manager) List() []session.Session {
	m.mu.RLock()
	list := make([]session.Session, 0, len(m.entries))
	for _, e := range m.entries {
		list = append(list, e.session)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// CloseAll closes every attached upstream and empties the registry. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for id, e := range entries {
		if e.upstream == nil {
			continue
		}
		if err := e.upstream.Close(); err != nil {
			log.Printf("[session] close upstream failed session=%s: %v", id, err)
		}
	}
}
