package app

import (
	"sync"

	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Conn    core.SignalConnection
	Session domain.Member
}

// Snapshot is a copy of one registry entry; mutating it changes nothing.
type Snapshot struct {
	ID      core.ConnID
	Conn    core.SignalConnection
	Session domain.Member
}

// Registry maps connection ids to their transport and session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.ConnID]*sessionEntry)}
}

// Register stores conn with an empty session under a fresh id.
func (r *Registry) Register(conn core.SignalConnection) core.ConnID {
	id := core.NewConnID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Conn: conn}
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Msg("registered connection")
	return id
}

func (r *Registry) Get(id core.ConnID) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{ID: id, Conn: e.Conn, Session: e.Session}, true
}

// UpdateSession replaces the session. It reports false when the connection
// is already gone, which callers treat as a lost race, not a failure.
func (r *Registry) UpdateSession(id core.ConnID, m domain.Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	e.Session = m
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(m.RoomID)).Msg("updated session")
	return true
}

func (r *Registry) ClearSession(id core.ConnID) {
	r.UpdateSession(id, domain.Member{})
}

// Unregister is idempotent; it reports whether an entry was removed.
func (r *Registry) Unregister(id core.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	log.Debug().Str("module", "app.registry").Str("conn", string(id)).Msg("unregistered connection")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
