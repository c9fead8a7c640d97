package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrDuplicateSession indicates a session id was registered twice.
// Session ids are generated, so this is a programming error.
var ErrDuplicateSession = errors.New("duplicate session")

// Session is one live, authenticated connection. A user may own any number
// of concurrent sessions (devices, tabs); each gets its own outbound queue
// consumed by a single write loop.
type Session struct {
	ID     string
	UserID string

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewSession(userID string, sendBufferSize int) *Session {
	if sendBufferSize <= 0 {
		sendBufferSize = 256
	}
	return &Session{
		ID:     uuid.New().String(),
		UserID: userID,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// Frames is the session's outbound frame stream, consumed by the
// connection's write loop.
func (s *Session) Frames() <-chan []byte { return s.send }

// Closed is closed once the session is dropped from the registry.
func (s *Session) Closed() <-chan struct{} { return s.closed }

// Push queues frame without blocking; reports whether it was handed off.
// A full queue or a dropped session reports false. Connection handlers use
// it for session-local error frames; group traffic goes through Broadcaster.
func (s *Session) Push(frame []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Registry is the authoritative record of live sessions and a reverse index
// from group key to member sessions. All state lives behind one mutex; no
// method performs I/O or blocks while holding it.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	groups   map[string]map[string]*Session // group key -> session id -> session
	joined   map[string]map[string]struct{} // session id -> group keys
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		groups:   make(map[string]map[string]*Session),
		joined:   make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; ok {
		return errors.Wrap(ErrDuplicateSession, s.ID)
	}
	r.sessions[s.ID] = s
	r.joined[s.ID] = make(map[string]struct{})
	return nil
}

// Join adds the session to the group, creating the group lazily.
// Joining an already-joined group, or joining from an unknown (already
// dropped) session, is a no-op.
func (r *Registry) Join(sessionID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if r.groups[group] == nil {
		r.groups[group] = make(map[string]*Session)
	}
	r.groups[group][sessionID] = s
	r.joined[sessionID][group] = struct{}{}
}

// Leave removes the session from the group. Idempotent.
func (r *Registry) Leave(sessionID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(sessionID, group)
}

func (r *Registry) leaveLocked(sessionID, group string) {
	if members, ok := r.groups[group]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
	if groups, ok := r.joined[sessionID]; ok {
		delete(groups, group)
	}
}

// Drop removes the session from every group it joined and from the registry,
// and marks it closed. Disconnects can be observed from more than one code
// path, so Drop must be (and is) safe to call repeatedly.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		for group := range r.joined[sessionID] {
			r.leaveLocked(sessionID, group)
		}
		delete(r.joined, sessionID)
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if ok {
		s.close()
	}
}

// MembersOf returns a snapshot of the group's member sessions.
// An unknown group yields an empty slice; emptiness is not an error.
func (r *Registry) MembersOf(group string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.groups[group]
	snapshot := make([]*Session, 0, len(members))
	for _, s := range members {
		snapshot = append(snapshot, s)
	}
	return snapshot
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
