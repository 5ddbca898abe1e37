package auction

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// sessionHandle wraps one live session together with its concurrency
// machinery. Two locks with distinct roles:
//
//   - opMu serializes operator commands (start/pause/stop/select) per
//     auction, so multi-step commands (stop old ticker, build lot, start
//     new ticker) never interleave. Never held by the ticking task.
//   - mu guards the session state itself and is the per-auction
//     exclusive scope shared between commands, bids and the ticking
//     task. Broadcasts are enqueued while mu is held so they leave in
//     mutation order; mu is never held while waiting for a ticker to
//     exit.
type sessionHandle struct {
	opMu sync.Mutex

	mu      sync.Mutex
	session *Session

	// Ticking task lifecycle, guarded by mu. cancelTick is the explicit
	// per-auction cancellation signal; tickDone closes when the task has
	// fully exited.
	cancelTick context.CancelFunc
	tickDone   chan struct{}
}

// takeTicker detaches the current ticking task's cancellation handles,
// leaving the handle with no task. Caller must hold mu, and must cancel
// and wait only after releasing it (the task's final iteration may need
// mu to observe cancellation).
func (h *sessionHandle) takeTicker() (cancel context.CancelFunc, done chan struct{}) {
	cancel, done = h.cancelTick, h.tickDone
	h.cancelTick, h.tickDone = nil, nil
	return cancel, done
}

// registry is the concurrency-safe table of all live auction sessions,
// keyed by auction id. Map operations are safe under concurrent use;
// mutating a session still requires its handle's mu.
type registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionHandle
}

func newRegistry() *registry {
	return &registry{sessions: make(map[uuid.UUID]*sessionHandle)}
}

func (r *registry) get(id uuid.UUID) (*sessionHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	return h, ok
}

// put registers a session, returning its handle. If a handle already
// exists for the id it is returned unchanged; a live session is never
// silently replaced.
func (r *registry) put(s *Session) (*sessionHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.sessions[s.ID]; ok {
		return h, false
	}
	h := &sessionHandle{session: s}
	r.sessions[s.ID] = h
	return h, true
}

func (r *registry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *registry) ids() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
