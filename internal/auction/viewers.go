package auction

import (
	"sync"

	"github.com/google/uuid"
)

// viewerRef maps a transport connection back to the (auction, viewer)
// pair it watches, so a dropped connection can be cleaned up without an
// explicit leave.
type viewerRef struct {
	auctionID uuid.UUID
	viewerID  string
}

// viewerRegistry tracks which viewer identities watch which auction.
// A viewer may hold several connections; the viewer counts toward the
// auction's viewer count until its last connection goes away.
type viewerRegistry struct {
	mu sync.RWMutex
	// auction id -> viewer id -> open connection count
	viewers map[uuid.UUID]map[string]int
	conns   map[string]viewerRef
}

func newViewerRegistry() *viewerRegistry {
	return &viewerRegistry{
		viewers: make(map[uuid.UUID]map[string]int),
		conns:   make(map[string]viewerRef),
	}
}

// join registers a connection for (auctionID, viewerID) and returns the
// auction's resulting viewer count. Joining an auction with no live
// session is allowed; the count simply starts from zero.
func (v *viewerRegistry) join(connID string, auctionID uuid.UUID, viewerID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	if old, ok := v.conns[connID]; ok {
		// Connection id reuse; drop the stale entry first.
		v.dropLocked(connID, old)
	}
	v.conns[connID] = viewerRef{auctionID: auctionID, viewerID: viewerID}
	set := v.viewers[auctionID]
	if set == nil {
		set = make(map[string]int)
		v.viewers[auctionID] = set
	}
	set[viewerID]++
	return len(set)
}

// lookup returns the auction a connection watches without removing it.
func (v *viewerRegistry) lookup(connID string) (uuid.UUID, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ref, ok := v.conns[connID]
	return ref.auctionID, ok
}

// leave removes a connection, by explicit leave or by connection loss.
// It returns the auction the connection was watching and the remaining
// viewer count; ok is false for an unknown connection.
func (v *viewerRegistry) leave(connID string) (auctionID uuid.UUID, count int, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ref, ok := v.conns[connID]
	if !ok {
		return uuid.Nil, 0, false
	}
	v.dropLocked(connID, ref)
	return ref.auctionID, len(v.viewers[ref.auctionID]), true
}

func (v *viewerRegistry) dropLocked(connID string, ref viewerRef) {
	delete(v.conns, connID)
	set := v.viewers[ref.auctionID]
	if set == nil {
		return
	}
	if set[ref.viewerID] <= 1 {
		delete(set, ref.viewerID)
	} else {
		set[ref.viewerID]--
	}
	if len(set) == 0 {
		delete(v.viewers, ref.auctionID)
	}
}

// count returns the current viewer count for an auction.
func (v *viewerRegistry) count(auctionID uuid.UUID) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.viewers[auctionID])
}

// evict removes every viewer of an auction and returns the connection
// ids that must be force-disconnected.
func (v *viewerRegistry) evict(auctionID uuid.UUID) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var connIDs []string
	for connID, ref := range v.conns {
		if ref.auctionID == auctionID {
			connIDs = append(connIDs, connID)
			delete(v.conns, connID)
		}
	}
	delete(v.viewers, auctionID)
	return connIDs
}

// clear empties the registry. Used on process shutdown.
func (v *viewerRegistry) clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.viewers = make(map[uuid.UUID]map[string]int)
	v.conns = make(map[string]viewerRef)
}
