package auction

import (
	"sort"
	"testing"

	"github.com/google/uuid"
)

func TestViewerRegistry_JoinCountsDistinctViewers(t *testing.T) {
	v := newViewerRegistry()
	auctionID := uuid.New()

	if got := v.join("conn-1", auctionID, "alice"); got != 1 {
		t.Errorf("first join count = %d, want 1", got)
	}
	if got := v.join("conn-2", auctionID, "bob"); got != 2 {
		t.Errorf("second join count = %d, want 2", got)
	}
	// Same viewer on a second connection does not bump the count.
	if got := v.join("conn-3", auctionID, "alice"); got != 2 {
		t.Errorf("duplicate viewer join count = %d, want 2", got)
	}
}

func TestViewerRegistry_LeaveDropsViewerOnLastConnection(t *testing.T) {
	v := newViewerRegistry()
	auctionID := uuid.New()
	v.join("conn-1", auctionID, "alice")
	v.join("conn-2", auctionID, "alice")
	v.join("conn-3", auctionID, "bob")

	gotAuction, count, ok := v.leave("conn-1")
	if !ok {
		t.Fatal("leave of known connection returned ok=false")
	}
	if gotAuction != auctionID {
		t.Errorf("leave auction = %s, want %s", gotAuction, auctionID)
	}
	if count != 2 {
		t.Errorf("count after first leave = %d, want 2 (alice still connected)", count)
	}

	if _, count, _ = v.leave("conn-2"); count != 1 {
		t.Errorf("count after alice fully gone = %d, want 1", count)
	}
}

func TestViewerRegistry_LeaveUnknownConnection(t *testing.T) {
	v := newViewerRegistry()

	if _, _, ok := v.leave("nope"); ok {
		t.Error("leave of unknown connection returned ok=true")
	}
}

func TestViewerRegistry_ConnectionIDReuse(t *testing.T) {
	v := newViewerRegistry()
	a, b := uuid.New(), uuid.New()

	v.join("conn-1", a, "alice")
	// Reusing the connection id moves it to another auction cleanly.
	if got := v.join("conn-1", b, "alice"); got != 1 {
		t.Errorf("count on auction b = %d, want 1", got)
	}
	if got := v.count(a); got != 0 {
		t.Errorf("count on auction a = %d, want 0 after reuse", got)
	}
}

func TestViewerRegistry_Evict(t *testing.T) {
	v := newViewerRegistry()
	a, b := uuid.New(), uuid.New()
	v.join("conn-1", a, "alice")
	v.join("conn-2", a, "bob")
	v.join("conn-3", b, "carol")

	connIDs := v.evict(a)
	sort.Strings(connIDs)
	if len(connIDs) != 2 || connIDs[0] != "conn-1" || connIDs[1] != "conn-2" {
		t.Errorf("evict returned %v, want [conn-1 conn-2]", connIDs)
	}
	if got := v.count(a); got != 0 {
		t.Errorf("count after evict = %d, want 0", got)
	}
	if got := v.count(b); got != 1 {
		t.Errorf("other auction count = %d, want 1", got)
	}
	// Evicted connections are fully forgotten.
	if _, _, ok := v.leave("conn-1"); ok {
		t.Error("evicted connection still known to leave")
	}
}

func TestViewerRegistry_Clear(t *testing.T) {
	v := newViewerRegistry()
	a := uuid.New()
	v.join("conn-1", a, "alice")

	v.clear()
	if got := v.count(a); got != 0 {
		t.Errorf("count after clear = %d, want 0", got)
	}
}
