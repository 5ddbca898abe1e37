package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kloknet/klok/internal/models"
)

// Event type names used by Broadcaster implementations and by the
// viewer gateway to route payloads.
const (
	EventTypeAuctionStateChanged = "AuctionStateChanged"
	EventTypeLotChanged          = "LotChanged"
	EventTypePriceTick           = "PriceTick"
	EventTypeBidAccepted         = "BidAccepted"
	EventTypeLotAwaitingNext     = "LotAwaitingNext"
	EventTypeViewerCountChanged  = "ViewerCountChanged"
	EventTypeForceDisconnect     = "ForceDisconnect"
	EventTypeRegionAuctionStart  = "RegionAuctionStarted"
	EventTypeRegionAuctionEnd    = "RegionAuctionEnded"
)

// AuctionStatePayload is broadcast on every status transition and lot
// selection, carrying the full headline state of the auction.
type AuctionStatePayload struct {
	AuctionID   string     `json:"auction_id"`
	Status      string     `json:"status"`
	ActiveLotID *string    `json:"active_lot_id,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	ViewerCount int        `json:"viewer_count"`
	TotalRounds int        `json:"total_rounds"`
	PeakViewers int        `json:"peak_viewers"`
	RoundEndsAt *time.Time `json:"round_ends_at,omitempty"`
}

// RegionAuctionPayload announces an auction going live or ending to the
// region-level feed.
type RegionAuctionPayload struct {
	Region    string     `json:"region"`
	Country   string     `json:"country"`
	AuctionID string     `json:"auction_id"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// LotChangedPayload announces a new lot on the clock.
type LotChangedPayload struct {
	AuctionID     string  `json:"auction_id"`
	LotID         string  `json:"lot_id"`
	StartingPrice float64 `json:"starting_price"`
	InitialStock  int     `json:"initial_stock"`
}

// PriceTickPayload is the once-per-second live price of the active lot.
type PriceTickPayload struct {
	AuctionID string    `json:"auction_id"`
	LotID     string    `json:"lot_id"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// BidAcceptedPayload reports an accepted bid and the stock left after it.
type BidAcceptedPayload struct {
	AuctionID      string  `json:"auction_id"`
	LotID          string  `json:"lot_id"`
	Price          float64 `json:"price"`
	QuantitySold   int     `json:"quantity_sold"`
	RemainingStock int     `json:"remaining_stock"`
}

// LotAwaitingNextPayload signals that a round finished and the clock is
// idle until the operator selects the next lot.
type LotAwaitingNextPayload struct {
	AuctionID      string `json:"auction_id"`
	CompletedLotID string `json:"completed_lot_id"`
}

// ViewerCountPayload reports the auction's viewer count after a join or
// leave.
type ViewerCountPayload struct {
	AuctionID string `json:"auction_id"`
	Count     int    `json:"count"`
}

// ForceDisconnectPayload instructs the viewer transport to close the
// listed connections, used when a stopping auction evicts its viewers.
type ForceDisconnectPayload struct {
	AuctionID     string   `json:"auction_id"`
	ConnectionIDs []string `json:"connection_ids"`
}

// Broadcaster delivers structured notifications to the viewers of an
// auction or a region. The engine treats delivery as fire-and-forget:
// implementations must only enqueue, and a returned error is logged,
// never propagated to the caller that produced the change.
type Broadcaster interface {
	AuctionStateChanged(ctx context.Context, p AuctionStatePayload) error
	RegionAuctionStarted(ctx context.Context, p RegionAuctionPayload) error
	RegionAuctionEnded(ctx context.Context, p RegionAuctionPayload) error
	LotChanged(ctx context.Context, p LotChangedPayload) error
	PriceTick(ctx context.Context, p PriceTickPayload) error
	BidAccepted(ctx context.Context, p BidAcceptedPayload) error
	LotAwaitingNext(ctx context.Context, p LotAwaitingNextPayload) error
	ViewerCountChanged(ctx context.Context, p ViewerCountPayload) error
	ForceDisconnect(ctx context.Context, p ForceDisconnectPayload) error
}

// AuctionRepository is the persistence collaborator for auction
// definitions. Read-only from the engine's point of view; used at
// recovery and when an operator starts a scheduled auction.
type AuctionRepository interface {
	ListActiveAuctions(ctx context.Context) ([]models.AuctionSummary, error)
	GetAuction(ctx context.Context, id uuid.UUID) (*models.AuctionSummary, error)
}

// LotRepository provides the ordered lot queue for an auction.
type LotRepository interface {
	ListLotsForAuction(ctx context.Context, auctionID uuid.UUID) ([]models.LotSummary, error)
}
