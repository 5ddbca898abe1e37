package models

import (
	"time"

	"github.com/google/uuid"
)

// LotSummary is the persisted view of one sellable lot in an auction's
// queue: a batch of stock priced down from StartingPrice to FloorPrice
// over RoundDuration.
type LotSummary struct {
	ID            uuid.UUID     `json:"id"`
	AuctionID     uuid.UUID     `json:"auction_id"`
	Position      int           `json:"position"`
	StartingPrice float64       `json:"starting_price"`
	FloorPrice    float64       `json:"floor_price"`
	InitialStock  int           `json:"initial_stock"`
	RoundDuration time.Duration `json:"round_duration"`
}
