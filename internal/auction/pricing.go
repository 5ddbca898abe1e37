package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kloknet/klok/internal/models"
)

// LotPricing is the live pricing state of the lot currently on the
// clock. Price is always derived from elapsed time against RoundAnchor,
// never from accumulated ticks, so a missed tick can never corrupt it.
//
// LotPricing is not self-synchronizing: every caller must hold the
// owning session's lock.
type LotPricing struct {
	LotID             uuid.UUID
	StartingPrice     float64
	FloorPrice        float64
	InitialStock      int
	RemainingStock    int
	LastAcceptedPrice float64
	RoundDuration     time.Duration
	RoundAnchor       time.Time
}

// NewLotPricing starts a fresh round for lot, anchored at anchor.
func NewLotPricing(lot models.LotSummary, anchor time.Time) *LotPricing {
	return &LotPricing{
		LotID:          lot.ID,
		StartingPrice:  lot.StartingPrice,
		FloorPrice:     lot.FloorPrice,
		InitialStock:   lot.InitialStock,
		RemainingStock: lot.InitialStock,
		RoundDuration:  lot.RoundDuration,
		RoundAnchor:    anchor,
	}
}

// CurrentPrice returns the clock price at now: a linear decay from
// StartingPrice to FloorPrice over RoundDuration, clamped at both ends.
// Deterministic and idempotent for a given now.
func (p *LotPricing) CurrentPrice(now time.Time) float64 {
	if p.RoundDuration <= 0 {
		return p.FloorPrice
	}
	frac := 1 - now.Sub(p.RoundAnchor).Seconds()/p.RoundDuration.Seconds()
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return p.FloorPrice + (p.StartingPrice-p.FloorPrice)*frac
}

// AcceptBid consumes quantity units of stock at atPrice. atPrice is the
// price computed from the bid's submission timestamp, so queueing delay
// between submission and processing does not mis-price the bid.
func (p *LotPricing) AcceptBid(atPrice float64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("bid quantity must be positive, got %d", quantity)
	}
	if quantity > p.RemainingStock {
		return fmt.Errorf("%w: want %d, have %d", ErrInsufficientStock, quantity, p.RemainingStock)
	}
	p.RemainingStock -= quantity
	p.LastAcceptedPrice = atPrice
	return nil
}

// SoldOut reports whether the lot has no stock left.
func (p *LotPricing) SoldOut() bool {
	return p.RemainingStock == 0
}

// RoundEnded reports whether the round is over at now: either the full
// decay window has elapsed or the stock sold out.
func (p *LotPricing) RoundEnded(now time.Time) bool {
	return p.SoldOut() || now.Sub(p.RoundAnchor) >= p.RoundDuration
}

// RoundEndsAt returns the wall-clock time at which the price reaches the
// floor and the round times out.
func (p *LotPricing) RoundEndsAt() time.Time {
	return p.RoundAnchor.Add(p.RoundDuration)
}
