package auction

import (
	"context"

	"github.com/google/uuid"
	"github.com/kloknet/klok/internal/models"
	"github.com/rs/zerolog/log"
)

// startTickerLocked launches the ticking task for the session's active
// lot. Caller holds the handle's mu; exactly one task may exist per
// auction, enforced by takeTicker before any new start.
func (e *Engine) startTickerLocked(h *sessionHandle, lotID uuid.UUID) {
	ctx, cancel := context.WithCancel(e.rootCtx)
	done := make(chan struct{})
	h.cancelTick = cancel
	h.tickDone = done
	go e.runTicker(ctx, done, h, lotID)
}

// runTicker drives one lot's price at the configured interval until the
// round ends or the per-auction cancellation signal fires. Cancellation
// is checked at the top of every interval, so a stop is deterministic;
// the session-vanished check inside tick is only a safety net allowing
// at most one stray tick.
func (e *Engine) runTicker(ctx context.Context, done chan struct{}, h *sessionHandle, lotID uuid.UUID) {
	defer close(done)

	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if e.tick(ctx, h, lotID) {
				return
			}
		}
	}
}

// tick performs one pricing iteration, publishing under the session's
// exclusive scope so ticks interleave with bid broadcasts in mutation
// order. Returns true when the task must stop. A failing iteration is
// logged and swallowed; the loop keeps running on its next interval.
func (e *Engine) tick(ctx context.Context, h *sessionHandle, lotID uuid.UUID) (stop bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.session
	if _, live := e.reg.get(s.ID); !live {
		// Raced with a stop that already removed the session.
		return true
	}
	if s.Status != models.AuctionStatusStarted || s.ActiveLot == nil || s.ActiveLot.LotID != lotID {
		return true
	}

	now := e.clock.Now()
	price := s.ActiveLot.CurrentPrice(now)
	ended := s.ActiveLot.RoundEnded(now)
	auctionID := s.ID

	tick := PriceTickPayload{
		AuctionID: auctionID.String(),
		LotID:     lotID.String(),
		Price:     price,
		Timestamp: now,
	}
	if err := e.broadcaster.PriceTick(ctx, tick); err != nil {
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("price tick broadcast failed")
	}

	if !ended {
		return false
	}

	completedLot := s.FinishRound()
	// The task is over; release its context now rather than waiting for
	// the next operator command. The handles stay on the session so
	// SelectLot and Shutdown still observe the exit through tickDone.
	if h.cancelTick != nil {
		h.cancelTick()
	}

	log.Info().
		Str("auction_id", auctionID.String()).
		Str("lot_id", completedLot.String()).
		Float64("final_price", price).
		Msg("round ended, awaiting next lot")

	awaiting := LotAwaitingNextPayload{
		AuctionID:      auctionID.String(),
		CompletedLotID: completedLot.String(),
	}
	if err := e.broadcaster.LotAwaitingNext(ctx, awaiting); err != nil {
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("lot awaiting broadcast failed")
	}
	return true
}
