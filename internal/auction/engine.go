package auction

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kloknet/klok/internal/models"
	"github.com/rs/zerolog/log"
)

// Clock is the time source used by the engine. Production uses
// clockwork.NewRealClock(); tests drive a clockwork.FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// Config tunes an Engine.
type Config struct {
	// TickInterval is the price broadcast cadence per active lot.
	TickInterval time.Duration
}

// DefaultConfig returns the production engine configuration.
func DefaultConfig() Config {
	return Config{TickInterval: time.Second}
}

// Engine is the public surface of the auction clock subsystem. It owns
// the session and viewer registries as instance state, coordinates the
// per-lot ticking tasks and pushes every change through the Broadcaster.
//
// All operations except Recover are in-memory and return promptly.
// Broadcasts are enqueued while the per-auction exclusive scope is still
// held, so per auction they are published in mutation order; the
// Broadcaster contract keeps this cheap by forbidding implementations
// from awaiting delivery.
type Engine struct {
	auctions    AuctionRepository
	lots        LotRepository
	broadcaster Broadcaster
	clock       Clock
	cfg         Config

	reg     *registry
	viewers *viewerRegistry

	// rootCtx parents every ticking task so Shutdown can cancel them all.
	rootCtx    context.Context
	cancelRoot context.CancelFunc
}

// NewEngine wires an engine from its collaborators.
func NewEngine(auctions AuctionRepository, lots LotRepository, broadcaster Broadcaster, clock Clock, cfg Config) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		auctions:    auctions,
		lots:        lots,
		broadcaster: broadcaster,
		clock:       clock,
		cfg:         cfg,
		reg:         newRegistry(),
		viewers:     newViewerRegistry(),
		rootCtx:     ctx,
		cancelRoot:  cancel,
	}
}

// Recover repopulates the session registry from every auction persisted
// as Started, with no active lot: elapsed-time bookkeeping cannot be
// trusted across a restart, so the operator must re-select a lot. A
// repository failure is fatal; the engine never silently starts with
// zero recovered auctions when auctions exist.
func (e *Engine) Recover(ctx context.Context) error {
	summaries, err := e.auctions.ListActiveAuctions(ctx)
	if err != nil {
		return fmt.Errorf("recover: list active auctions: %w", err)
	}

	for _, summary := range summaries {
		lots, err := e.lots.ListLotsForAuction(ctx, summary.ID)
		if err != nil {
			return fmt.Errorf("recover: list lots for auction %s: %w", summary.ID, err)
		}
		s := NewSession(summary, lots)
		s.Status = models.AuctionStatusStarted
		e.reg.put(s)
		log.Info().
			Str("auction_id", summary.ID.String()).
			Str("region", summary.Region).
			Int("lots", len(lots)).
			Msg("recovered running auction")
	}

	log.Info().Int("sessions", e.reg.len()).Msg("auction recovery complete")
	return nil
}

// StartAuction starts a Scheduled auction, creating its live session,
// or resumes a Paused one. Resuming re-anchors a frozen active lot and
// restarts its ticking task so the price continues from where it froze.
func (e *Engine) StartAuction(ctx context.Context, id uuid.UUID) error {
	h, ok := e.reg.get(id)
	if !ok {
		var err error
		h, err = e.admitScheduled(ctx, id)
		if err != nil {
			return err
		}
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	now := e.clock.Now()
	h.mu.Lock()
	s := h.session
	resumedLot, err := s.Start(now)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	if resumedLot {
		e.startTickerLocked(h, s.ActiveLot.LotID)
	}
	state := e.statePayloadLocked(s)
	region := RegionAuctionPayload{
		Region:    s.Region,
		Country:   s.Country,
		AuctionID: s.ID.String(),
		StartedAt: &now,
	}
	e.broadcast(ctx, id, func() error { return e.broadcaster.AuctionStateChanged(ctx, state) })
	e.broadcast(ctx, id, func() error { return e.broadcaster.RegionAuctionStarted(ctx, region) })
	h.mu.Unlock()

	log.Info().Str("auction_id", id.String()).Bool("resumed_lot", resumedLot).Msg("auction started")
	return nil
}

// admitScheduled loads a not-yet-live auction from the repository and
// registers a session for it. Unknown or terminal auctions yield
// ErrAuctionNotActive.
func (e *Engine) admitScheduled(ctx context.Context, id uuid.UUID) (*sessionHandle, error) {
	summary, err := e.auctions.GetAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get auction %s: %w", id, err)
	}
	if summary == nil || summary.Status != models.AuctionStatusScheduled {
		return nil, fmt.Errorf("%w: %s", ErrAuctionNotActive, id)
	}
	lots, err := e.lots.ListLotsForAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list lots for auction %s: %w", id, err)
	}
	h, _ := e.reg.put(NewSession(*summary, lots))
	return h, nil
}

// PauseAuction freezes a Started auction: the ticking task stops, the
// active lot and its remaining stock are preserved.
func (e *Engine) PauseAuction(ctx context.Context, id uuid.UUID) error {
	h, ok := e.reg.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAuctionNotActive, id)
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.mu.Lock()
	s := h.session
	if err := s.Pause(e.clock.Now()); err != nil {
		h.mu.Unlock()
		return err
	}
	cancel, done := h.takeTicker()
	state := e.statePayloadLocked(s)
	e.broadcast(ctx, id, func() error { return e.broadcaster.AuctionStateChanged(ctx, state) })
	h.mu.Unlock()

	stopTicker(cancel, done)

	log.Info().Str("auction_id", id.String()).Msg("auction paused")
	return nil
}

// StopAuction terminates an auction from any non-terminal state: the
// ticking task is cancelled and awaited, every viewer evicted and the
// session removed from the registry. Stopping an already-stopped or
// absent auction is a no-op.
func (e *Engine) StopAuction(ctx context.Context, id uuid.UUID) error {
	h, ok := e.reg.get(id)
	if !ok {
		return nil
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	h.mu.Lock()
	s := h.session
	if s.Status.Terminal() {
		h.mu.Unlock()
		return nil
	}
	s.Stop()
	cancel, done := h.takeTicker()
	// Remove the session before publishing so a tick blocked on mu exits
	// silently instead of announcing a price for a stopped auction.
	e.reg.remove(id)
	connIDs := e.viewers.evict(id)
	region := RegionAuctionPayload{
		Region:    s.Region,
		Country:   s.Country,
		AuctionID: s.ID.String(),
	}
	state := e.statePayloadLocked(s)
	totalRounds, peakViewers := s.TotalRounds, s.PeakViewers
	e.broadcast(ctx, id, func() error { return e.broadcaster.AuctionStateChanged(ctx, state) })
	e.broadcast(ctx, id, func() error { return e.broadcaster.RegionAuctionEnded(ctx, region) })
	if len(connIDs) > 0 {
		p := ForceDisconnectPayload{AuctionID: id.String(), ConnectionIDs: connIDs}
		e.broadcast(ctx, id, func() error { return e.broadcaster.ForceDisconnect(ctx, p) })
	}
	h.mu.Unlock()

	stopTicker(cancel, done)

	log.Info().
		Str("auction_id", id.String()).
		Int("evicted_connections", len(connIDs)).
		Int("total_rounds", totalRounds).
		Int("peak_viewers", peakViewers).
		Msg("auction stopped")
	return nil
}

// SelectLot puts a lot from the auction's queue on the clock, replacing
// any active lot: the old ticking task is stopped and awaited, a fresh
// pricing round is anchored at now, and a new task started. Pacing is
// always this explicit operator action; the engine never auto-advances.
func (e *Engine) SelectLot(ctx context.Context, id, lotID uuid.UUID) error {
	h, ok := e.reg.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAuctionNotActive, id)
	}

	h.opMu.Lock()
	defer h.opMu.Unlock()

	// Retire the previous ticking task before anchoring the new round, so
	// a stray tick can never observe the replacement lot.
	h.mu.Lock()
	cancel, done := h.takeTicker()
	h.mu.Unlock()
	stopTicker(cancel, done)

	h.mu.Lock()
	s := h.session
	lot, err := s.SelectLot(lotID, e.clock.Now())
	if err != nil {
		h.mu.Unlock()
		return err
	}
	e.startTickerLocked(h, lotID)
	changed := LotChangedPayload{
		AuctionID:     id.String(),
		LotID:         lotID.String(),
		StartingPrice: lot.StartingPrice,
		InitialStock:  lot.InitialStock,
	}
	state := e.statePayloadLocked(s)
	e.broadcast(ctx, id, func() error { return e.broadcaster.LotChanged(ctx, changed) })
	e.broadcast(ctx, id, func() error { return e.broadcaster.AuctionStateChanged(ctx, state) })
	h.mu.Unlock()

	log.Info().
		Str("auction_id", id.String()).
		Str("lot_id", lotID.String()).
		Float64("starting_price", lot.StartingPrice).
		Int("initial_stock", lot.InitialStock).
		Msg("lot selected")
	return nil
}

// PlaceBid validates a bid against the active lot and atomically
// consumes stock at the price in effect at submittedAt. The whole
// read-decide-mutate-publish sequence runs inside the per-auction
// exclusive scope, so concurrent bids broadcast their remaining stock
// in the order it was consumed.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, lotID uuid.UUID, submittedAt time.Time, quantity int) error {
	h, ok := e.reg.get(auctionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAuctionNotActive, auctionID)
	}

	h.mu.Lock()
	s := h.session
	if s.Status != models.AuctionStatusStarted {
		h.mu.Unlock()
		return fmt.Errorf("%w: auction %s is %s", ErrAuctionNotActive, auctionID, s.Status)
	}
	if s.ActiveLot == nil || s.ActiveLot.LotID != lotID {
		h.mu.Unlock()
		return fmt.Errorf("%w: lot %s", ErrLotMismatch, lotID)
	}
	atPrice := s.ActiveLot.CurrentPrice(submittedAt)
	if err := s.ActiveLot.AcceptBid(atPrice, quantity); err != nil {
		h.mu.Unlock()
		return err
	}
	remaining := s.ActiveLot.RemainingStock
	accepted := BidAcceptedPayload{
		AuctionID:      auctionID.String(),
		LotID:          lotID.String(),
		Price:          atPrice,
		QuantitySold:   quantity,
		RemainingStock: remaining,
	}
	e.broadcast(ctx, auctionID, func() error { return e.broadcaster.BidAccepted(ctx, accepted) })
	h.mu.Unlock()

	log.Info().
		Str("auction_id", auctionID.String()).
		Str("lot_id", lotID.String()).
		Float64("price", atPrice).
		Int("quantity", quantity).
		Int("remaining_stock", remaining).
		Msg("bid accepted")
	return nil
}

// JoinViewer registers a viewer connection for an auction and broadcasts
// the new viewer count. Joining an auction with no live session is not
// an error; the connection is tracked for cleanup but the reported
// count stays zero until the session exists. For a live session the
// count is taken and published under the session's exclusive scope so
// concurrent joins and leaves broadcast their counts in order.
func (e *Engine) JoinViewer(ctx context.Context, connID string, auctionID uuid.UUID, viewerID string) int {
	h, live := e.reg.get(auctionID)
	if !live {
		e.viewers.join(connID, auctionID, viewerID)
		p := ViewerCountPayload{AuctionID: auctionID.String(), Count: 0}
		e.broadcast(ctx, auctionID, func() error { return e.broadcaster.ViewerCountChanged(ctx, p) })
		log.Debug().
			Str("auction_id", auctionID.String()).
			Str("viewer_id", viewerID).
			Msg("viewer joined before session start")
		return 0
	}

	h.mu.Lock()
	count := e.viewers.join(connID, auctionID, viewerID)
	h.session.RecordViewers(count)
	p := ViewerCountPayload{AuctionID: auctionID.String(), Count: count}
	e.broadcast(ctx, auctionID, func() error { return e.broadcaster.ViewerCountChanged(ctx, p) })
	h.mu.Unlock()

	log.Debug().
		Str("auction_id", auctionID.String()).
		Str("viewer_id", viewerID).
		Int("count", count).
		Msg("viewer joined")
	return count
}

// LeaveViewer removes a viewer connection, by explicit leave or by the
// transport noticing connection loss, and broadcasts the new count.
func (e *Engine) LeaveViewer(ctx context.Context, connID string) {
	auctionID, watching := e.viewers.lookup(connID)
	if !watching {
		return
	}

	h, live := e.reg.get(auctionID)
	if !live {
		// Session gone (stopped between lookup and here, or never
		// existed); just drop the connection tracking.
		if _, count, ok := e.viewers.leave(connID); ok {
			p := ViewerCountPayload{AuctionID: auctionID.String(), Count: count}
			e.broadcast(ctx, auctionID, func() error { return e.broadcaster.ViewerCountChanged(ctx, p) })
		}
		return
	}

	h.mu.Lock()
	_, count, ok := e.viewers.leave(connID)
	if ok {
		p := ViewerCountPayload{AuctionID: auctionID.String(), Count: count}
		e.broadcast(ctx, auctionID, func() error { return e.broadcaster.ViewerCountChanged(ctx, p) })
	}
	h.mu.Unlock()
	if !ok {
		return
	}

	log.Debug().
		Str("auction_id", auctionID.String()).
		Str("connection_id", connID).
		Int("count", count).
		Msg("viewer left")
}

// ViewerCount returns the live viewer count for an auction.
func (e *Engine) ViewerCount(auctionID uuid.UUID) int {
	return e.viewers.count(auctionID)
}

// SessionState returns a snapshot of the auction's headline state, or
// ErrAuctionNotActive when no live session exists.
func (e *Engine) SessionState(id uuid.UUID) (AuctionStatePayload, error) {
	h, ok := e.reg.get(id)
	if !ok {
		return AuctionStatePayload{}, fmt.Errorf("%w: %s", ErrAuctionNotActive, id)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return e.statePayloadLocked(h.session), nil
}

// Shutdown deterministically stops every ticking task and clears both
// registries. It returns once all tasks have exited.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancelRoot()
	for _, id := range e.reg.ids() {
		h, ok := e.reg.get(id)
		if !ok {
			continue
		}
		h.mu.Lock()
		_, done := h.takeTicker()
		h.mu.Unlock()
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		e.reg.remove(id)
	}
	e.viewers.clear()
	log.Info().Msg("auction engine shut down")
	return nil
}

// statePayloadLocked snapshots the broadcastable state of s. Caller
// holds the session's mu. While the session is paused the snapshot
// reports the price frozen at the pause instant and shifts the round
// deadline by the time paused so far; resume re-anchors for real.
func (e *Engine) statePayloadLocked(s *Session) AuctionStatePayload {
	p := AuctionStatePayload{
		AuctionID:   s.ID.String(),
		Status:      string(s.Status),
		ViewerCount: e.viewers.count(s.ID),
		TotalRounds: s.TotalRounds,
		PeakViewers: s.PeakViewers,
	}
	if s.ActiveLot != nil {
		now := e.clock.Now()
		priceAt := now
		endsAt := s.ActiveLot.RoundEndsAt()
		if s.Status == models.AuctionStatusPaused {
			priceAt = s.pausedAt
			endsAt = endsAt.Add(now.Sub(s.pausedAt))
		}
		lotID := s.ActiveLot.LotID.String()
		price := s.ActiveLot.CurrentPrice(priceAt)
		p.ActiveLotID = &lotID
		p.Price = &price
		p.RoundEndsAt = &endsAt
	}
	return p
}

// broadcast enqueues one notification. Broadcaster failures are logged
// and swallowed; no state change is ever rolled back or blocked by a
// delivery problem.
func (e *Engine) broadcast(ctx context.Context, auctionID uuid.UUID, send func() error) {
	if err := send(); err != nil {
		log.Error().Err(err).Str("auction_id", auctionID.String()).Msg("broadcast failed")
	}
}

func stopTicker(cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
