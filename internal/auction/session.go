package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kloknet/klok/internal/models"
)

// Session is the in-memory state machine for one live auction:
//
//	Scheduled → Started ↔ Paused → Stopped
//
// Stopped and Ended are terminal. At most one lot is active at a time,
// and only while a ticking task runs for it (a pause freezes the lot and
// stops the task; resume re-anchors and restarts it).
//
// Session methods are not self-synchronizing: the engine calls them
// under the per-auction lock held by the session's registry handle.
type Session struct {
	ID          uuid.UUID
	Status      models.AuctionStatus
	Region      string
	Country     string
	LotQueue    []models.LotSummary
	ActiveLot   *LotPricing
	TotalRounds int
	PeakViewers int

	// pausedAt is set while Status is Paused and an active lot is frozen;
	// resume shifts the lot's anchor by the pause duration so the price
	// picks up exactly where it froze.
	pausedAt time.Time

	// soldOut marks lots whose stock hit zero; they may not be re-selected.
	soldOut map[uuid.UUID]bool
}

// NewSession builds a live session from persisted auction metadata and
// its ordered lot queue. The queue is fixed for the session's lifetime.
func NewSession(summary models.AuctionSummary, lots []models.LotSummary) *Session {
	return &Session{
		ID:       summary.ID,
		Status:   summary.Status,
		Region:   summary.Region,
		Country:  summary.Country,
		LotQueue: lots,
		soldOut:  make(map[uuid.UUID]bool),
	}
}

// Start transitions Scheduled → Started, or resumes a Paused session.
// It returns true when a frozen lot was re-anchored and needs its
// ticking task restarted. Starting does not select a lot; that is a
// separate operator action.
func (s *Session) Start(now time.Time) (resumedLot bool, err error) {
	switch s.Status {
	case models.AuctionStatusScheduled:
		s.Status = models.AuctionStatusStarted
		return false, nil
	case models.AuctionStatusPaused:
		s.Status = models.AuctionStatusStarted
		if s.ActiveLot != nil {
			s.ActiveLot.RoundAnchor = s.ActiveLot.RoundAnchor.Add(now.Sub(s.pausedAt))
			s.pausedAt = time.Time{}
			return true, nil
		}
		s.pausedAt = time.Time{}
		return false, nil
	default:
		return false, fmt.Errorf("cannot start auction %s in status %s", s.ID, s.Status)
	}
}

// Pause transitions Started → Paused. The caller stops the ticking task;
// the active lot and its remaining stock are preserved, price frozen.
func (s *Session) Pause(now time.Time) error {
	if s.Status != models.AuctionStatusStarted {
		return fmt.Errorf("cannot pause auction %s in status %s", s.ID, s.Status)
	}
	s.Status = models.AuctionStatusPaused
	s.pausedAt = now
	return nil
}

// SelectLot puts lotID on the clock with a fresh round anchored at now,
// replacing any previously active lot. Valid only while Started. The
// caller is responsible for stopping the old ticking task first and
// starting a new one after.
func (s *Session) SelectLot(lotID uuid.UUID, now time.Time) (*LotPricing, error) {
	if s.Status != models.AuctionStatusStarted {
		return nil, fmt.Errorf("cannot select lot on auction %s in status %s", s.ID, s.Status)
	}
	lot, ok := s.lotInQueue(lotID)
	if !ok {
		return nil, fmt.Errorf("%w: lot %s not in queue of auction %s", ErrInvalidLotID, lotID, s.ID)
	}
	if s.soldOut[lotID] {
		return nil, fmt.Errorf("%w: lot %s already exhausted", ErrInvalidLotID, lotID)
	}
	if s.ActiveLot != nil {
		s.retireActiveLot()
	}
	s.ActiveLot = NewLotPricing(lot, now)
	return s.ActiveLot, nil
}

// FinishRound retires the active lot after its round ended. Returns the
// completed lot id.
func (s *Session) FinishRound() uuid.UUID {
	lotID := s.ActiveLot.LotID
	s.retireActiveLot()
	return lotID
}

// Stop moves the session to its terminal status. The caller tears down
// the ticking task, evicts viewers and removes the session from the
// registry.
func (s *Session) Stop() {
	s.Status = models.AuctionStatusStopped
	if s.ActiveLot != nil {
		s.retireActiveLot()
	}
}

func (s *Session) retireActiveLot() {
	if s.ActiveLot.SoldOut() {
		s.soldOut[s.ActiveLot.LotID] = true
	}
	s.ActiveLot = nil
	s.TotalRounds++
}

func (s *Session) lotInQueue(lotID uuid.UUID) (models.LotSummary, bool) {
	for _, lot := range s.LotQueue {
		if lot.ID == lotID {
			return lot, true
		}
	}
	return models.LotSummary{}, false
}

// RecordViewers tracks the high-water viewer count for the session.
func (s *Session) RecordViewers(count int) {
	if count > s.PeakViewers {
		s.PeakViewers = count
	}
}
