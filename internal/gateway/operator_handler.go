package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kloknet/klok/internal/auction"
	"github.com/rs/zerolog/log"
)

// ClockEngine is what the operator and bidder HTTP surface needs from
// the auction engine.
type ClockEngine interface {
	StartAuction(ctx context.Context, id uuid.UUID) error
	PauseAuction(ctx context.Context, id uuid.UUID) error
	StopAuction(ctx context.Context, id uuid.UUID) error
	SelectLot(ctx context.Context, id, lotID uuid.UUID) error
	PlaceBid(ctx context.Context, auctionID, lotID uuid.UUID, submittedAt time.Time, quantity int) error
	SessionState(id uuid.UUID) (auction.AuctionStatePayload, error)
}

// OperatorHandler exposes operator commands and bid placement over
// HTTP. Errors come back structured so clients can show why a command
// or bid failed.
type OperatorHandler struct {
	engine ClockEngine
}

// NewOperatorHandler creates the operator/bidder HTTP handler.
func NewOperatorHandler(engine ClockEngine) *OperatorHandler {
	return &OperatorHandler{engine: engine}
}

// RegisterRoutes registers all auction command routes on mux.
func (h *OperatorHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auctions/{id}/start", h.handleStart)
	mux.HandleFunc("POST /api/auctions/{id}/pause", h.handlePause)
	mux.HandleFunc("POST /api/auctions/{id}/stop", h.handleStop)
	mux.HandleFunc("POST /api/auctions/{id}/lot", h.handleSelectLot)
	mux.HandleFunc("POST /api/auctions/{id}/bids", h.handlePlaceBid)
	mux.HandleFunc("GET /api/auctions/{id}", h.handleState)
}

func (h *OperatorHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}
	if err := h.engine.StartAuction(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeState(w, h.engine, id)
}

func (h *OperatorHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}
	if err := h.engine.PauseAuction(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeState(w, h.engine, id)
}

func (h *OperatorHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}
	if err := h.engine.StopAuction(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auction_id": id.String(), "status": "STOPPED"})
}

type selectLotRequest struct {
	LotID string `json:"lot_id"`
}

func (h *OperatorHandler) handleSelectLot(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}
	var req selectLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCoded(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	lotID, err := uuid.Parse(req.LotID)
	if err != nil {
		writeCoded(w, http.StatusBadRequest, "bad_request", "invalid lot_id format")
		return
	}
	if err := h.engine.SelectLot(r.Context(), id, lotID); err != nil {
		writeError(w, err)
		return
	}
	writeState(w, h.engine, id)
}

type placeBidRequest struct {
	LotID string `json:"lot_id"`
	// SubmittedAt is the client-observed submission instant; the bid is
	// priced at this time, not at processing time.
	SubmittedAt time.Time `json:"submitted_at"`
	Quantity    int       `json:"quantity"`
}

func (h *OperatorHandler) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}
	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCoded(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	lotID, err := uuid.Parse(req.LotID)
	if err != nil {
		writeCoded(w, http.StatusBadRequest, "bad_request", "invalid lot_id format")
		return
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}
	if err := h.engine.PlaceBid(r.Context(), id, lotID, req.SubmittedAt, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	writeState(w, h.engine, id)
}

func (h *OperatorHandler) handleState(w http.ResponseWriter, r *http.Request) {
	id, ok := auctionID(w, r)
	if !ok {
		return
	}
	writeState(w, h.engine, id)
}

func auctionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeCoded(w, http.StatusBadRequest, "bad_request", "invalid auction id format")
		return uuid.Nil, false
	}
	return id, true
}

func writeState(w http.ResponseWriter, engine ClockEngine, id uuid.UUID) {
	state, err := engine.SessionState(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps the engine's error taxonomy to HTTP statuses with a
// stable machine-readable code.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auction.ErrAuctionNotActive):
		writeCoded(w, http.StatusNotFound, "auction_not_active", err.Error())
	case errors.Is(err, auction.ErrInvalidLotID):
		writeCoded(w, http.StatusUnprocessableEntity, "invalid_lot_id", err.Error())
	case errors.Is(err, auction.ErrLotMismatch):
		writeCoded(w, http.StatusConflict, "lot_mismatch", err.Error())
	case errors.Is(err, auction.ErrInsufficientStock):
		writeCoded(w, http.StatusConflict, "insufficient_stock", err.Error())
	default:
		log.Error().Err(err).Msg("auction command failed")
		writeCoded(w, http.StatusBadRequest, "invalid_command", err.Error())
	}
}

func writeCoded(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
