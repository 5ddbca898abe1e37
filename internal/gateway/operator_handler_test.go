package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kloknet/klok/internal/auction"
)

// stubEngine answers every command with canned results and records the
// last bid it saw.
type stubEngine struct {
	err     error
	state   auction.AuctionStatePayload
	lastBid struct {
		lotID       uuid.UUID
		submittedAt time.Time
		quantity    int
	}
}

func (s *stubEngine) StartAuction(ctx context.Context, id uuid.UUID) error { return s.err }
func (s *stubEngine) PauseAuction(ctx context.Context, id uuid.UUID) error { return s.err }
func (s *stubEngine) StopAuction(ctx context.Context, id uuid.UUID) error  { return s.err }
func (s *stubEngine) SelectLot(ctx context.Context, id, lotID uuid.UUID) error {
	return s.err
}

func (s *stubEngine) PlaceBid(ctx context.Context, auctionID, lotID uuid.UUID, submittedAt time.Time, quantity int) error {
	s.lastBid.lotID = lotID
	s.lastBid.submittedAt = submittedAt
	s.lastBid.quantity = quantity
	return s.err
}

func (s *stubEngine) SessionState(id uuid.UUID) (auction.AuctionStatePayload, error) {
	if s.err != nil {
		return auction.AuctionStatePayload{}, s.err
	}
	return s.state, nil
}

func newOperatorServer(engine *stubEngine) *httptest.Server {
	mux := http.NewServeMux()
	NewOperatorHandler(engine).RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	defer resp.Body.Close()
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestOperatorHandler_StartReturnsState(t *testing.T) {
	auctionID := uuid.New()
	engine := &stubEngine{state: auction.AuctionStatePayload{
		AuctionID: auctionID.String(),
		Status:    "STARTED",
	}}
	srv := newOperatorServer(engine)
	defer srv.Close()

	resp := postJSON(t, fmt.Sprintf("%s/api/auctions/%s/start", srv.URL, auctionID), "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var state auction.AuctionStatePayload
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Status != "STARTED" {
		t.Errorf("state.Status = %q, want STARTED", state.Status)
	}
}

func TestOperatorHandler_InvalidAuctionID(t *testing.T) {
	srv := newOperatorServer(&stubEngine{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/auctions/not-a-uuid/start", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Error != "bad_request" {
		t.Errorf("error code = %q, want bad_request", e.Error)
	}
}

func TestOperatorHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{auction.ErrAuctionNotActive, http.StatusNotFound, "auction_not_active"},
		{auction.ErrInvalidLotID, http.StatusUnprocessableEntity, "invalid_lot_id"},
		{auction.ErrLotMismatch, http.StatusConflict, "lot_mismatch"},
		{auction.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
		{fmt.Errorf("cannot start auction in status STOPPED"), http.StatusBadRequest, "invalid_command"},
	}

	for _, tc := range cases {
		t.Run(tc.wantCode, func(t *testing.T) {
			srv := newOperatorServer(&stubEngine{err: tc.err})
			defer srv.Close()

			body := fmt.Sprintf(`{"lot_id":%q,"quantity":1}`, uuid.New())
			resp := postJSON(t, fmt.Sprintf("%s/api/auctions/%s/bids", srv.URL, uuid.New()), body)
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if e := decodeError(t, resp); e.Error != tc.wantCode {
				t.Errorf("error code = %q, want %q", e.Error, tc.wantCode)
			}
		})
	}
}

func TestOperatorHandler_PlaceBidForwardsSubmissionTime(t *testing.T) {
	engine := &stubEngine{}
	srv := newOperatorServer(engine)
	defer srv.Close()

	lotID := uuid.New()
	submittedAt := time.Date(2025, 6, 1, 10, 0, 4, 0, time.UTC)
	body := fmt.Sprintf(`{"lot_id":%q,"submitted_at":%q,"quantity":30}`,
		lotID, submittedAt.Format(time.RFC3339))

	resp := postJSON(t, fmt.Sprintf("%s/api/auctions/%s/bids", srv.URL, uuid.New()), body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if engine.lastBid.lotID != lotID {
		t.Errorf("lot = %s, want %s", engine.lastBid.lotID, lotID)
	}
	if !engine.lastBid.submittedAt.Equal(submittedAt) {
		t.Errorf("submittedAt = %v, want %v", engine.lastBid.submittedAt, submittedAt)
	}
	if engine.lastBid.quantity != 30 {
		t.Errorf("quantity = %d, want 30", engine.lastBid.quantity)
	}
}

func TestOperatorHandler_PlaceBidDefaultsSubmissionTime(t *testing.T) {
	engine := &stubEngine{}
	srv := newOperatorServer(engine)
	defer srv.Close()

	body := fmt.Sprintf(`{"lot_id":%q,"quantity":1}`, uuid.New())
	resp := postJSON(t, fmt.Sprintf("%s/api/auctions/%s/bids", srv.URL, uuid.New()), body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if engine.lastBid.submittedAt.IsZero() {
		t.Error("submittedAt was not defaulted to the processing time")
	}
}

func TestOperatorHandler_SelectLotRejectsMalformedBody(t *testing.T) {
	srv := newOperatorServer(&stubEngine{})
	defer srv.Close()

	resp := postJSON(t, fmt.Sprintf("%s/api/auctions/%s/lot", srv.URL, uuid.New()), `{"lot_id":"nope"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if e := decodeError(t, resp); e.Error != "bad_request" {
		t.Errorf("error code = %q, want bad_request", e.Error)
	}
}
