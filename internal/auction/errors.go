package auction

import "errors"

// Caller-facing error taxonomy. All four are expected outcomes that
// clients act on; they are returned directly (or wrapped with %w) and
// never swallowed.
var (
	// ErrAuctionNotActive means there is no live session for the id.
	// The caller may retry once the auction has been started.
	ErrAuctionNotActive = errors.New("auction not active")

	// ErrInvalidLotID means the lot is not in the auction's queue or its
	// stock is already exhausted. Operator error.
	ErrInvalidLotID = errors.New("invalid lot id")

	// ErrLotMismatch means a bid targeted a lot that is no longer the
	// active lot. The client should refresh and rebid.
	ErrLotMismatch = errors.New("lot is not the active lot")

	// ErrInsufficientStock means the bid quantity exceeds remaining
	// stock. Resubmit a smaller quantity or wait for the next lot.
	ErrInsufficientStock = errors.New("insufficient stock")
)
