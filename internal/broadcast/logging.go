package broadcast

import (
	"context"

	"github.com/kloknet/klok/internal/auction"
	"github.com/rs/zerolog/log"
)

// LogPublisher is an auction.Broadcaster that only logs. Useful for
// local development without a NATS server.
type LogPublisher struct{}

var _ auction.Broadcaster = LogPublisher{}

func (LogPublisher) AuctionStateChanged(ctx context.Context, p auction.AuctionStatePayload) error {
	log.Info().Str("auction_id", p.AuctionID).Str("status", p.Status).Msg("broadcast: auction state changed")
	return nil
}

func (LogPublisher) RegionAuctionStarted(ctx context.Context, p auction.RegionAuctionPayload) error {
	log.Info().Str("region", p.Region).Str("auction_id", p.AuctionID).Msg("broadcast: region auction started")
	return nil
}

func (LogPublisher) RegionAuctionEnded(ctx context.Context, p auction.RegionAuctionPayload) error {
	log.Info().Str("region", p.Region).Str("auction_id", p.AuctionID).Msg("broadcast: region auction ended")
	return nil
}

func (LogPublisher) LotChanged(ctx context.Context, p auction.LotChangedPayload) error {
	log.Info().Str("auction_id", p.AuctionID).Str("lot_id", p.LotID).Msg("broadcast: lot changed")
	return nil
}

func (LogPublisher) PriceTick(ctx context.Context, p auction.PriceTickPayload) error {
	log.Debug().Str("auction_id", p.AuctionID).Float64("price", p.Price).Msg("broadcast: price tick")
	return nil
}

func (LogPublisher) BidAccepted(ctx context.Context, p auction.BidAcceptedPayload) error {
	log.Info().Str("auction_id", p.AuctionID).Float64("price", p.Price).Int("remaining", p.RemainingStock).Msg("broadcast: bid accepted")
	return nil
}

func (LogPublisher) LotAwaitingNext(ctx context.Context, p auction.LotAwaitingNextPayload) error {
	log.Info().Str("auction_id", p.AuctionID).Str("completed_lot_id", p.CompletedLotID).Msg("broadcast: lot awaiting next")
	return nil
}

func (LogPublisher) ViewerCountChanged(ctx context.Context, p auction.ViewerCountPayload) error {
	log.Debug().Str("auction_id", p.AuctionID).Int("count", p.Count).Msg("broadcast: viewer count changed")
	return nil
}

func (LogPublisher) ForceDisconnect(ctx context.Context, p auction.ForceDisconnectPayload) error {
	log.Info().Str("auction_id", p.AuctionID).Int("connections", len(p.ConnectionIDs)).Msg("broadcast: force disconnect")
	return nil
}
