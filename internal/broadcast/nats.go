// Package broadcast carries auction notifications from the clock engine
// to whoever fans them out to viewers. The production publisher pushes
// JSON envelopes onto NATS subjects; the gateway subscribes on the
// other side and forwards to websockets.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kloknet/klok/internal/auction"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Subject layout. Auction events key by auction id so the gateway can
// subscribe per room; region events form a separate coarse feed.
const (
	AuctionSubjectPrefix = "auction.events"
	RegionSubjectPrefix  = "region.events"
)

// Envelope is the wire shape of every published notification.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	AuctionID string          `json:"auction_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NATSPublisher implements auction.Broadcaster over core NATS. Publish
// enqueues onto the connection's flush buffer and returns immediately,
// which keeps the engine's fire-and-forget contract; live price ticks
// have no replay value, so JetStream persistence is deliberately not
// used here.
type NATSPublisher struct {
	nc *nats.Conn
}

var _ auction.Broadcaster = (*NATSPublisher)(nil)

// NewNATSPublisher connects to NATS with infinite reconnects.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

// Drain flushes pending publishes and closes the connection.
func (p *NATSPublisher) Drain() error {
	return p.nc.Drain()
}

func (p *NATSPublisher) publish(subject, eventType, auctionID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	env := Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		AuctionID: auctionID,
		Timestamp: time.Now(),
		Payload:   raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// AuctionSubject builds the subject for one auction event.
func AuctionSubject(auctionID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", AuctionSubjectPrefix, auctionID, eventType)
}

// RegionSubject builds the subject for one region feed event.
func RegionSubject(region string) string {
	return fmt.Sprintf("%s.%s", RegionSubjectPrefix, region)
}

func (p *NATSPublisher) AuctionStateChanged(ctx context.Context, payload auction.AuctionStatePayload) error {
	return p.publish(AuctionSubject(payload.AuctionID, auction.EventTypeAuctionStateChanged), auction.EventTypeAuctionStateChanged, payload.AuctionID, payload)
}

func (p *NATSPublisher) RegionAuctionStarted(ctx context.Context, payload auction.RegionAuctionPayload) error {
	return p.publish(RegionSubject(payload.Region), auction.EventTypeRegionAuctionStart, payload.AuctionID, payload)
}

func (p *NATSPublisher) RegionAuctionEnded(ctx context.Context, payload auction.RegionAuctionPayload) error {
	return p.publish(RegionSubject(payload.Region), auction.EventTypeRegionAuctionEnd, payload.AuctionID, payload)
}

func (p *NATSPublisher) LotChanged(ctx context.Context, payload auction.LotChangedPayload) error {
	return p.publish(AuctionSubject(payload.AuctionID, auction.EventTypeLotChanged), auction.EventTypeLotChanged, payload.AuctionID, payload)
}

func (p *NATSPublisher) PriceTick(ctx context.Context, payload auction.PriceTickPayload) error {
	return p.publish(AuctionSubject(payload.AuctionID, auction.EventTypePriceTick), auction.EventTypePriceTick, payload.AuctionID, payload)
}

func (p *NATSPublisher) BidAccepted(ctx context.Context, payload auction.BidAcceptedPayload) error {
	return p.publish(AuctionSubject(payload.AuctionID, auction.EventTypeBidAccepted), auction.EventTypeBidAccepted, payload.AuctionID, payload)
}

func (p *NATSPublisher) LotAwaitingNext(ctx context.Context, payload auction.LotAwaitingNextPayload) error {
	return p.publish(AuctionSubject(payload.AuctionID, auction.EventTypeLotAwaitingNext), auction.EventTypeLotAwaitingNext, payload.AuctionID, payload)
}

func (p *NATSPublisher) ViewerCountChanged(ctx context.Context, payload auction.ViewerCountPayload) error {
	return p.publish(AuctionSubject(payload.AuctionID, auction.EventTypeViewerCountChanged), auction.EventTypeViewerCountChanged, payload.AuctionID, payload)
}

func (p *NATSPublisher) ForceDisconnect(ctx context.Context, payload auction.ForceDisconnectPayload) error {
	return p.publish(AuctionSubject(payload.AuctionID, auction.EventTypeForceDisconnect), auction.EventTypeForceDisconnect, payload.AuctionID, payload)
}
