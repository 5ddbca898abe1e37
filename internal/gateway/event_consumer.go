package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kloknet/klok/internal/auction"
	"github.com/kloknet/klok/internal/broadcast"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// ConsumerConfig holds configuration for the NATS event consumer.
type ConsumerConfig struct {
	URL           string
	SubjectFilter string // e.g. "auction.events.>"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConsumerConfig returns the default consumer configuration.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		URL:           nats.DefaultURL,
		SubjectFilter: broadcast.AuctionSubjectPrefix + ".>",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// EventConsumer subscribes to auction event subjects and fans every
// envelope out to the websocket room of its auction. ForceDisconnect
// envelopes are executed rather than forwarded.
type EventConsumer struct {
	connectionManager *ConnectionManager
	nc                *nats.Conn
	config            ConsumerConfig
}

// NewEventConsumer connects to NATS and prepares the consumer.
func NewEventConsumer(cm *ConnectionManager, config ConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &EventConsumer{
		connectionManager: cm,
		nc:                nc,
		config:            config,
	}, nil
}

// Start subscribes and processes events until ctx is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().Str("subject", ec.config.SubjectFilter).Msg("starting auction event consumer")

	sub, err := ec.nc.Subscribe(ec.config.SubjectFilter, func(msg *nats.Msg) {
		if err := ec.processMessage(msg); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to process auction event")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ec.config.SubjectFilter, err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	log.Info().Msg("auction event consumer shutting down")
	return nil
}

func (ec *EventConsumer) processMessage(msg *nats.Msg) error {
	var env broadcast.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	auctionID, err := uuid.Parse(env.AuctionID)
	if err != nil {
		return fmt.Errorf("parse auction id %q: %w", env.AuctionID, err)
	}

	if env.EventType == auction.EventTypeForceDisconnect {
		var p auction.ForceDisconnectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("unmarshal force disconnect payload: %w", err)
		}
		log.Info().
			Str("auction_id", env.AuctionID).
			Int("connections", len(p.ConnectionIDs)).
			Msg("force disconnecting viewers")
		ec.connectionManager.CloseConnections(p.ConnectionIDs)
		return nil
	}

	ec.connectionManager.BroadcastToAuction(auctionID, msg.Data)
	return nil
}

// Stop drains the NATS connection.
func (ec *EventConsumer) Stop() error {
	if ec.nc != nil {
		return ec.nc.Drain()
	}
	return nil
}
