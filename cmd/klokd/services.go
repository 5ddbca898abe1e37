package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/kloknet/klok/internal/auction"
	"github.com/kloknet/klok/internal/broadcast"
	"github.com/kloknet/klok/internal/catalog"
	"github.com/kloknet/klok/internal/gateway"
)

// Services holds the wired application graph.
type Services struct {
	Engine            *auction.Engine
	ConnectionManager *gateway.ConnectionManager
	WebSocketHandler  *gateway.WebSocketHandler
	OperatorHandler   *gateway.OperatorHandler
	EventConsumer     *gateway.EventConsumer
	Publisher         *broadcast.NATSPublisher // nil for the log driver
}

func setupServices(cfg *Config, pool *pgxpool.Pool) (*Services, error) {
	// Wire up dependency injection chain
	// Repository layer → engine → gateway

	repo := catalog.NewRepository(pool, cfg.defaultRoundDuration())

	var (
		broadcaster auction.Broadcaster
		publisher   *broadcast.NATSPublisher
	)
	switch cfg.Broadcast.Driver {
	case "nats":
		p, err := broadcast.NewNATSPublisher(cfg.Broadcast.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to set up NATS publisher: %w", err)
		}
		publisher = p
		broadcaster = p
	case "log":
		broadcaster = broadcast.LogPublisher{}
	default:
		return nil, fmt.Errorf("unknown broadcast driver %q", cfg.Broadcast.Driver)
	}

	engine := auction.NewEngine(repo, repo, broadcaster, clockwork.NewRealClock(), auction.Config{
		TickInterval: cfg.tickInterval(),
	})

	cm := gateway.NewConnectionManager(engine, gateway.DefaultConnectionConfig())
	wsHandler := gateway.NewWebSocketHandler(cm)
	opHandler := gateway.NewOperatorHandler(engine)

	var consumer *gateway.EventConsumer
	if publisher != nil {
		consumerCfg := gateway.DefaultConsumerConfig()
		consumerCfg.URL = cfg.Broadcast.NATSURL
		c, err := gateway.NewEventConsumer(cm, consumerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up event consumer: %w", err)
		}
		consumer = c
	}

	return &Services{
		Engine:            engine,
		ConnectionManager: cm,
		WebSocketHandler:  wsHandler,
		OperatorHandler:   opHandler,
		EventConsumer:     consumer,
		Publisher:         publisher,
	}, nil
}
