package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := loadConfig(getEnv("KLOK_CONFIG", ""))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up database")
	}
	defer pool.Close()

	services, err := setupServices(cfg, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	// Recovery must succeed before anything goes live: silently starting
	// with zero recovered auctions when auctions exist is worse than not
	// starting at all.
	if err := services.Engine.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("auction recovery failed")
	}

	go services.ConnectionManager.Start(ctx)
	if services.EventConsumer != nil {
		go func() {
			if err := services.EventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer exited")
			}
		}()
	}

	server := setupServer(cfg, services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("klokd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := services.Engine.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("engine shutdown failed")
	}
	if services.EventConsumer != nil {
		if err := services.EventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("event consumer stop failed")
		}
	}
	if services.Publisher != nil {
		if err := services.Publisher.Drain(); err != nil {
			log.Error().Err(err).Msg("publisher drain failed")
		}
	}

	log.Info().Msg("shutdown complete")
}
