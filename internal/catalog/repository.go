package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kloknet/klok/internal/models"
)

// Repository reads auction and lot definitions from Postgres. The clock
// engine only ever reads; definition CRUD belongs to the catalog
// service and is out of scope here.
type Repository struct {
	pool *pgxpool.Pool

	// defaultRoundDuration applies to lots whose round_duration_sec
	// column is null or zero.
	defaultRoundDuration time.Duration
}

// NewRepository creates a catalog repository over a pgx pool.
func NewRepository(pool *pgxpool.Pool, defaultRoundDuration time.Duration) *Repository {
	return &Repository{
		pool:                 pool,
		defaultRoundDuration: defaultRoundDuration,
	}
}

// ListActiveAuctions returns every auction persisted as STARTED. Used at
// recovery to rebuild the live session registry.
func (r *Repository) ListActiveAuctions(ctx context.Context) ([]models.AuctionSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, region, country, status, started_at
		FROM auctions
		WHERE status = $1`,
		string(models.AuctionStatusStarted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active auctions: %w", err)
	}
	defer rows.Close()

	var auctions []models.AuctionSummary
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read auction rows: %w", err)
	}
	return auctions, nil
}

// GetAuction returns one auction summary, or nil when the id is unknown.
func (r *Repository) GetAuction(ctx context.Context, id uuid.UUID) (*models.AuctionSummary, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, region, country, status, started_at
		FROM auctions
		WHERE id = $1`,
		id,
	)
	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListLotsForAuction returns the auction's curated lot queue in clock
// order.
func (r *Repository) ListLotsForAuction(ctx context.Context, auctionID uuid.UUID) ([]models.LotSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, auction_id, position, starting_price, floor_price, initial_stock, round_duration_sec
		FROM lots
		WHERE auction_id = $1
		ORDER BY position`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	var lots []models.LotSummary
	for rows.Next() {
		var (
			lot         models.LotSummary
			durationSec *int
		)
		if err := rows.Scan(&lot.ID, &lot.AuctionID, &lot.Position, &lot.StartingPrice, &lot.FloorPrice, &lot.InitialStock, &durationSec); err != nil {
			return nil, fmt.Errorf("failed to scan lot row: %w", err)
		}
		lot.RoundDuration = r.roundDuration(durationSec)
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lot rows: %w", err)
	}
	return lots, nil
}

func (r *Repository) roundDuration(sec *int) time.Duration {
	if sec == nil || *sec <= 0 {
		return r.defaultRoundDuration
	}
	return time.Duration(*sec) * time.Second
}

func scanAuction(row pgx.Row) (models.AuctionSummary, error) {
	var (
		a         models.AuctionSummary
		status    string
		startedAt *time.Time
	)
	if err := row.Scan(&a.ID, &a.Region, &a.Country, &status, &startedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan auction row: %w", err)
	}
	a.Status = models.AuctionStatus(status)
	a.StartedAt = startedAt
	return a, nil
}
