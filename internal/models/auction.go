package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionStatus defines the lifecycle status of an auction.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "SCHEDULED"
	AuctionStatusStarted   AuctionStatus = "STARTED"
	AuctionStatusPaused    AuctionStatus = "PAUSED"
	AuctionStatusStopped   AuctionStatus = "STOPPED"
	AuctionStatusEnded     AuctionStatus = "ENDED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusStopped || s == AuctionStatusEnded
}

// AuctionSummary is the persisted view of an auction as read from the
// auction repository. It carries everything the clock engine needs to
// build a live session; definition CRUD lives elsewhere.
type AuctionSummary struct {
	ID        uuid.UUID     `json:"id"`
	Region    string        `json:"region"`
	Country   string        `json:"country"`
	Status    AuctionStatus `json:"status"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
}
