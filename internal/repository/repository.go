// Package repository provides data access implementations
package repository

import (
	"context"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// Tx is the unit-of-work surface for one pipeline run. Every read and write a
// run performs goes through a single Tx; WithTx commits on success and rolls
// back when the callback returns an error.
//
// Lookup methods return (nil, nil) when no row matches.
type Tx interface {
	// Rivers and conditions
	RiverByUSGSGaugeID(gaugeID string) (*entities.River, error)
	RiverByAWID(awID string) (*entities.River, error)
	RiverByName(name string) (*entities.River, error)
	RecentConditions(riverID string, since time.Time, limit int) ([]entities.RiverCondition, error)
	LatestCondition(riverID string) (*entities.RiverCondition, error)
	InsertCondition(c entities.RiverCondition) error

	// Gear deals and filters
	DealByURL(url string) (*entities.GearDeal, error)
	InsertDeal(d entities.GearDeal) error
	ActiveDealFilters() ([]entities.DealFilter, error)
	InsertDealFilterMatch(m entities.DealFilterMatch) error
	MarkMatchNotified(filterID, dealID string) error

	// Notification targets
	SubscriptionsForUser(userID string) ([]entities.PushSubscription, error)
	DeleteSubscription(endpoint string) error
	RiverTrackers(riverID string) ([]entities.UserRiver, error)
	UserByID(id string) (*entities.User, error)
	PreferenceForUser(userID string) (*entities.NotificationPreference, error)

	// Audit trail
	InsertScrapeLog(l entities.ScrapeLog) error
}

// Store defines the persistence operations the pipeline needs.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error

	// Read-only helpers used outside run transactions (scrapers, bot).
	RiversWithUSGSGauge(ctx context.Context) ([]entities.River, error)
	RiversWithAWID(ctx context.Context) ([]entities.River, error)
	ListRivers(ctx context.Context) ([]entities.River, error)

	Close() error
}
