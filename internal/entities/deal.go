package entities

import (
	"time"
)

// GearDeal is a deduplicated marketplace listing. The URL is the identity
// key: a deal is created at most once per URL and never updated.
type GearDeal struct {
	ID          string
	Title       string
	Price       *float64
	URL         string
	ImageURL    string
	Description string
	Category    string
	Region      string
	PostedAt    *time.Time
	ScrapedAt   time.Time
}

// DealFilter is a user-owned matching rule set. Empty keyword/category/region
// sets and a nil max price all mean "match broadly" rather than "match
// nothing"; the matcher encodes those policies explicitly.
type DealFilter struct {
	ID         string
	UserID     string
	Name       string
	Keywords   []string
	Categories []string
	MaxPrice   *float64
	Regions    []string
	IsActive   bool
}

// DealFilterMatch joins a deal to a filter it scored against. Notified flips
// false→true exactly once, when the dispatcher processes the match.
type DealFilterMatch struct {
	ID       string
	FilterID string
	DealID   string
	Score    int
	Notified bool
}

// DealMatch is the dispatch-ready view of a scored match, carrying enough
// deal and filter context to build a notification without re-querying.
type DealMatch struct {
	FilterID     string
	FilterName   string
	UserID       string
	DealID       string
	DealTitle    string
	DealPrice    *float64
	DealURL      string
	DealCategory string
	DealRegion   string
	Score        int
}
