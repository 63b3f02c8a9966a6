// Package entities contains the core domain objects for the water-watcher pipeline
package entities

import (
	"time"
)

// River represents a tracked river section. Rivers are created and edited by
// the web app; the pipeline only reads them and appends conditions.
type River struct {
	ID          string
	Name        string
	State       string
	Region      string
	Difficulty  string
	USGSGaugeID string // USGS site number, empty when the river has no official gauge
	AWID        string // American Whitewater reach ID, empty when untracked there
}

// RiverCondition is one immutable condition snapshot derived from a single
// scraped fact. Conditions are append-only; the newest scraped_at row is the
// river's current state.
type RiverCondition struct {
	ID          string
	RiverID     string
	FlowRate    *float64 // CFS
	GaugeHeight *float64 // feet
	WaterTemp   *float64 // °F
	Runnability string   // too_low, low, runnable, optimal, high, dangerous
	Quality     string   // excellent, good, fair, poor, dangerous
	Source      string
	SourceURL   string
	RawData     string // opaque source payload, JSON
	ScrapedAt   time.Time
}

// UserRiver links a user to a river they track. Notify controls whether
// condition-change alerts are delivered.
type UserRiver struct {
	ID      string
	UserID  string
	RiverID string
	Notify  bool
}
