// Package integration handles external service interactions
package integration

import (
	"context"
	"net/http"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// Scraper fetches observations from one upstream source and returns them as
// normalized facts. Scrapers never touch run transactions; resolution and
// persistence are the processors' job.
type Scraper interface {
	Name() string
	Scrape(ctx context.Context) ([]entities.Fact, error)
}

// RiverSource lists the tracked rivers a scraper needs gauge or reach IDs
// for. The SQLite store satisfies it.
type RiverSource interface {
	RiversWithUSGSGauge(ctx context.Context) ([]entities.River, error)
	RiversWithAWID(ctx context.Context) ([]entities.River, error)
}

// newHTTPClient builds the client every scraper shares its settings with.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
