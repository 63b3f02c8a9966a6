package entities

import (
	"time"
)

// Fact is a single normalized observation produced by a scraper. Attributes
// hold the source-specific fields (gauge IDs, flow readings, listing data);
// the processors decide what to do with them.
type Fact struct {
	Source     string
	SourceURL  string
	Attributes map[string]any
	ScrapedAt  time.Time
}

// Float returns the named attribute as a float pointer, nil when absent or
// not numeric. Scrapers store numbers as float64; JSON round-trips keep them
// that way.
func (f Fact) Float(key string) *float64 {
	v, ok := f.Attributes[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		fv := float64(n)
		return &fv
	}
	return nil
}

// String returns the named attribute as a string, empty when absent.
func (f Fact) String(key string) string {
	if v, ok := f.Attributes[key].(string); ok {
		return v
	}
	return ""
}
