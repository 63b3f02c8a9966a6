package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// DealByURL returns the deal with the given listing URL, or nil when the URL
// has never been seen. The URL is the dedup identity key.
func (t *sqliteTx) DealByURL(url string) (*entities.GearDeal, error) {
	row := t.tx.QueryRow(`
		SELECT id, title, price, url, image_url, description, category, region, posted_at, scraped_at
		FROM gear_deals WHERE url = ?`, url)

	var d entities.GearDeal
	var price sql.NullFloat64
	var postedAt sql.NullTime
	if err := row.Scan(&d.ID, &d.Title, &price, &d.URL, &d.ImageURL, &d.Description,
		&d.Category, &d.Region, &postedAt, &d.ScrapedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan deal row: %v", err)
	}
	d.Price = floatPtr(price)
	if postedAt.Valid {
		at := postedAt.Time
		d.PostedAt = &at
	}
	return &d, nil
}

// InsertDeal stores a new deal. Deals are immutable once written.
func (t *sqliteTx) InsertDeal(d entities.GearDeal) error {
	var postedAt sql.NullTime
	if d.PostedAt != nil {
		postedAt = sql.NullTime{Time: *d.PostedAt, Valid: true}
	}
	_, err := t.tx.Exec(`
		INSERT INTO gear_deals(id, title, price, url, image_url, description, category, region, posted_at, scraped_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, nullFloat(d.Price), d.URL, d.ImageURL, d.Description,
		d.Category, d.Region, postedAt, d.ScrapedAt)
	if err != nil {
		return fmt.Errorf("failed to insert deal %s: %v", d.URL, err)
	}
	return nil
}

// ActiveDealFilters returns every filter with the active flag set.
func (t *sqliteTx) ActiveDealFilters() ([]entities.DealFilter, error) {
	rows, err := t.tx.Query(`
		SELECT id, user_id, name, keywords, categories, max_price, regions, is_active
		FROM deal_filters WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active filters: %v", err)
	}
	defer rows.Close()

	var result []entities.DealFilter
	for rows.Next() {
		var f entities.DealFilter
		var keywords, categories, regions string
		var maxPrice sql.NullFloat64
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &keywords, &categories, &maxPrice, &regions, &f.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan filter row: %v", err)
		}
		f.MaxPrice = floatPtr(maxPrice)
		if f.Keywords, err = decodeStringList(keywords); err != nil {
			return nil, fmt.Errorf("bad keywords for filter %s: %v", f.ID, err)
		}
		if f.Categories, err = decodeStringList(categories); err != nil {
			return nil, fmt.Errorf("bad categories for filter %s: %v", f.ID, err)
		}
		if f.Regions, err = decodeStringList(regions); err != nil {
			return nil, fmt.Errorf("bad regions for filter %s: %v", f.ID, err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %v", err)
	}
	return result, nil
}

// InsertDealFilterMatch records one scored filter/deal pair.
func (t *sqliteTx) InsertDealFilterMatch(m entities.DealFilterMatch) error {
	_, err := t.tx.Exec(`
		INSERT INTO deal_filter_matches(id, filter_id, deal_id, score, notified)
		VALUES(?, ?, ?, ?, ?)`,
		m.ID, m.FilterID, m.DealID, m.Score, m.Notified)
	if err != nil {
		return fmt.Errorf("failed to insert match for filter %s: %v", m.FilterID, err)
	}
	return nil
}

// MarkMatchNotified flips the notified flag for a filter/deal pair. The flag
// never reverts.
func (t *sqliteTx) MarkMatchNotified(filterID, dealID string) error {
	_, err := t.tx.Exec(`
		UPDATE deal_filter_matches SET notified = 1 WHERE filter_id = ? AND deal_id = ?`,
		filterID, dealID)
	if err != nil {
		return fmt.Errorf("failed to mark match notified: %v", err)
	}
	return nil
}

// decodeStringList parses the JSON-encoded TEXT columns used for the
// keyword/category/region sets. Empty column means empty set.
func decodeStringList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// EncodeStringList is the inverse of decodeStringList, used when seeding
// filters into the store.
func EncodeStringList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	raw, _ := json.Marshal(list)
	return string(raw)
}
