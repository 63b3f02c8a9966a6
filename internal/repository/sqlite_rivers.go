package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
)

const riverColumns = `id, name, state, region, difficulty, usgs_gauge_id, aw_id`

// RiverByUSGSGaugeID looks up a river by its USGS site number.
func (t *sqliteTx) RiverByUSGSGaugeID(gaugeID string) (*entities.River, error) {
	return t.riverWhere(`usgs_gauge_id = ?`, gaugeID)
}

// RiverByAWID looks up a river by its American Whitewater reach ID.
func (t *sqliteTx) RiverByAWID(awID string) (*entities.River, error) {
	return t.riverWhere(`aw_id = ?`, awID)
}

// RiverByName looks up a river by exact name, case-insensitively.
func (t *sqliteTx) RiverByName(name string) (*entities.River, error) {
	return t.riverWhere(`name = ? COLLATE NOCASE`, name)
}

func (t *sqliteTx) riverWhere(where string, arg any) (*entities.River, error) {
	row := t.tx.QueryRow(`SELECT `+riverColumns+` FROM rivers WHERE `+where, arg)
	river, err := scanRiver(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return river, nil
}

// RecentConditions returns conditions for a river scraped at or after the
// cutoff, newest first, capped at limit.
func (t *sqliteTx) RecentConditions(riverID string, since time.Time, limit int) ([]entities.RiverCondition, error) {
	rows, err := t.tx.Query(`
		SELECT id, river_id, flow_rate, gauge_height, water_temp, runnability, quality,
		       source, source_url, raw_data, scraped_at
		FROM river_conditions
		WHERE river_id = ? AND scraped_at >= ?
		ORDER BY scraped_at DESC
		LIMIT ?`, riverID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent conditions: %v", err)
	}
	defer rows.Close()

	var result []entities.RiverCondition
	for rows.Next() {
		cond, err := scanCondition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cond)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %v", err)
	}
	return result, nil
}

// LatestCondition returns the most recently scraped condition for a river,
// from any source, or nil when the river has none.
func (t *sqliteTx) LatestCondition(riverID string) (*entities.RiverCondition, error) {
	row := t.tx.QueryRow(`
		SELECT id, river_id, flow_rate, gauge_height, water_temp, runnability, quality,
		       source, source_url, raw_data, scraped_at
		FROM river_conditions
		WHERE river_id = ?
		ORDER BY scraped_at DESC
		LIMIT 1`, riverID)
	cond, err := scanCondition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cond, nil
}

// InsertCondition appends one condition snapshot. Conditions are never
// updated or deleted by the pipeline.
func (t *sqliteTx) InsertCondition(c entities.RiverCondition) error {
	_, err := t.tx.Exec(`
		INSERT INTO river_conditions(id, river_id, flow_rate, gauge_height, water_temp,
			runnability, quality, source, source_url, raw_data, scraped_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.RiverID, nullFloat(c.FlowRate), nullFloat(c.GaugeHeight), nullFloat(c.WaterTemp),
		c.Runnability, c.Quality, c.Source, c.SourceURL, c.RawData, c.ScrapedAt)
	if err != nil {
		return fmt.Errorf("failed to insert condition for river %s: %v", c.RiverID, err)
	}
	return nil
}

// InsertScrapeLog records one pipeline run in the audit trail.
func (t *sqliteTx) InsertScrapeLog(l entities.ScrapeLog) error {
	_, err := t.tx.Exec(`
		INSERT INTO scrape_logs(id, source, status, item_count, error, duration, started_at, finished_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Source, l.Status, l.ItemCount, l.Error, l.DurationMS, l.StartedAt, l.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert scrape log for %s: %v", l.Source, err)
	}
	return nil
}

func scanCondition(row rowScanner) (*entities.RiverCondition, error) {
	var c entities.RiverCondition
	var flow, height, temp sql.NullFloat64
	if err := row.Scan(&c.ID, &c.RiverID, &flow, &height, &temp, &c.Runnability, &c.Quality,
		&c.Source, &c.SourceURL, &c.RawData, &c.ScrapedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan condition row: %v", err)
	}
	c.FlowRate = floatPtr(flow)
	c.GaugeHeight = floatPtr(height)
	c.WaterTemp = floatPtr(temp)
	return &c, nil
}
