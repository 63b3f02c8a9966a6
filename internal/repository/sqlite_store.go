package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abelzeko/water-watcher/internal/entities"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	DBPath string
	log    zerolog.Logger
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS rivers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	state TEXT NOT NULL DEFAULT '',
	region TEXT NOT NULL DEFAULT '',
	difficulty TEXT NOT NULL DEFAULT '',
	usgs_gauge_id TEXT,
	aw_id TEXT UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_rivers_usgs_gauge ON rivers(usgs_gauge_id);

CREATE TABLE IF NOT EXISTS river_conditions (
	id TEXT PRIMARY KEY,
	river_id TEXT NOT NULL REFERENCES rivers(id) ON DELETE CASCADE,
	flow_rate REAL,
	gauge_height REAL,
	water_temp REAL,
	runnability TEXT NOT NULL DEFAULT '',
	quality TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	raw_data TEXT NOT NULL DEFAULT '',
	scraped_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conditions_river_scraped ON river_conditions(river_id, scraped_at);

CREATE TABLE IF NOT EXISTS gear_deals (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	price REAL,
	url TEXT UNIQUE NOT NULL,
	image_url TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	region TEXT NOT NULL DEFAULT '',
	posted_at DATETIME,
	scraped_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deals_scraped ON gear_deals(scraped_at);

CREATE TABLE IF NOT EXISTS deal_filters (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	keywords TEXT NOT NULL DEFAULT '[]',
	categories TEXT NOT NULL DEFAULT '[]',
	max_price REAL,
	regions TEXT NOT NULL DEFAULT '[]',
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS deal_filter_matches (
	id TEXT PRIMARY KEY,
	filter_id TEXT NOT NULL REFERENCES deal_filters(id) ON DELETE CASCADE,
	deal_id TEXT NOT NULL REFERENCES gear_deals(id) ON DELETE CASCADE,
	score INTEGER NOT NULL DEFAULT 0,
	notified INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	endpoint TEXT UNIQUE NOT NULL,
	p256dh TEXT NOT NULL,
	auth TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON push_subscriptions(user_id);

CREATE TABLE IF NOT EXISTS user_rivers (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	river_id TEXT NOT NULL REFERENCES rivers(id) ON DELETE CASCADE,
	notify INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_user_rivers_river ON user_rivers(river_id);

CREATE TABLE IF NOT EXISTS notification_preferences (
	user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	channel TEXT NOT NULL DEFAULT 'push',
	deal_alerts INTEGER NOT NULL DEFAULT 1,
	condition_alerts INTEGER NOT NULL DEFAULT 1,
	hazard_alerts INTEGER NOT NULL DEFAULT 1,
	weekly_digest INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scrape_logs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	item_count INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	duration INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL,
	finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_scrape_logs_source_started ON scrape_logs(source, started_at);`

// NewSQLiteStore opens (and if needed creates) the SQLite database at dbPath.
func NewSQLiteStore(dbPath string, log zerolog.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		// Set default path if not specified
		dbDir := "data"
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %v", err)
		}
		dbPath = filepath.Join(dbDir, "waterwatcher.db")
	}

	log.Info().Str("path", dbPath).Msg("opening database")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return &SQLiteStore{
		db:     db,
		DBPath: dbPath,
		log:    log,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back when fn returns an error.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

// RiversWithUSGSGauge returns rivers that have a USGS gauge ID configured.
func (s *SQLiteStore) RiversWithUSGSGauge(ctx context.Context) ([]entities.River, error) {
	return s.queryRivers(ctx, `SELECT id, name, state, region, difficulty, usgs_gauge_id, aw_id
		FROM rivers WHERE usgs_gauge_id IS NOT NULL AND usgs_gauge_id != '' ORDER BY name`)
}

// RiversWithAWID returns rivers that have an American Whitewater reach ID.
func (s *SQLiteStore) RiversWithAWID(ctx context.Context) ([]entities.River, error) {
	return s.queryRivers(ctx, `SELECT id, name, state, region, difficulty, usgs_gauge_id, aw_id
		FROM rivers WHERE aw_id IS NOT NULL AND aw_id != '' ORDER BY name`)
}

// ListRivers returns every tracked river ordered by name.
func (s *SQLiteStore) ListRivers(ctx context.Context) ([]entities.River, error) {
	return s.queryRivers(ctx, `SELECT id, name, state, region, difficulty, usgs_gauge_id, aw_id
		FROM rivers ORDER BY name`)
}

func (s *SQLiteStore) queryRivers(ctx context.Context, query string) ([]entities.River, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rivers: %v", err)
	}
	defer rows.Close()

	var result []entities.River
	for rows.Next() {
		river, err := scanRiver(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *river)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %v", err)
	}
	return result, nil
}

// sqliteTx wraps one *sql.Tx and carries all per-run queries.
type sqliteTx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRiver(row rowScanner) (*entities.River, error) {
	var r entities.River
	var gaugeID, awID sql.NullString
	if err := row.Scan(&r.ID, &r.Name, &r.State, &r.Region, &r.Difficulty, &gaugeID, &awID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan river row: %v", err)
	}
	r.USGSGaugeID = gaugeID.String
	r.AWID = awID.String
	return &r, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
