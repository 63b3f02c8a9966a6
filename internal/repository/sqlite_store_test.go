package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRiver(t *testing.T, store *SQLiteStore, river entities.River) {
	t.Helper()
	// Empty IDs are stored as NULL so the aw_id UNIQUE constraint holds.
	var gaugeID, awID any
	if river.USGSGaugeID != "" {
		gaugeID = river.USGSGaugeID
	}
	if river.AWID != "" {
		awID = river.AWID
	}
	_, err := store.db.Exec(`
		INSERT INTO rivers(id, name, state, region, difficulty, usgs_gauge_id, aw_id)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		river.ID, river.Name, river.State, river.Region, river.Difficulty,
		gaugeID, awID)
	if err != nil {
		t.Fatalf("failed to seed river: %v", err)
	}
}

func seedUser(t *testing.T, store *SQLiteStore, user entities.User) {
	t.Helper()
	_, err := store.db.Exec(`INSERT INTO users(id, email, name) VALUES(?, ?, ?)`,
		user.ID, user.Email, user.Name)
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

func TestRiverLookups(t *testing.T) {
	store := newTestStore(t)
	seedRiver(t, store, entities.River{
		ID: "r1", Name: "Deschutes", State: "OR", Difficulty: "Class III",
		USGSGaugeID: "14092500", AWID: "384",
	})

	ctx := context.Background()
	err := store.WithTx(ctx, func(tx Tx) error {
		byGauge, err := tx.RiverByUSGSGaugeID("14092500")
		if err != nil || byGauge == nil || byGauge.ID != "r1" {
			t.Errorf("RiverByUSGSGaugeID = %+v, err=%v", byGauge, err)
		}
		byAW, err := tx.RiverByAWID("384")
		if err != nil || byAW == nil || byAW.ID != "r1" {
			t.Errorf("RiverByAWID = %+v, err=%v", byAW, err)
		}
		byName, err := tx.RiverByName("deschutes") // case-insensitive
		if err != nil || byName == nil || byName.ID != "r1" {
			t.Errorf("RiverByName = %+v, err=%v", byName, err)
		}
		missing, err := tx.RiverByUSGSGaugeID("00000000")
		if err != nil || missing != nil {
			t.Errorf("unknown gauge should yield (nil, nil), got %+v, %v", missing, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
}

func TestConditionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	seedRiver(t, store, entities.River{ID: "r1", Name: "Deschutes", USGSGaugeID: "14092500"})

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	flow := 2100.0
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx Tx) error {
		for i, scrapedAt := range []time.Time{now.Add(-3 * time.Hour), now.Add(-time.Hour), now} {
			cond := entities.RiverCondition{
				ID:          string(rune('a' + i)),
				RiverID:     "r1",
				Runnability: "optimal",
				Quality:     "excellent",
				Source:      "usgs",
				ScrapedAt:   scrapedAt,
			}
			if i == 2 {
				cond.FlowRate = &flow
			}
			if err := tx.InsertCondition(cond); err != nil {
				return err
			}
		}

		latest, err := tx.LatestCondition("r1")
		if err != nil {
			return err
		}
		if latest == nil || latest.ID != "c" {
			t.Fatalf("LatestCondition = %+v, want the newest row", latest)
		}
		if latest.FlowRate == nil || *latest.FlowRate != 2100 {
			t.Errorf("FlowRate = %v, want 2100", latest.FlowRate)
		}
		if latest.GaugeHeight != nil {
			t.Errorf("GaugeHeight should round-trip as nil, got %v", *latest.GaugeHeight)
		}

		// The 3h-old row falls outside a 2h window.
		recent, err := tx.RecentConditions("r1", now.Add(-2*time.Hour), 5)
		if err != nil {
			return err
		}
		if len(recent) != 2 {
			t.Fatalf("RecentConditions = %d rows, want 2", len(recent))
		}
		if recent[0].ID != "c" || recent[1].ID != "b" {
			t.Errorf("RecentConditions order = %s,%s, want newest first", recent[0].ID, recent[1].ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	seedRiver(t, store, entities.River{ID: "r1", Name: "Deschutes"})

	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertCondition(entities.RiverCondition{
			ID: "c1", RiverID: "r1", Source: "usgs", ScrapedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx error = %v, want boom", err)
	}

	err = store.WithTx(ctx, func(tx Tx) error {
		cond, err := tx.LatestCondition("r1")
		if err != nil {
			return err
		}
		if cond != nil {
			t.Errorf("rolled-back insert is still visible: %+v", cond)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
}

func TestDealFiltersAndMatches(t *testing.T) {
	store := newTestStore(t)
	maxPrice := 1500.0

	_, err := store.db.Exec(`
		INSERT INTO deal_filters(id, user_id, name, keywords, categories, max_price, regions, is_active)
		VALUES
			('f1', 'u1', 'rafts', ?, ?, ?, ?, 1),
			('f2', 'u1', 'disabled', '[]', '[]', NULL, '[]', 0)`,
		EncodeStringList([]string{"raft", "oar"}),
		EncodeStringList([]string{"raft"}),
		maxPrice,
		EncodeStringList(nil))
	if err != nil {
		t.Fatalf("failed to seed filters: %v", err)
	}

	ctx := context.Background()
	err = store.WithTx(ctx, func(tx Tx) error {
		filters, err := tx.ActiveDealFilters()
		if err != nil {
			return err
		}
		if len(filters) != 1 || filters[0].ID != "f1" {
			t.Fatalf("ActiveDealFilters = %+v, want only f1", filters)
		}
		f := filters[0]
		if len(f.Keywords) != 2 || f.Keywords[0] != "raft" {
			t.Errorf("Keywords = %v", f.Keywords)
		}
		if f.MaxPrice == nil || *f.MaxPrice != 1500 {
			t.Errorf("MaxPrice = %v", f.MaxPrice)
		}
		if len(f.Regions) != 0 {
			t.Errorf("Regions = %v, want empty", f.Regions)
		}

		price := 900.0
		deal := entities.GearDeal{
			ID: "d1", Title: "NRS raft", Price: &price,
			URL: "https://seattle.craigslist.org/1", Category: "raft",
			Region: "seattle", ScrapedAt: time.Now().UTC(),
		}
		if err := tx.InsertDeal(deal); err != nil {
			return err
		}
		fetched, err := tx.DealByURL(deal.URL)
		if err != nil {
			return err
		}
		if fetched == nil || fetched.ID != "d1" || fetched.Price == nil || *fetched.Price != 900 {
			t.Errorf("DealByURL = %+v", fetched)
		}
		missing, err := tx.DealByURL("https://nope")
		if err != nil || missing != nil {
			t.Errorf("unknown URL should yield (nil, nil), got %+v, %v", missing, err)
		}

		if err := tx.InsertDealFilterMatch(entities.DealFilterMatch{
			ID: "m1", FilterID: "f1", DealID: "d1", Score: 72,
		}); err != nil {
			return err
		}
		if err := tx.MarkMatchNotified("f1", "d1"); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	var notified bool
	if err := store.db.QueryRow(`SELECT notified FROM deal_filter_matches WHERE id = 'm1'`).Scan(&notified); err != nil {
		t.Fatalf("failed to read match: %v", err)
	}
	if !notified {
		t.Error("MarkMatchNotified did not flip the flag")
	}
}

func TestSubscriptionsAndPreferences(t *testing.T) {
	store := newTestStore(t)
	seedUser(t, store, entities.User{ID: "u1", Email: "u1@example.com"})
	seedRiver(t, store, entities.River{ID: "r1", Name: "Deschutes"})

	_, err := store.db.Exec(`
		INSERT INTO push_subscriptions(id, user_id, endpoint, p256dh, auth)
		VALUES ('s1', 'u1', 'https://push/1', 'p', 'a'), ('s2', 'u1', 'https://push/2', 'p', 'a')`)
	if err != nil {
		t.Fatalf("failed to seed subscriptions: %v", err)
	}
	_, err = store.db.Exec(`
		INSERT INTO user_rivers(id, user_id, river_id, notify) VALUES ('t1', 'u1', 'r1', 1)`)
	if err != nil {
		t.Fatalf("failed to seed tracker: %v", err)
	}

	ctx := context.Background()
	err = store.WithTx(ctx, func(tx Tx) error {
		subs, err := tx.SubscriptionsForUser("u1")
		if err != nil {
			return err
		}
		if len(subs) != 2 {
			t.Fatalf("SubscriptionsForUser = %d, want 2", len(subs))
		}

		// A deletion mid-transaction is visible to the next read.
		if err := tx.DeleteSubscription("https://push/1"); err != nil {
			return err
		}
		subs, err = tx.SubscriptionsForUser("u1")
		if err != nil {
			return err
		}
		if len(subs) != 1 || subs[0].Endpoint != "https://push/2" {
			t.Errorf("after delete, subs = %+v", subs)
		}

		trackers, err := tx.RiverTrackers("r1")
		if err != nil {
			return err
		}
		if len(trackers) != 1 || trackers[0].UserID != "u1" {
			t.Errorf("RiverTrackers = %+v", trackers)
		}

		user, err := tx.UserByID("u1")
		if err != nil || user == nil || user.Email != "u1@example.com" {
			t.Errorf("UserByID = %+v, err=%v", user, err)
		}

		pref, err := tx.PreferenceForUser("u1")
		if err != nil || pref != nil {
			t.Errorf("user without saved preference should yield (nil, nil), got %+v, %v", pref, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}

	_, err = store.db.Exec(`
		INSERT INTO notification_preferences(user_id, channel, deal_alerts, condition_alerts, hazard_alerts, weekly_digest)
		VALUES ('u1', 'both', 1, 0, 1, 1)`)
	if err != nil {
		t.Fatalf("failed to seed preference: %v", err)
	}
	err = store.WithTx(ctx, func(tx Tx) error {
		pref, err := tx.PreferenceForUser("u1")
		if err != nil {
			return err
		}
		if pref == nil || pref.Channel != "both" || pref.ConditionAlerts || !pref.WeeklyDigest {
			t.Errorf("PreferenceForUser = %+v", pref)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
}

func TestRiverListings(t *testing.T) {
	store := newTestStore(t)
	seedRiver(t, store, entities.River{ID: "r1", Name: "Deschutes", USGSGaugeID: "14092500"})
	seedRiver(t, store, entities.River{ID: "r2", Name: "Clackamas", AWID: "384"})
	seedRiver(t, store, entities.River{ID: "r3", Name: "Sandy"})

	ctx := context.Background()

	withGauge, err := store.RiversWithUSGSGauge(ctx)
	if err != nil || len(withGauge) != 1 || withGauge[0].ID != "r1" {
		t.Errorf("RiversWithUSGSGauge = %+v, err=%v", withGauge, err)
	}
	withAW, err := store.RiversWithAWID(ctx)
	if err != nil || len(withAW) != 1 || withAW[0].ID != "r2" {
		t.Errorf("RiversWithAWID = %+v, err=%v", withAW, err)
	}
	all, err := store.ListRivers(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListRivers = %d rivers, err=%v", len(all), err)
	}
	if all[0].Name != "Clackamas" {
		t.Errorf("rivers should be ordered by name, got %q first", all[0].Name)
	}
}
