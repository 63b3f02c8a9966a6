package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/rs/zerolog"
)

func newTestProcessor(store *fakeStore, now time.Time) *ConditionProcessor {
	p := NewConditionProcessor(store, zerolog.Nop())
	p.now = func() time.Time { return now }
	return p
}

func usgsFact(gaugeID string, flow *float64, scrapedAt time.Time) entities.Fact {
	attrs := map[string]any{"usgs_gauge_id": gaugeID}
	if flow != nil {
		attrs["flow_rate"] = *flow
	}
	return entities.Fact{
		Source:     "usgs",
		SourceURL:  "https://waterdata.usgs.gov/nwis/uv?site_no=" + gaugeID,
		Attributes: attrs,
		ScrapedAt:  scrapedAt,
	}
}

func awFact(awID string, flow *float64, scrapedAt time.Time) entities.Fact {
	attrs := map[string]any{"aw_id": awID}
	if flow != nil {
		attrs["flow_rate"] = *flow
	}
	return entities.Fact{
		Source:     "aw",
		SourceURL:  "https://www.americanwhitewater.org/content/River/detail/id/" + awID + "/",
		Attributes: attrs,
		ScrapedAt:  scrapedAt,
	}
}

func TestProcessStoresClassifiedCondition(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", USGSGaugeID: "14092500"}}

	p := newTestProcessor(store, now)
	processed := p.Process(context.Background(), []entities.Fact{
		usgsFact("14092500", floatPtr(2000), now),
	}, "usgs")

	if len(processed) != 1 {
		t.Fatalf("expected 1 processed condition, got %d", len(processed))
	}
	if processed[0].Runnability != RunnabilityOptimal || processed[0].Quality != QualityExcellent {
		t.Errorf("got runnability=%q quality=%q, want optimal/excellent",
			processed[0].Runnability, processed[0].Quality)
	}
	conds := store.tx.conditions["r1"]
	if len(conds) != 1 {
		t.Fatalf("expected 1 stored condition, got %d", len(conds))
	}
	if conds[0].Source != "usgs" || conds[0].FlowRate == nil || *conds[0].FlowRate != 2000 {
		t.Errorf("stored condition mismatch: %+v", conds[0])
	}
	if len(store.tx.scrapeLogs) != 1 || store.tx.scrapeLogs[0].Status != "success" {
		t.Errorf("expected one success scrape log, got %+v", store.tx.scrapeLogs)
	}
}

func TestProcessMergesFromHigherAuthority(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", AWID: "384"}}

	// A USGS reading one hour old carries flow and temperature.
	store.tx.conditions["r1"] = []entities.RiverCondition{{
		ID: "c0", RiverID: "r1", Source: "usgs",
		FlowRate:  floatPtr(1800),
		WaterTemp: floatPtr(54),
		Quality:   QualityExcellent,
		ScrapedAt: now.Add(-time.Hour),
	}}

	p := newTestProcessor(store, now)
	processed := p.Process(context.Background(), []entities.Fact{
		awFact("384", nil, now),
	}, "aw")

	if len(processed) != 1 {
		t.Fatalf("expected 1 processed condition, got %d", len(processed))
	}
	stored := store.tx.conditions["r1"][0]
	if stored.FlowRate == nil || *stored.FlowRate != 1800 {
		t.Errorf("flow should be gap-filled from USGS, got %v", stored.FlowRate)
	}
	if stored.WaterTemp == nil || *stored.WaterTemp != 54 {
		t.Errorf("water temp should be gap-filled from USGS, got %v", stored.WaterTemp)
	}
	if processed[0].Runnability != RunnabilityOptimal {
		t.Errorf("merged flow should classify as optimal, got %q", processed[0].Runnability)
	}
}

func TestProcessNeverOverwritesSuppliedFields(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", AWID: "384"}}
	store.tx.conditions["r1"] = []entities.RiverCondition{{
		ID: "c0", RiverID: "r1", Source: "usgs",
		FlowRate:  floatPtr(9999),
		ScrapedAt: now.Add(-time.Minute),
	}}

	p := newTestProcessor(store, now)
	p.Process(context.Background(), []entities.Fact{
		awFact("384", floatPtr(1200), now),
	}, "aw")

	stored := store.tx.conditions["r1"][0]
	if stored.FlowRate == nil || *stored.FlowRate != 1200 {
		t.Errorf("supplied flow must not be overwritten, got %v", stored.FlowRate)
	}
}

func TestProcessIgnoresLowerAndEqualAuthority(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", USGSGaugeID: "14092500"}}

	// Lower-authority AW reading inside the window must not fill USGS gaps,
	// nor must an equal-authority USGS reading.
	store.tx.conditions["r1"] = []entities.RiverCondition{
		{ID: "c1", RiverID: "r1", Source: "aw", FlowRate: floatPtr(700), ScrapedAt: now.Add(-30 * time.Minute)},
		{ID: "c0", RiverID: "r1", Source: "usgs", FlowRate: floatPtr(800), ScrapedAt: now.Add(-time.Hour)},
	}

	p := newTestProcessor(store, now)
	// The fact priorities are keyed on the batch source, not the row source.
	p.Process(context.Background(), []entities.Fact{
		usgsFact("14092500", nil, now),
	}, "usgs")

	stored := store.tx.conditions["r1"][0]
	if stored.FlowRate != nil {
		t.Errorf("flow should stay nil, got %v", *stored.FlowRate)
	}
	if stored.Runnability != "" || stored.Quality != "" {
		t.Errorf("nil flow should yield empty labels, got %q/%q", stored.Runnability, stored.Quality)
	}
}

func TestProcessIgnoresReadingsOutsideWindow(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", AWID: "384"}}
	store.tx.conditions["r1"] = []entities.RiverCondition{{
		ID: "c0", RiverID: "r1", Source: "usgs",
		FlowRate:  floatPtr(1800),
		ScrapedAt: now.Add(-3 * time.Hour),
	}}

	p := newTestProcessor(store, now)
	p.Process(context.Background(), []entities.Fact{
		awFact("384", nil, now),
	}, "aw")

	stored := store.tx.conditions["r1"][0]
	if stored.FlowRate != nil {
		t.Errorf("stale reading must not be merged, got %v", *stored.FlowRate)
	}
}

func TestProcessAppliesIncomingFlowRange(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", AWID: "384"}}

	fact := awFact("384", floatPtr(400), now)
	fact.Attributes["flow_range"] = map[string]any{"min": 300.0, "max": 900.0}

	p := newTestProcessor(store, now)
	processed := p.Process(context.Background(), []entities.Fact{fact}, "aw")

	// 400 cfs is "too low" on the default bands but optimal for this reach.
	if len(processed) != 1 || processed[0].Runnability != RunnabilityOptimal {
		t.Fatalf("expected optimal via per-river range, got %+v", processed)
	}
}

func TestProcessFlagsQualityTransition(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", USGSGaugeID: "14092500"}}
	store.tx.conditions["r1"] = []entities.RiverCondition{{
		ID: "c0", RiverID: "r1", Source: "usgs",
		FlowRate:  floatPtr(800),
		Quality:   QualityGood,
		ScrapedAt: now.Add(-4 * time.Hour),
	}}

	p := newTestProcessor(store, now)
	processed := p.Process(context.Background(), []entities.Fact{
		usgsFact("14092500", floatPtr(2500), now),
	}, "usgs")

	if len(processed) != 1 {
		t.Fatalf("expected 1 processed condition, got %d", len(processed))
	}
	cond := processed[0]
	if !cond.QualityChanged {
		t.Fatal("expected quality change to be flagged")
	}
	if cond.OldQuality != QualityGood || cond.NewQuality != QualityExcellent {
		t.Errorf("transition %q->%q, want good->excellent", cond.OldQuality, cond.NewQuality)
	}
}

func TestProcessNoTransitionWhenQualityUnchanged(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", USGSGaugeID: "14092500"}}
	store.tx.conditions["r1"] = []entities.RiverCondition{{
		ID: "c0", RiverID: "r1", Source: "usgs",
		Quality:   QualityExcellent,
		ScrapedAt: now.Add(-4 * time.Hour),
	}}

	p := newTestProcessor(store, now)
	processed := p.Process(context.Background(), []entities.Fact{
		usgsFact("14092500", floatPtr(2500), now),
	}, "usgs")

	if len(processed) != 1 || processed[0].QualityChanged {
		t.Errorf("unchanged quality must not be flagged: %+v", processed)
	}
}

func TestProcessNoTransitionWithoutPriorCondition(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", USGSGaugeID: "14092500"}}

	p := newTestProcessor(store, now)
	processed := p.Process(context.Background(), []entities.Fact{
		usgsFact("14092500", floatPtr(2500), now),
	}, "usgs")

	if len(processed) != 1 || processed[0].QualityChanged {
		t.Errorf("first condition must not be flagged as a transition: %+v", processed)
	}
}

func TestProcessDropsUnresolvableFacts(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", USGSGaugeID: "14092500"}}

	p := newTestProcessor(store, now)

	// Unknown gauge, missing key, and a source with no lookup key at all.
	processed := p.Process(context.Background(), []entities.Fact{
		usgsFact("99999999", floatPtr(100), now),
		{Source: "usgs", Attributes: map[string]any{}, ScrapedAt: now},
	}, "usgs")
	processed = append(processed, p.Process(context.Background(), []entities.Fact{
		{Source: "facebook", Attributes: map[string]any{"flow_rate": 500.0}, ScrapedAt: now},
	}, "facebook")...)

	if len(processed) != 0 {
		t.Errorf("expected all facts dropped, got %d", len(processed))
	}
	if len(store.tx.conditions["r1"]) != 0 {
		t.Errorf("no conditions should be stored")
	}
}

func TestProcessRollsBackBatchOnFailure(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.tx.rivers = []entities.River{{ID: "r1", Name: "Deschutes", USGSGaugeID: "14092500"}}
	store.tx.failInsertCondition = true

	p := newTestProcessor(store, now)
	processed := p.Process(context.Background(), []entities.Fact{
		usgsFact("14092500", floatPtr(2000), now),
	}, "usgs")

	if processed != nil {
		t.Errorf("failed batch must yield empty result, got %+v", processed)
	}
	if store.rollbacks != 1 {
		t.Errorf("expected 1 rollback, got %d", store.rollbacks)
	}
	if len(store.tx.scrapeLogs) != 1 || store.tx.scrapeLogs[0].Status != "error" {
		t.Errorf("expected an error scrape log, got %+v", store.tx.scrapeLogs)
	}
}
