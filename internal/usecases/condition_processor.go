// Package usecases contains the pipeline's business logic
package usecases

import (
	"context"
	"encoding/json"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultSourcePriority is the authority ranking used when merging readings
// from multiple sources. Higher number wins; official gauges beat
// crowd-sourced reports. This is the single source of truth for the order.
var DefaultSourcePriority = map[string]int{
	"usgs":     100, // USGS official gauges (most authoritative)
	"aw":       80,  // American Whitewater (gauge correlations + user reports)
	"blm":      70,  // Bureau of Land Management
	"usfs":     70,  // US Forest Service
	"facebook": 30,  // Facebook group posts (least authoritative)
}

// mergeWindow bounds how far back the processor looks for higher-authority
// readings when filling gaps, and mergeWindowLimit caps how many rows it
// scans.
const (
	mergeWindow      = 2 * time.Hour
	mergeWindowLimit = 5
)

// riverResolver looks up the river a fact refers to. Each source gets
// exactly one lookup key; sources without a resolver produce facts that are
// silently dropped.
type riverResolver func(tx repository.Tx, fact entities.Fact) (*entities.River, error)

var sourceResolvers = map[string]riverResolver{
	"usgs": func(tx repository.Tx, fact entities.Fact) (*entities.River, error) {
		gaugeID := fact.String("usgs_gauge_id")
		if gaugeID == "" {
			return nil, nil
		}
		return tx.RiverByUSGSGaugeID(gaugeID)
	},
	"aw": func(tx repository.Tx, fact entities.Fact) (*entities.River, error) {
		awID := fact.String("aw_id")
		if awID == "" {
			return nil, nil
		}
		return tx.RiverByAWID(awID)
	},
}

// ConditionProcessor turns raw scraped facts into normalized RiverCondition
// rows: it resolves each fact to a river, gap-fills from recent
// higher-authority readings, classifies runnability and quality, and flags
// quality transitions against the previous condition.
type ConditionProcessor struct {
	store      repository.Store
	priorities map[string]int
	now        func() time.Time
	log        zerolog.Logger
}

// NewConditionProcessor creates a processor with the default authority
// ranking.
func NewConditionProcessor(store repository.Store, log zerolog.Logger) *ConditionProcessor {
	return &ConditionProcessor{
		store:      store,
		priorities: DefaultSourcePriority,
		now:        time.Now,
		log:        log.With().Str("component", "condition_processor").Logger(),
	}
}

// Process handles one batch of facts from a single source. Every resolved
// fact produces exactly one condition row. The whole batch runs in one
// transaction: a batch-level failure rolls everything back, records an error
// scrape log, and yields an empty result. Process never returns an error to
// its caller.
func (p *ConditionProcessor) Process(ctx context.Context, facts []entities.Fact, source string) []entities.ProcessedCondition {
	startedAt := p.now()
	var processed []entities.ProcessedCondition

	err := p.store.WithTx(ctx, func(tx repository.Tx) error {
		for _, fact := range facts {
			result, err := p.processOne(tx, fact, source)
			if err != nil {
				return err
			}
			if result == nil {
				continue
			}
			processed = append(processed, *result)
		}

		finishedAt := p.now()
		return tx.InsertScrapeLog(entities.ScrapeLog{
			ID:         uuid.NewString(),
			Source:     source,
			Status:     "success",
			ItemCount:  len(processed),
			DurationMS: finishedAt.Sub(startedAt).Milliseconds(),
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
		})
	})
	if err != nil {
		p.log.Error().Err(err).Str("source", source).Msg("processing failed, batch rolled back")
		p.recordFailure(ctx, source, startedAt, err)
		return nil
	}

	p.log.Info().Str("source", source).Int("count", len(processed)).Msg("processed conditions")
	return processed
}

// processOne resolves, merges, classifies and persists a single fact.
// Returns nil when the fact is dropped (unknown source key or no matching
// river); returns an error only for storage failures, which abort the batch.
func (p *ConditionProcessor) processOne(tx repository.Tx, fact entities.Fact, source string) (*entities.ProcessedCondition, error) {
	resolve, ok := sourceResolvers[source]
	if !ok {
		p.log.Debug().Str("source", source).Msg("source has no river lookup key, dropping fact")
		return nil, nil
	}
	river, err := resolve(tx, fact)
	if err != nil {
		return nil, err
	}
	if river == nil {
		p.log.Warn().Str("source", source).
			Str("key", fact.String("usgs_gauge_id")+fact.String("aw_id")).
			Msg("no river found for fact")
		return nil, nil
	}

	flowRate := fact.Float("flow_rate")
	gaugeHeight := fact.Float("gauge_height")
	waterTemp := fact.Float("water_temp")

	// Gap-fill missing fields from recent higher-authority readings. Fields
	// the fact itself supplies are kept even when an official gauge
	// disagrees.
	flowRate, gaugeHeight, waterTemp, err = p.mergeWithRecent(tx, river.ID, source, flowRate, gaugeHeight, waterTemp)
	if err != nil {
		return nil, err
	}

	// The per-river range comes from the incoming fact and is applied to
	// the post-merge flow value.
	runnability := ClassifyRunnability(flowRate, factFlowRange(fact))
	quality := RunnabilityToQuality(runnability)

	prev, err := tx.LatestCondition(river.ID)
	if err != nil {
		return nil, err
	}
	oldQuality := ""
	if prev != nil {
		oldQuality = prev.Quality
	}

	if err := tx.InsertCondition(entities.RiverCondition{
		ID:          uuid.NewString(),
		RiverID:     river.ID,
		FlowRate:    flowRate,
		GaugeHeight: gaugeHeight,
		WaterTemp:   waterTemp,
		Runnability: runnability,
		Quality:     quality,
		Source:      source,
		SourceURL:   fact.SourceURL,
		RawData:     rawPayload(fact),
		ScrapedAt:   fact.ScrapedAt,
	}); err != nil {
		return nil, err
	}

	result := &entities.ProcessedCondition{
		RiverID:     river.ID,
		RiverName:   river.Name,
		Quality:     quality,
		Runnability: runnability,
		FlowRate:    flowRate,
		Source:      source,
	}

	if oldQuality != "" && quality != "" && oldQuality != quality {
		result.QualityChanged = true
		result.OldQuality = oldQuality
		result.NewQuality = quality
		p.log.Info().Str("river", river.Name).
			Str("old", oldQuality).Str("new", quality).
			Msg("quality change detected")
	}

	return result, nil
}

// mergeWithRecent fills nil fields from the newest strictly-higher-authority
// reading inside the trailing window. Equal or lower authority readings never
// contribute, and supplied fields are never overwritten.
func (p *ConditionProcessor) mergeWithRecent(tx repository.Tx, riverID, source string, flowRate, gaugeHeight, waterTemp *float64) (*float64, *float64, *float64, error) {
	currentPriority := p.priorities[source]
	cutoff := p.now().Add(-mergeWindow)

	recent, err := tx.RecentConditions(riverID, cutoff, mergeWindowLimit)
	if err != nil {
		return nil, nil, nil, err
	}

	// recent is newest-first, so the first higher-authority value wins.
	for _, cond := range recent {
		if p.priorities[cond.Source] <= currentPriority {
			continue
		}
		if flowRate == nil && cond.FlowRate != nil {
			flowRate = cond.FlowRate
		}
		if gaugeHeight == nil && cond.GaugeHeight != nil {
			gaugeHeight = cond.GaugeHeight
		}
		if waterTemp == nil && cond.WaterTemp != nil {
			waterTemp = cond.WaterTemp
		}
	}

	return flowRate, gaugeHeight, waterTemp, nil
}

// recordFailure writes the error scrape log in its own transaction, after
// the batch transaction has been rolled back.
func (p *ConditionProcessor) recordFailure(ctx context.Context, source string, startedAt time.Time, cause error) {
	err := p.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.InsertScrapeLog(entities.ScrapeLog{
			ID:         uuid.NewString(),
			Source:     source,
			Status:     "error",
			Error:      cause.Error(),
			StartedAt:  startedAt,
			FinishedAt: p.now(),
		})
	})
	if err != nil {
		p.log.Error().Err(err).Str("source", source).Msg("failed to record error scrape log")
	}
}

// factFlowRange extracts the per-river recommended range from a fact. Both
// bounds must be present for the range to apply.
func factFlowRange(fact entities.Fact) *FlowRange {
	raw, ok := fact.Attributes["flow_range"].(map[string]any)
	if !ok {
		return nil
	}
	min, okMin := toFloat(raw["min"])
	max, okMax := toFloat(raw["max"])
	if !okMin || !okMax {
		return nil
	}
	return &FlowRange{Min: min, Max: max}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// rawPayload serializes the fact's raw source payload for the audit column.
func rawPayload(fact entities.Fact) string {
	raw, ok := fact.Attributes["raw"]
	if !ok || raw == nil {
		return ""
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(data)
}
