package usecases

import (
	"context"
	"strings"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NotificationThreshold is the minimum score a match needs before it is
// surfaced for dispatch. Lower-scoring matches are still persisted for
// auditing.
const NotificationThreshold = 50

// Scoring policy. Every "absent means broad match" rule is a named constant
// so the table can be audited in one place.
const (
	categoryMatchPoints  = 30 // listing category in the filter's category set
	categoryBroadPoints  = 15 // filter has no category set at all
	keywordHitPoints     = 10 // per distinct keyword found in title+description
	keywordHitCap        = 40
	keywordBroadPoints   = 20 // filter has no keywords
	priceUnderMaxPoints  = 20 // listing priced at or under the filter's max
	priceSavingsBonusCap = 10 // extra, proportional to savings below the max
	priceListedPoints    = 10 // listing has a price but the filter has no max
	regionMatchPoints    = 10 // listing region in the filter's region set
	regionBroadPoints    = 5  // filter has no region set
	maxScore             = 100
)

// DealMatcher saves new gear deals and scores them against every active
// user filter.
type DealMatcher struct {
	store repository.Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewDealMatcher creates a matcher.
func NewDealMatcher(store repository.Store, log zerolog.Logger) *DealMatcher {
	return &DealMatcher{
		store: store,
		now:   time.Now,
		log:   log.With().Str("component", "deal_matcher").Logger(),
	}
}

// Match persists new deals from the facts, scores each against all active
// filters, records every positive score, and returns only the matches at or
// above the notification threshold. Like Process, it runs in one transaction
// and degrades to an empty result on batch failure.
func (m *DealMatcher) Match(ctx context.Context, facts []entities.Fact) []entities.DealMatch {
	startedAt := m.now()
	var newMatches []entities.DealMatch
	dealsSaved := 0

	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		filters, err := tx.ActiveDealFilters()
		if err != nil {
			return err
		}
		if len(filters) == 0 {
			m.log.Info().Msg("no active deal filters, skipping matching")
			return m.logRun(tx, startedAt, 0)
		}

		m.log.Info().Int("deals", len(facts)).Int("filters", len(filters)).Msg("matching deals against filters")

		for _, fact := range facts {
			deal, ok := dealFromFact(fact)
			if !ok {
				continue
			}

			// Dedup by URL: a listing seen before is never re-scored.
			existing, err := tx.DealByURL(deal.URL)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}

			deal.ID = uuid.NewString()
			if err := tx.InsertDeal(deal); err != nil {
				return err
			}
			dealsSaved++

			for _, filter := range filters {
				score := ScoreMatch(deal, filter)
				if score <= 0 {
					continue
				}
				if err := tx.InsertDealFilterMatch(entities.DealFilterMatch{
					ID:       uuid.NewString(),
					FilterID: filter.ID,
					DealID:   deal.ID,
					Score:    score,
				}); err != nil {
					return err
				}
				if score >= NotificationThreshold {
					newMatches = append(newMatches, entities.DealMatch{
						FilterID:     filter.ID,
						FilterName:   filter.Name,
						UserID:       filter.UserID,
						DealID:       deal.ID,
						DealTitle:    deal.Title,
						DealPrice:    deal.Price,
						DealURL:      deal.URL,
						DealCategory: deal.Category,
						DealRegion:   deal.Region,
						Score:        score,
					})
				}
			}
		}

		return m.logRun(tx, startedAt, dealsSaved)
	})
	if err != nil {
		m.log.Error().Err(err).Msg("deal matching failed, batch rolled back")
		m.recordFailure(ctx, startedAt, err)
		return nil
	}

	m.log.Info().Int("saved", dealsSaved).Int("notifiable", len(newMatches)).Msg("deal matching complete")
	return newMatches
}

func (m *DealMatcher) logRun(tx repository.Tx, startedAt time.Time, saved int) error {
	finishedAt := m.now()
	return tx.InsertScrapeLog(entities.ScrapeLog{
		ID:         uuid.NewString(),
		Source:     "deal_matcher",
		Status:     "success",
		ItemCount:  saved,
		DurationMS: finishedAt.Sub(startedAt).Milliseconds(),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	})
}

func (m *DealMatcher) recordFailure(ctx context.Context, startedAt time.Time, cause error) {
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.InsertScrapeLog(entities.ScrapeLog{
			ID:         uuid.NewString(),
			Source:     "deal_matcher",
			Status:     "error",
			Error:      cause.Error(),
			StartedAt:  startedAt,
			FinishedAt: m.now(),
		})
	})
	if err != nil {
		m.log.Error().Err(err).Msg("failed to record error scrape log")
	}
}

// dealFromFact builds a GearDeal from a scraped listing fact. A fact without
// a URL is malformed and skipped.
func dealFromFact(fact entities.Fact) (entities.GearDeal, bool) {
	url := fact.String("url")
	if url == "" {
		return entities.GearDeal{}, false
	}
	deal := entities.GearDeal{
		Title:       fact.String("title"),
		Price:       fact.Float("price"),
		URL:         url,
		ImageURL:    fact.String("image_url"),
		Description: fact.String("description"),
		Category:    fact.String("category"),
		Region:      fact.String("region"),
		ScrapedAt:   fact.ScrapedAt,
	}
	if at, ok := fact.Attributes["posted_at"].(time.Time); ok {
		deal.PostedAt = &at
	}
	return deal, true
}

// ScoreMatch scores how well a deal matches a filter on a 0-100 scale.
// Hard disqualifiers (over max price, region outside the allow-set, no
// keyword hit against a non-empty keyword set) force the score to zero
// regardless of any other credit.
func ScoreMatch(deal entities.GearDeal, filter entities.DealFilter) int {
	text := strings.ToLower(deal.Title + " " + deal.Description)

	// --- Hard disqualifiers ---

	if filter.MaxPrice != nil && deal.Price != nil && *deal.Price > *filter.MaxPrice {
		return 0
	}
	if len(filter.Regions) > 0 && deal.Region != "" && !contains(filter.Regions, deal.Region) {
		return 0
	}
	keywordHits := 0
	for _, kw := range filter.Keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			keywordHits++
		}
	}
	if len(filter.Keywords) > 0 && keywordHits == 0 {
		return 0
	}

	score := 0

	// --- Category ---
	if len(filter.Categories) > 0 {
		if deal.Category != "" && contains(filter.Categories, deal.Category) {
			score += categoryMatchPoints
		}
		// Category mismatch earns nothing but does not disqualify.
	} else {
		score += categoryBroadPoints
	}

	// --- Keywords ---
	if len(filter.Keywords) > 0 {
		points := keywordHits * keywordHitPoints
		if points > keywordHitCap {
			points = keywordHitCap
		}
		score += points
	} else {
		score += keywordBroadPoints
	}

	// --- Price ---
	if filter.MaxPrice != nil && deal.Price != nil {
		score += priceUnderMaxPoints
		// A zero max (free-only filter) earns no savings bonus; the
		// division would be undefined.
		if *filter.MaxPrice > 0 {
			savingsPct := (*filter.MaxPrice - *deal.Price) / *filter.MaxPrice
			bonus := int(savingsPct * 10)
			if bonus > priceSavingsBonusCap {
				bonus = priceSavingsBonusCap
			}
			score += bonus
		}
	} else if deal.Price != nil {
		score += priceListedPoints
	}

	// --- Region ---
	if len(filter.Regions) > 0 && deal.Region != "" && contains(filter.Regions, deal.Region) {
		score += regionMatchPoints
	} else if len(filter.Regions) == 0 {
		score += regionBroadPoints
	}

	if score > maxScore {
		score = maxScore
	}
	if score < 0 {
		score = 0
	}
	return score
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
