package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/rs/zerolog"
)

// gaugeReadingPattern matches text like "Current Level: 450 cfs" on AW reach
// pages, whose markup varies too much to select structurally.
var gaugeReadingPattern = regexp.MustCompile(`(?i)(?:current|level|reading)[:\s]+([0-9,.]+)\s*(cfs|ft)`)

// AWScraper fetches reach conditions from American Whitewater. AW organizes
// rivers by reach ID; the JSON detail endpoint carries the recommended flow
// range and the HTML page carries the current gauge reading.
type AWScraper struct {
	baseURL string
	rivers  RiverSource
	client  *http.Client
	log     zerolog.Logger
}

// NewAWScraper creates an American Whitewater scraper.
func NewAWScraper(baseURL string, rivers RiverSource, timeout time.Duration, log zerolog.Logger) *AWScraper {
	if baseURL == "" {
		baseURL = "https://www.americanwhitewater.org/content"
	}
	return &AWScraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		rivers:  rivers,
		client:  newHTTPClient(timeout),
		log:     log.With().Str("scraper", "aw").Logger(),
	}
}

// Name identifies the source in conditions and scrape logs.
func (s *AWScraper) Name() string { return "aw" }

// Scrape fetches every tracked reach in turn. A reach that fails to fetch is
// skipped so one broken page does not sink the whole run.
func (s *AWScraper) Scrape(ctx context.Context) ([]entities.Fact, error) {
	rivers, err := s.rivers.RiversWithAWID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked reaches: %v", err)
	}
	if len(rivers) == 0 {
		s.log.Info().Msg("no AW reach IDs configured, skipping")
		return nil, nil
	}

	facts := make([]entities.Fact, 0, len(rivers))
	for _, river := range rivers {
		fact, err := s.scrapeReach(ctx, river.AWID)
		if err != nil {
			s.log.Warn().Err(err).Str("aw_id", river.AWID).Msg("reach scrape failed, skipping")
			continue
		}
		facts = append(facts, fact)
	}

	s.log.Info().Int("reaches", len(facts)).Msg("AW scrape complete")
	return facts, nil
}

func (s *AWScraper) scrapeReach(ctx context.Context, awID string) (entities.Fact, error) {
	detail, err := s.fetchReachDetail(ctx, awID)
	if err != nil {
		return entities.Fact{}, err
	}

	pageURL := fmt.Sprintf("%s/River/detail/id/%s/", s.baseURL, awID)
	attrs := map[string]any{
		"aw_id": awID,
		"raw":   detail,
	}
	if flowRange := extractFlowRange(detail); flowRange != nil {
		attrs["flow_range"] = flowRange
	}

	// The gauge reading lives on the HTML page, not in the JSON.
	if reading, unit, ok := s.fetchGaugeReading(ctx, pageURL); ok && unit == "cfs" {
		attrs["flow_rate"] = reading
	}

	return entities.Fact{
		Source:     "aw",
		SourceURL:  pageURL,
		Attributes: attrs,
		ScrapedAt:  time.Now().UTC(),
	}, nil
}

func (s *AWScraper) fetchReachDetail(ctx context.Context, awID string) (map[string]any, error) {
	url := fmt.Sprintf("%s/River/detail/id/%s/.json", s.baseURL, awID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build reach request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reach %s: %v", awID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d for reach %s", resp.StatusCode, awID)
	}

	var detail map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("failed to parse reach %s detail: %v", awID, err)
	}
	return detail, nil
}

// fetchGaugeReading scrapes the current reading off the reach HTML page.
func (s *AWScraper) fetchGaugeReading(ctx context.Context, pageURL string) (float64, string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return 0, "", false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("url", pageURL).Msg("failed to fetch reach page")
		return 0, "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, "", false
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		s.log.Warn().Err(err).Str("url", pageURL).Msg("failed to parse reach page")
		return 0, "", false
	}

	section := doc.Find("#gauge-container, .gauge-info").First()
	if section.Length() == 0 {
		section = doc.Selection
	}
	match := gaugeReadingPattern.FindStringSubmatch(section.Text())
	if match == nil {
		return 0, "", false
	}
	reading, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil {
		return 0, "", false
	}
	return reading, strings.ToLower(match[2]), true
}

// extractFlowRange digs the recommended range out of AW's reach detail JSON,
// whose nesting varies between responses.
func extractFlowRange(detail map[string]any) map[string]any {
	reach := detail
	if info, ok := detail["info"].(map[string]any); ok {
		reach = info
	} else if view, ok := detail["CContainerViewJSON_view"].(map[string]any); ok {
		reach = view
	}
	if main, ok := reach["CRiverMainGadgetJSON_main"].(map[string]any); ok {
		reach = main
	}
	if river, ok := reach["river"].(map[string]any); ok {
		reach = river
	}

	gauge, ok := reach["gaugeinfo"].(map[string]any)
	if !ok {
		gauge, ok = reach["gauge"].(map[string]any)
	}
	if !ok {
		return nil
	}

	min := parseAWFloat(firstOf(gauge, "minimum", "min"))
	max := parseAWFloat(firstOf(gauge, "maximum", "max"))
	if min == nil && max == nil {
		return nil
	}
	flowRange := map[string]any{}
	if min != nil {
		flowRange["min"] = *min
	}
	if max != nil {
		flowRange["max"] = *max
	}
	return flowRange
}

func firstOf(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// parseAWFloat handles AW's habit of sending numbers as strings with commas.
func parseAWFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		if cleaned == "" {
			return nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}
