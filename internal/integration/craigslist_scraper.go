package integration

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/rs/zerolog"
)

// raftKeywords gate relevance: a listing must mention at least one to be kept.
var raftKeywords = []string{
	"raft", "rafting", "kayak", "canoe", "paddle", "oar",
	"pfd", "life jacket", "life vest",
	"drysuit", "dry suit", "wetsuit", "wet suit",
	"throw bag", "river", "whitewater", "white water", "inflatable boat",
	"nrs", "aire", "hyside", "maravia", "sotar",
}

// categoryMap classifies listings by the first matching keyword. Order
// matters for overlapping terms, so entries are checked as listed.
var categoryMap = []struct {
	keyword  string
	category string
}{
	{"raft", "raft"},
	{"rafting", "raft"},
	{"inflatable boat", "raft"},
	{"kayak", "kayak"},
	{"canoe", "kayak"},
	{"paddle", "paddle"},
	{"oar", "paddle"},
	{"pfd", "pfd"},
	{"life jacket", "pfd"},
	{"life vest", "pfd"},
	{"drysuit", "drysuit"},
	{"dry suit", "drysuit"},
	{"wetsuit", "drysuit"},
	{"wet suit", "drysuit"},
}

// Craigslist search categories: sporting goods and boats.
var craigslistCategories = []string{"sga", "boa"}

// Compound queries reduce the request count per region.
var searchGroups = []string{
	"raft OR kayak OR canoe OR whitewater",
	"paddle OR oar OR PFD OR life jacket",
	"drysuit OR wetsuit OR NRS OR throw bag",
	"AIRE OR Hyside OR Maravia OR SOTAR",
}

// Rotated to avoid basic bot detection.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
}

var priceFromText = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{2})?)`)

// CraigslistScraper monitors Craigslist search results for rafting gear
// listings across the configured regions. Listings are filtered for
// relevance, classified by gear category, and deduplicated within a run;
// cross-run dedup against the database is the matcher's job.
type CraigslistScraper struct {
	regions  []string
	client   *http.Client
	log      zerolog.Logger
	hostFor  func(region string) string
	seenURLs map[string]bool
}

// NewCraigslistScraper creates a Craigslist gear scraper for the given
// region subdomains (e.g. "seattle", "portland").
func NewCraigslistScraper(regions []string, timeout time.Duration, log zerolog.Logger) *CraigslistScraper {
	return &CraigslistScraper{
		regions: regions,
		client:  newHTTPClient(timeout),
		log:     log.With().Str("scraper", "craigslist").Logger(),
		hostFor: func(region string) string {
			return "https://" + region + ".craigslist.org"
		},
	}
}

// Name identifies the source in deals and scrape logs.
func (s *CraigslistScraper) Name() string { return "craigslist" }

// Scrape walks every region, category, and query group and returns one fact
// per relevant listing. Individual request failures are logged and skipped.
func (s *CraigslistScraper) Scrape(ctx context.Context) ([]entities.Fact, error) {
	s.seenURLs = make(map[string]bool)
	var facts []entities.Fact

	for _, region := range s.regions {
		s.log.Info().Str("region", region).Msg("scanning Craigslist")
		count := 0
		for _, category := range craigslistCategories {
			for _, query := range searchGroups {
				listings, err := s.searchPage(ctx, region, category, query)
				if err != nil {
					s.log.Warn().Err(err).Str("region", region).Str("category", category).
						Msg("search request failed, skipping")
					continue
				}
				for _, fact := range listings {
					title := fact.String("title")
					if !isRelevantListing(title, fact.String("description")) {
						continue
					}
					facts = append(facts, fact)
					count++
				}
			}
		}
		s.log.Info().Str("region", region).Int("listings", count).Msg("region scan complete")
	}

	s.log.Info().Int("listings", len(facts)).Msg("Craigslist scrape complete")
	return facts, nil
}

// searchPage fetches and parses one search results page.
func (s *CraigslistScraper) searchPage(ctx context.Context, region, category, query string) ([]entities.Fact, error) {
	searchURL := fmt.Sprintf("%s/search/%s?query=%s", s.hostFor(region), category, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %v", err)
	}
	req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search page: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("blocked by Craigslist for %s/%s", region, category)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %v", err)
	}

	scrapedAt := time.Now().UTC()
	var facts []entities.Fact

	// Modern and legacy result row layouts.
	doc.Find("li.cl-static-search-result, li.result-row").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a").First()
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = s.hostFor(region) + href
		}
		if s.seenURLs[href] {
			return
		}
		s.seenURLs[href] = true

		title := strings.TrimSpace(row.Find("div.title, a.result-title").First().Text())
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}

		attrs := map[string]any{
			"url":      href,
			"title":    title,
			"category": categorizeListing(title, ""),
			"region":   region,
		}
		priceText := row.Find("div.price, span.priceinfo, span.result-price").First().Text()
		if price := extractPrice(priceText); price != nil {
			attrs["price"] = *price
		}

		facts = append(facts, entities.Fact{
			Source:     "craigslist",
			SourceURL:  href,
			Attributes: attrs,
			ScrapedAt:  scrapedAt,
		})
	})

	return facts, nil
}

func isRelevantListing(title, description string) bool {
	text := strings.ToLower(title + " " + description)
	for _, kw := range raftKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func categorizeListing(title, description string) string {
	text := strings.ToLower(title + " " + description)
	for _, entry := range categoryMap {
		if strings.Contains(text, entry.keyword) {
			return entry.category
		}
	}
	return "other"
}

// extractPrice pulls a dollar amount out of text like "$1,200".
func extractPrice(text string) *float64 {
	match := priceFromText.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	return &price
}
