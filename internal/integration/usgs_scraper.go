package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/rs/zerolog"
)

// USGS instantaneous-values parameter codes.
const (
	usgsParamDischarge   = "00060" // CFS
	usgsParamGaugeHeight = "00065" // feet
	usgsParamWaterTemp   = "00010" // °C
)

// USGSScraper fetches real-time streamflow readings from the USGS Water
// Services instantaneous-values API for every tracked river with a gauge ID.
// API docs: https://waterservices.usgs.gov/rest/IV-Service.html
type USGSScraper struct {
	baseURL string
	rivers  RiverSource
	client  *http.Client
	log     zerolog.Logger
}

// NewUSGSScraper creates a USGS scraper.
func NewUSGSScraper(baseURL string, rivers RiverSource, timeout time.Duration, log zerolog.Logger) *USGSScraper {
	if baseURL == "" {
		baseURL = "https://waterservices.usgs.gov/nwis"
	}
	return &USGSScraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		rivers:  rivers,
		client:  newHTTPClient(timeout),
		log:     log.With().Str("scraper", "usgs").Logger(),
	}
}

// Name identifies the source in conditions and scrape logs.
func (s *USGSScraper) Name() string { return "usgs" }

// usgsResponse mirrors the slice of the USGS JSON schema we read.
type usgsResponse struct {
	Value struct {
		TimeSeries []struct {
			SourceInfo struct {
				SiteCode []struct {
					Value string `json:"value"`
				} `json:"siteCode"`
			} `json:"sourceInfo"`
			Variable struct {
				VariableCode []struct {
					Value string `json:"value"`
				} `json:"variableCode"`
			} `json:"variable"`
			Values []struct {
				Value []struct {
					Value    string `json:"value"`
					DateTime string `json:"dateTime"`
				} `json:"value"`
			} `json:"values"`
		} `json:"timeSeries"`
	} `json:"value"`
}

// Scrape requests all tracked gauges in one call (the API accepts
// comma-separated site IDs) and returns one fact per site.
func (s *USGSScraper) Scrape(ctx context.Context) ([]entities.Fact, error) {
	rivers, err := s.rivers.RiversWithUSGSGauge(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked gauges: %v", err)
	}
	if len(rivers) == 0 {
		s.log.Info().Msg("no USGS gauge IDs configured, skipping")
		return nil, nil
	}

	gaugeIDs := make([]string, 0, len(rivers))
	for _, river := range rivers {
		gaugeIDs = append(gaugeIDs, river.USGSGaugeID)
	}

	url := fmt.Sprintf("%s/iv/?format=json&sites=%s&parameterCd=%s,%s,%s&siteStatus=active",
		s.baseURL, strings.Join(gaugeIDs, ","),
		usgsParamDischarge, usgsParamGaugeHeight, usgsParamWaterTemp)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build USGS request: %v", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch USGS data: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected USGS status code: %d", resp.StatusCode)
	}

	var payload usgsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse USGS response: %v", err)
	}

	scrapedAt := time.Now().UTC()
	readings := map[string]map[string]float64{}
	siteOrder := []string{}

	for _, series := range payload.Value.TimeSeries {
		if len(series.SourceInfo.SiteCode) == 0 || len(series.Variable.VariableCode) == 0 {
			continue
		}
		siteCode := series.SourceInfo.SiteCode[0].Value
		paramCode := series.Variable.VariableCode[0].Value
		if len(series.Values) == 0 || len(series.Values[0].Value) == 0 {
			continue
		}
		latest := series.Values[0].Value[len(series.Values[0].Value)-1]
		value, err := strconv.ParseFloat(latest.Value, 64)
		if err != nil {
			s.log.Warn().Str("site", siteCode).Str("param", paramCode).
				Str("value", latest.Value).Msg("non-numeric gauge value, skipping")
			continue
		}
		if _, ok := readings[siteCode]; !ok {
			readings[siteCode] = map[string]float64{}
			siteOrder = append(siteOrder, siteCode)
		}
		readings[siteCode][paramCode] = value
	}

	facts := make([]entities.Fact, 0, len(siteOrder))
	for _, siteCode := range siteOrder {
		site := readings[siteCode]
		attrs := map[string]any{
			"usgs_gauge_id": siteCode,
			"raw":           site,
		}
		if flow, ok := site[usgsParamDischarge]; ok {
			attrs["flow_rate"] = flow
		}
		if height, ok := site[usgsParamGaugeHeight]; ok {
			attrs["gauge_height"] = height
		}
		if tempC, ok := site[usgsParamWaterTemp]; ok {
			attrs["water_temp"] = tempC*9/5 + 32
		}
		facts = append(facts, entities.Fact{
			Source:     "usgs",
			SourceURL:  "https://waterdata.usgs.gov/nwis/uv?site_no=" + siteCode,
			Attributes: attrs,
			ScrapedAt:  scrapedAt,
		})
	}

	s.log.Info().Int("sites", len(facts)).Msg("USGS scrape complete")
	return facts, nil
}
