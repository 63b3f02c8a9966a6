package notifiers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// pushPayload is the small JSON document handed to the push service.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Tag   string `json:"tag"`
}

func (p pushPayload) encode() []byte {
	data, _ := json.Marshal(p)
	return data
}

// qualityOrder ranks quality labels from worst to best, used to decide
// whether a condition change is an improvement.
var qualityOrder = []string{"dangerous", "poor", "fair", "good", "excellent"}

func qualityRank(quality string) int {
	for i, q := range qualityOrder {
		if q == quality {
			return i
		}
	}
	return -1
}

// buildDealPayload builds one payload covering all of a user's new matches.
func buildDealPayload(deals []entities.DealMatch) []byte {
	if len(deals) == 1 {
		deal := deals[0]
		body := deal.DealTitle
		if deal.DealPrice != nil {
			body += fmt.Sprintf(" — $%.0f", *deal.DealPrice)
		}
		url := deal.DealURL
		if url == "" {
			url = "/deals"
		}
		return pushPayload{
			Title: "🛶 Raft Watch Deal!",
			Body:  body,
			URL:   url,
			Tag:   "raft-watch",
		}.encode()
	}

	titles := make([]string, 0, 3)
	for i, deal := range deals {
		if i >= 3 {
			break
		}
		titles = append(titles, truncate(deal.DealTitle, 30))
	}
	body := strings.Join(titles, ", ")
	if len(deals) > 3 {
		body += fmt.Sprintf(" +%d more", len(deals)-3)
	}
	return pushPayload{
		Title: fmt.Sprintf("🛶 %d New Raft Watch Deals!", len(deals)),
		Body:  body,
		URL:   "/deals",
		Tag:   "raft-watch",
	}.encode()
}

// buildConditionPayload describes a quality transition, coloring the alert
// by whether conditions improved or turned dangerous.
func buildConditionPayload(riverID, riverName, oldQuality, newQuality string) []byte {
	var emoji, direction string
	switch {
	case qualityRank(newQuality) > qualityRank(oldQuality):
		emoji, direction = "🟢", "Improved"
	case newQuality == "dangerous":
		emoji, direction = "🔴", "Deteriorated"
	default:
		emoji, direction = "🟡", "Changed"
	}

	return pushPayload{
		Title: fmt.Sprintf("%s %s Conditions %s", emoji, riverName, direction),
		Body:  fmt.Sprintf("Quality went from %s to %s", oldQuality, newQuality),
		URL:   "/rivers/" + riverID,
		Tag:   "river-" + riverID,
	}.encode()
}

// buildHazardPayload describes a newly reported hazard.
func buildHazardPayload(riverID, riverName, hazardTitle, severity string) []byte {
	emoji := "⚠️"
	switch severity {
	case "danger":
		emoji = "🔴"
	case "info":
		emoji = "ℹ️"
	}

	return pushPayload{
		Title: fmt.Sprintf("%s Hazard Alert: %s", emoji, riverName),
		Body:  hazardTitle,
		URL:   "/rivers/" + riverID,
		Tag:   "hazard-" + riverID,
	}.encode()
}
