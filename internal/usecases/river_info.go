package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/integration/openai"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/rs/zerolog"
)

// RiverInfo answers read-only river questions for the bot.
type RiverInfo struct {
	store         repository.Store
	openAIService openai.OpenAIService
	log           zerolog.Logger
}

// NewRiverInfo creates a river info use case. The OpenAI service may be nil;
// natural-language queries then fall back to a canned reply.
func NewRiverInfo(store repository.Store, openAIService openai.OpenAIService, log zerolog.Logger) *RiverInfo {
	return &RiverInfo{
		store:         store,
		openAIService: openAIService,
		log:           log.With().Str("component", "river_info").Logger(),
	}
}

// AvailableRivers returns the names of all tracked rivers.
func (uc *RiverInfo) AvailableRivers(ctx context.Context) ([]string, error) {
	rivers, err := uc.store.ListRivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rivers: %v", err)
	}
	names := make([]string, 0, len(rivers))
	for _, river := range rivers {
		names = append(names, river.Name)
	}
	return names, nil
}

// RiverStatus returns a river and its latest recorded condition. The
// condition is nil when nothing has been scraped yet, and the river is nil
// when the name is unknown.
func (uc *RiverInfo) RiverStatus(ctx context.Context, name string) (*entities.River, *entities.RiverCondition, error) {
	var river *entities.River
	var condition *entities.RiverCondition
	err := uc.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		river, err = tx.RiverByName(name)
		if err != nil || river == nil {
			return err
		}
		condition, err = tx.LatestCondition(river.ID)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch river status: %v", err)
	}
	return river, condition, nil
}

// HandleNaturalLanguageQuery interprets a user's free-text query using the AI
// service and returns an appropriate response string.
func (uc *RiverInfo) HandleNaturalLanguageQuery(ctx context.Context, query string) (string, error) {
	if uc.openAIService == nil {
		return "I only understand commands right now. Use /help to see them.", nil
	}

	rivers, err := uc.AvailableRivers(ctx)
	if err != nil {
		uc.log.Error().Err(err).Msg("failed to fetch available rivers")
		return "Sorry, I couldn't fetch the list of rivers right now.", nil
	}

	agentResp, err := uc.openAIService.InterpretUserQuery(ctx, query, rivers)
	if err != nil {
		uc.log.Error().Err(err).Msg("failed to interpret user query")
		return "Sorry, I'm having trouble understanding right now. Please try again later or use /help.", nil
	}

	uc.log.Debug().Str("command", agentResp.CommandName).Str("river", agentResp.RiverName).
		Msg("agent response")

	switch agentResp.CommandName {
	case "GetRiverStatusByName":
		if agentResp.RiverName == "" {
			return agentResp.UserMessage, nil
		}
		river, condition, err := uc.RiverStatus(ctx, agentResp.RiverName)
		if err != nil {
			uc.log.Error().Err(err).Str("river", agentResp.RiverName).Msg("failed to fetch river status")
			return "Sorry, I couldn't fetch the data for that river right now.", nil
		}
		msg := agentResp.UserMessage
		if msg != "" {
			msg += "\n\n"
		}
		if river == nil {
			return msg + fmt.Sprintf("I couldn't find a river named '%s'. Use /rivers to see the tracked ones.", agentResp.RiverName), nil
		}
		return msg + FormatRiverStatus(*river, condition), nil
	case "GeneralQuery":
		return agentResp.UserMessage, nil
	default:
		uc.log.Warn().Str("command", agentResp.CommandName).Msg("unexpected agent command")
		return "I'm not sure how to respond to that. You can use /help for commands.", nil
	}
}

// FormatRiverStatus formats a river's latest condition for display.
func FormatRiverStatus(river entities.River, condition *entities.RiverCondition) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("🏞️ %s", river.Name))
	if river.Difficulty != "" {
		result.WriteString(fmt.Sprintf(" (%s)", river.Difficulty))
	}
	result.WriteString("\n")
	if river.State != "" {
		result.WriteString(fmt.Sprintf("📍 %s\n", river.State))
	}

	if condition == nil {
		result.WriteString("\nNo readings recorded yet.")
		return result.String()
	}

	result.WriteString("\n")
	if condition.FlowRate != nil {
		result.WriteString(fmt.Sprintf("💧 Flow: %.0f cfs\n", *condition.FlowRate))
	}
	if condition.GaugeHeight != nil {
		result.WriteString(fmt.Sprintf("📏 Gauge height: %.2f ft\n", *condition.GaugeHeight))
	}
	if condition.WaterTemp != nil {
		result.WriteString(fmt.Sprintf("🌡️ Water temperature: %.1f °F\n", *condition.WaterTemp))
	}
	if condition.Quality != "" {
		result.WriteString(fmt.Sprintf("⭐ Quality: %s (%s)\n", condition.Quality, condition.Runnability))
	}
	result.WriteString(fmt.Sprintf("🕒 Last update: %s (%s)", condition.ScrapedAt.Format("2006-01-02 15:04 MST"), condition.Source))

	return result.String()
}
