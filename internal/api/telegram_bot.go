// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/abelzeko/water-watcher/internal/usecases"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot  *tgbotapi.BotAPI
	info *usecases.RiverInfo
	log  zerolog.Logger
}

// NewTelegramBot creates a new Telegram bot handler
func NewTelegramBot(botToken string, info *usecases.RiverInfo, log zerolog.Logger) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %v", err)
	}

	return &TelegramBot{
		bot:  bot,
		info: info,
		log:  log.With().Str("component", "telegram_bot").Logger(),
	}, nil
}

// Start begins listening for and handling Telegram messages. It blocks until
// the context is canceled.
func (t *TelegramBot) Start(ctx context.Context) {
	t.log.Info().Str("account", t.bot.Self.UserName).Msg("authorized on Telegram")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	t.log.Info().Msg("bot is now listening for messages")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			t.log.Debug().Str("user", update.Message.From.UserName).
				Str("text", update.Message.Text).Msg("received message")
			t.handleMessage(ctx, update)
		}
	}
}

// handleMessage processes a Telegram message update
func (t *TelegramBot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	msg := tgbotapi.NewMessage(update.Message.Chat.ID, "")

	if update.Message.IsCommand() {
		t.handleCommand(ctx, update.Message, &msg)
	} else {
		t.handleNonCommand(ctx, update.Message, &msg)
	}

	if _, err := t.bot.Send(msg); err != nil {
		t.log.Error().Err(err).Str("user", update.Message.From.UserName).Msg("failed to send message")
	}
}

// handleCommand processes commands like /start, /help, etc.
func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message, msg *tgbotapi.MessageConfig) {
	switch message.Command() {
	case "start":
		msg.Text = "Welcome to Water-Watcher! Use /rivers to see the tracked rivers or /help for more information."

	case "help":
		msg.Text = "Available commands:\n" +
			"/start - Start the bot\n" +
			"/rivers - Show the list of tracked rivers\n" +
			"/river [name] - Show the latest conditions for a river\n" +
			"/help - Show this help message"

	case "rivers":
		t.handleRiversCommand(ctx, msg)

	case "river":
		t.handleRiverCommand(ctx, message.CommandArguments(), msg)

	default:
		t.log.Debug().Str("command", message.Command()).Msg("unknown command")
		msg.Text = "Unknown command. Use /help to see available commands."
	}
}

// handleRiversCommand processes the /rivers command
func (t *TelegramBot) handleRiversCommand(ctx context.Context, msg *tgbotapi.MessageConfig) {
	rivers, err := t.info.AvailableRivers(ctx)
	if err != nil {
		msg.Text = "Error fetching river data. Please try again later."
		t.log.Error().Err(err).Msg("failed to fetch river list")
		return
	}
	if len(rivers) == 0 {
		msg.Text = "No rivers are tracked yet."
		return
	}

	var b strings.Builder
	b.WriteString("Tracked rivers:\n\n")
	for _, river := range rivers {
		b.WriteString("• " + river + "\n")
	}
	b.WriteString("\nUse /river [name] to get the latest conditions.")
	msg.Text = b.String()
}

// handleRiverCommand processes the /river [name] command
func (t *TelegramBot) handleRiverCommand(ctx context.Context, args string, msg *tgbotapi.MessageConfig) {
	if args == "" {
		msg.Text = "Please specify a river name. Example: /river Deschutes"
		return
	}

	river, condition, err := t.info.RiverStatus(ctx, args)
	if err != nil {
		msg.Text = "Error fetching river data. Please try again later."
		t.log.Error().Err(err).Str("river", args).Msg("failed to fetch river status")
		return
	}
	if river == nil {
		msg.Text = fmt.Sprintf("No river named '%s' is tracked. Use /rivers to see the available ones.", args)
		return
	}

	msg.Text = usecases.FormatRiverStatus(*river, condition)
}

// handleNonCommand routes free-text messages through the AI interpreter.
func (t *TelegramBot) handleNonCommand(ctx context.Context, message *tgbotapi.Message, msg *tgbotapi.MessageConfig) {
	if strings.HasPrefix(message.Text, "/river ") {
		t.handleRiverCommand(ctx, strings.TrimPrefix(message.Text, "/river "), msg)
		return
	}

	response, err := t.info.HandleNaturalLanguageQuery(ctx, message.Text)
	if err != nil {
		t.log.Error().Err(err).Msg("natural language query failed")
		msg.Text = "I don't understand. Use /help to see available commands."
		return
	}
	msg.Text = response
}
