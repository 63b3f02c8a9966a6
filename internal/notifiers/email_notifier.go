package notifiers

import (
	"context"
	"fmt"
	"strings"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/rs/zerolog"
)

// EmailSender delivers one email. The production implementation wraps the
// Resend API.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// EmailNotifier mirrors the push dispatcher for users who opted into email
// delivery. Only users with a saved preference of "email" or "both" receive
// mail; the default preference is push-only.
type EmailNotifier struct {
	store  repository.Store
	sender EmailSender
	log    zerolog.Logger
}

// NewEmailNotifier creates an email dispatcher. A nil sender (RESEND_API_KEY
// not configured) disables it.
func NewEmailNotifier(store repository.Store, sender EmailSender, log zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		store:  store,
		sender: sender,
		log:    log.With().Str("component", "email_notifier").Logger(),
	}
}

// NotifyDealMatches emails each opted-in user a digest of their new matches
// and marks the matched rows notified. Returns the number of emails sent.
func (n *EmailNotifier) NotifyDealMatches(ctx context.Context, matches []entities.DealMatch) int {
	if n.sender == nil {
		n.log.Debug().Msg("email sender not configured, skipping email notifications")
		return 0
	}
	if len(matches) == 0 {
		return 0
	}

	sent := 0
	err := n.store.WithTx(ctx, func(tx repository.Tx) error {
		userOrder, userMatches := groupMatchesByUser(matches)

		for _, userID := range userOrder {
			user, err := n.emailRecipient(tx, userID, alertKindDeal)
			if err != nil {
				return err
			}
			if user == nil {
				continue
			}

			subject := fmt.Sprintf("🛶 %d new gear deal(s) match your filters", len(userMatches[userID]))
			if err := n.sender.Send(ctx, user.Email, subject, dealAlertHTML(userMatches[userID])); err != nil {
				n.log.Warn().Err(err).Str("user_id", userID).Msg("deal alert email failed")
				continue
			}
			sent++

			for _, match := range userMatches[userID] {
				if err := tx.MarkMatchNotified(match.FilterID, match.DealID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		n.log.Error().Err(err).Msg("deal email dispatch failed, rolled back")
		return sent
	}
	return sent
}

// NotifyConditionChange emails every opted-in tracker of the river.
func (n *EmailNotifier) NotifyConditionChange(ctx context.Context, riverID, riverName, oldQuality, newQuality string) int {
	if n.sender == nil {
		n.log.Debug().Msg("email sender not configured, skipping email notifications")
		return 0
	}

	sent := 0
	err := n.store.WithTx(ctx, func(tx repository.Tx) error {
		trackers, err := tx.RiverTrackers(riverID)
		if err != nil {
			return err
		}
		subject := fmt.Sprintf("%s conditions changed: %s → %s", riverName, oldQuality, newQuality)
		html := conditionAlertHTML(riverName, oldQuality, newQuality)

		for _, tracker := range trackers {
			user, err := n.emailRecipient(tx, tracker.UserID, alertKindCondition)
			if err != nil {
				return err
			}
			if user == nil {
				continue
			}
			if err := n.sender.Send(ctx, user.Email, subject, html); err != nil {
				n.log.Warn().Err(err).Str("user_id", tracker.UserID).Msg("condition alert email failed")
				continue
			}
			sent++
		}
		return nil
	})
	if err != nil {
		n.log.Error().Err(err).Str("river_id", riverID).Msg("condition email dispatch failed, rolled back")
		return sent
	}
	return sent
}

// RiverSummary is one row of the weekly digest email.
type RiverSummary struct {
	Name        string
	Quality     string
	Runnability string
	FlowRate    *float64
	HazardCount int
}

// NotifyWeeklyDigest emails the user a summary of their tracked rivers.
// The digest is opt-in via the weekly_digest preference flag and requires
// the email channel; an empty summary sends nothing. Returns 1 when sent.
func (n *EmailNotifier) NotifyWeeklyDigest(ctx context.Context, userID string, rivers []RiverSummary) int {
	if n.sender == nil {
		n.log.Debug().Msg("email sender not configured, skipping weekly digest")
		return 0
	}
	if len(rivers) == 0 {
		return 0
	}

	sent := 0
	err := n.store.WithTx(ctx, func(tx repository.Tx) error {
		pref, err := tx.PreferenceForUser(userID)
		if err != nil {
			return err
		}
		if pref == nil || !pref.WeeklyDigest {
			return nil
		}
		if pref.Channel != entities.ChannelEmail && pref.Channel != entities.ChannelBoth {
			return nil
		}
		user, err := tx.UserByID(userID)
		if err != nil {
			return err
		}
		if user == nil || user.Email == "" {
			return nil
		}
		if err := n.sender.Send(ctx, user.Email, "🏞️ Water-Watcher Weekly Digest", weeklyDigestHTML(rivers)); err != nil {
			n.log.Warn().Err(err).Str("user_id", userID).Msg("weekly digest email failed")
			return nil
		}
		sent = 1
		return nil
	})
	if err != nil {
		n.log.Error().Err(err).Str("user_id", userID).Msg("weekly digest dispatch failed")
	}
	return sent
}

// emailRecipient returns the user when they opted into email for this alert
// kind and have an address on file, nil otherwise.
func (n *EmailNotifier) emailRecipient(tx repository.Tx, userID, kind string) (*entities.User, error) {
	pref, err := tx.PreferenceForUser(userID)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		return nil, nil // default preference is push-only
	}
	if pref.Channel != entities.ChannelEmail && pref.Channel != entities.ChannelBoth {
		return nil, nil
	}
	if !alertKindEnabled(*pref, kind) {
		return nil, nil
	}
	user, err := tx.UserByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Email == "" {
		return nil, nil
	}
	return user, nil
}

func dealAlertHTML(deals []entities.DealMatch) string {
	var b strings.Builder
	b.WriteString("<h2>New gear deals matched your filters</h2><ul>")
	for _, deal := range deals {
		b.WriteString("<li><a href=\"" + deal.DealURL + "\">" + deal.DealTitle + "</a>")
		if deal.DealPrice != nil {
			fmt.Fprintf(&b, " — <strong>$%.0f</strong>", *deal.DealPrice)
		}
		fmt.Fprintf(&b, " (matched %q, score %d)</li>", deal.FilterName, deal.Score)
	}
	b.WriteString("</ul>")
	return wrapHTML(b.String())
}

func weeklyDigestHTML(rivers []RiverSummary) string {
	var b strings.Builder
	b.WriteString("<h2>Your weekly river summary</h2>")
	b.WriteString("<table><tr><th>River</th><th>Quality</th><th>Flow</th><th>Runnability</th><th>Hazards</th></tr>")
	for _, r := range rivers {
		flow := "n/a"
		if r.FlowRate != nil {
			flow = fmt.Sprintf("%.0f CFS", *r.FlowRate)
		}
		hazards := "none"
		if r.HazardCount > 0 {
			hazards = fmt.Sprintf("⚠️ %d", r.HazardCount)
		}
		fmt.Fprintf(&b, "<tr><td><strong>%s</strong></td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>",
			r.Name, r.Quality, flow, r.Runnability, hazards)
	}
	b.WriteString("</table>")
	return wrapHTML(b.String())
}

func conditionAlertHTML(riverName, oldQuality, newQuality string) string {
	return wrapHTML(fmt.Sprintf(
		"<h2>%s</h2><p>Quality went from <strong>%s</strong> to <strong>%s</strong>.</p>",
		riverName, oldQuality, newQuality))
}

func wrapHTML(body string) string {
	return "<!DOCTYPE html><html><body style=\"font-family:sans-serif\">" +
		"<h1>🏞️ Water-Watcher</h1>" + body +
		"<p style=\"color:#64748b;font-size:12px\">You're receiving this because of your notification preferences.</p>" +
		"</body></html>"
}
