// Package notifiers dispatches alerts to user delivery endpoints.
package notifiers

import (
	"context"
	"errors"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
	"github.com/rs/zerolog"
)

// ErrSubscriptionGone marks a delivery failure where the push service
// reported the endpoint as permanently invalid (HTTP 410/404). The
// subscription is deleted; every other failure is transient and the
// subscription is kept.
var ErrSubscriptionGone = errors.New("push subscription gone")

// PushChannel delivers one payload to one subscription. Implementations wrap
// permanent-invalidity responses with ErrSubscriptionGone.
type PushChannel interface {
	Send(ctx context.Context, sub entities.PushSubscription, payload []byte) error
}

// Alert kinds, used against notification preferences.
const (
	alertKindDeal      = "deal"
	alertKindCondition = "condition"
	alertKindHazard    = "hazard"
)

// PushNotifier fans alerts out to every push subscription of the interested
// users, pruning endpoints the push service reports as gone. Each Notify
// call runs its database work in a single transaction; external sends
// already issued before a failure are not undone (at-least-once delivery).
type PushNotifier struct {
	store   repository.Store
	channel PushChannel
	enabled bool
	log     zerolog.Logger
}

// NewPushNotifier creates a push dispatcher. When enabled is false (VAPID
// keys not configured) every Notify call logs a warning and sends nothing.
func NewPushNotifier(store repository.Store, channel PushChannel, enabled bool, log zerolog.Logger) *PushNotifier {
	return &PushNotifier{
		store:   store,
		channel: channel,
		enabled: enabled,
		log:     log.With().Str("component", "push_notifier").Logger(),
	}
}

// NotifyDealMatches sends push notifications for new deal filter matches.
// Matches are grouped per user so each recipient gets one payload covering
// all their deals, then the matched rows are marked notified. Returns the
// number of successful sends.
func (n *PushNotifier) NotifyDealMatches(ctx context.Context, matches []entities.DealMatch) int {
	if !n.enabled {
		n.log.Warn().Msg("VAPID keys not configured, skipping push notifications")
		return 0
	}
	if len(matches) == 0 {
		return 0
	}

	sent := 0
	err := n.store.WithTx(ctx, func(tx repository.Tx) error {
		userOrder, userMatches := groupMatchesByUser(matches)

		for _, userID := range userOrder {
			allowed, err := n.allowsPush(tx, userID, alertKindDeal)
			if err != nil {
				return err
			}
			if !allowed {
				continue
			}

			subs, err := tx.SubscriptionsForUser(userID)
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				continue
			}

			payload := buildDealPayload(userMatches[userID])
			delivered, err := n.sendToSubscriptions(ctx, tx, subs, payload)
			if err != nil {
				return err
			}
			sent += delivered

			for _, match := range userMatches[userID] {
				if err := tx.MarkMatchNotified(match.FilterID, match.DealID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		n.log.Error().Err(err).Msg("deal notification dispatch failed, rolled back")
		return sent
	}

	n.log.Info().Int("sent", sent).Msg("deal notifications dispatched")
	return sent
}

// NotifyConditionChange alerts every user tracking the river with
// notifications enabled. There is no "already notified" flag for condition
// changes; re-delivery on re-invocation is accepted.
func (n *PushNotifier) NotifyConditionChange(ctx context.Context, riverID, riverName, oldQuality, newQuality string) int {
	payload := buildConditionPayload(riverID, riverName, oldQuality, newQuality)
	return n.notifyTrackers(ctx, riverID, alertKindCondition, payload, "condition change")
}

// NotifyHazardAlert alerts every user tracking the river about a newly
// reported hazard.
func (n *PushNotifier) NotifyHazardAlert(ctx context.Context, riverID, riverName, hazardTitle, severity string) int {
	payload := buildHazardPayload(riverID, riverName, hazardTitle, severity)
	return n.notifyTrackers(ctx, riverID, alertKindHazard, payload, "hazard alert")
}

func (n *PushNotifier) notifyTrackers(ctx context.Context, riverID, kind string, payload []byte, what string) int {
	if !n.enabled {
		n.log.Warn().Msg("VAPID keys not configured, skipping push notifications")
		return 0
	}

	sent := 0
	err := n.store.WithTx(ctx, func(tx repository.Tx) error {
		trackers, err := tx.RiverTrackers(riverID)
		if err != nil {
			return err
		}

		for _, tracker := range trackers {
			allowed, err := n.allowsPush(tx, tracker.UserID, kind)
			if err != nil {
				return err
			}
			if !allowed {
				continue
			}

			subs, err := tx.SubscriptionsForUser(tracker.UserID)
			if err != nil {
				return err
			}
			delivered, err := n.sendToSubscriptions(ctx, tx, subs, payload)
			if err != nil {
				return err
			}
			sent += delivered
		}
		return nil
	})
	if err != nil {
		n.log.Error().Err(err).Str("river_id", riverID).Msgf("%s dispatch failed, rolled back", what)
		return sent
	}

	n.log.Info().Str("river_id", riverID).Int("sent", sent).Msgf("%s notifications dispatched", what)
	return sent
}

// sendToSubscriptions attempts one delivery per subscription. Gone endpoints
// are deleted inside the run transaction so they are never sent to again in
// the same run; transient failures are logged and the endpoint kept.
func (n *PushNotifier) sendToSubscriptions(ctx context.Context, tx repository.Tx, subs []entities.PushSubscription, payload []byte) (int, error) {
	sent := 0
	for _, sub := range subs {
		err := n.channel.Send(ctx, sub, payload)
		if err == nil {
			sent++
			continue
		}
		if errors.Is(err, ErrSubscriptionGone) {
			n.log.Info().Str("endpoint", truncate(sub.Endpoint, 60)).Msg("push subscription expired, removing")
			if err := tx.DeleteSubscription(sub.Endpoint); err != nil {
				return sent, err
			}
			continue
		}
		n.log.Warn().Err(err).Str("endpoint", truncate(sub.Endpoint, 60)).Msg("push failed, keeping subscription")
	}
	return sent, nil
}

// allowsPush checks the user's notification preference for the push channel
// and the given alert kind. Users without a saved preference get defaults.
func (n *PushNotifier) allowsPush(tx repository.Tx, userID, kind string) (bool, error) {
	pref, err := tx.PreferenceForUser(userID)
	if err != nil {
		return false, err
	}
	if pref == nil {
		defaultPref := entities.DefaultNotificationPreference(userID)
		pref = &defaultPref
	}
	if pref.Channel != entities.ChannelPush && pref.Channel != entities.ChannelBoth {
		return false, nil
	}
	return alertKindEnabled(*pref, kind), nil
}

func alertKindEnabled(pref entities.NotificationPreference, kind string) bool {
	switch kind {
	case alertKindDeal:
		return pref.DealAlerts
	case alertKindCondition:
		return pref.ConditionAlerts
	case alertKindHazard:
		return pref.HazardAlerts
	}
	return false
}

// groupMatchesByUser buckets matches per user, preserving first-appearance
// order so dispatch is deterministic.
func groupMatchesByUser(matches []entities.DealMatch) ([]string, map[string][]entities.DealMatch) {
	var order []string
	grouped := make(map[string][]entities.DealMatch)
	for _, match := range matches {
		if _, seen := grouped[match.UserID]; !seen {
			order = append(order, match.UserID)
		}
		grouped[match.UserID] = append(grouped[match.UserID], match)
	}
	return order, grouped
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
