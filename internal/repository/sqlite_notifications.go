package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/abelzeko/water-watcher/internal/entities"
)

// SubscriptionsForUser returns every push subscription registered by a user.
// Deletions earlier in the same transaction are visible here, so an endpoint
// removed mid-run is never handed out again.
func (t *sqliteTx) SubscriptionsForUser(userID string) ([]entities.PushSubscription, error) {
	rows, err := t.tx.Query(`
		SELECT id, user_id, endpoint, p256dh, auth
		FROM push_subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions for user %s: %v", userID, err)
	}
	defer rows.Close()

	var result []entities.PushSubscription
	for rows.Next() {
		var s entities.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %v", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %v", err)
	}
	return result, nil
}

// DeleteSubscription removes a permanently dead endpoint.
func (t *sqliteTx) DeleteSubscription(endpoint string) error {
	_, err := t.tx.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %v", err)
	}
	return nil
}

// RiverTrackers returns the user_rivers rows for users tracking a river with
// notifications enabled.
func (t *sqliteTx) RiverTrackers(riverID string) ([]entities.UserRiver, error) {
	rows, err := t.tx.Query(`
		SELECT id, user_id, river_id, notify
		FROM user_rivers WHERE river_id = ? AND notify = 1`, riverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trackers for river %s: %v", riverID, err)
	}
	defer rows.Close()

	var result []entities.UserRiver
	for rows.Next() {
		var ur entities.UserRiver
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.RiverID, &ur.Notify); err != nil {
			return nil, fmt.Errorf("failed to scan user_river row: %v", err)
		}
		result = append(result, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %v", err)
	}
	return result, nil
}

// UserByID returns a user, or nil when unknown.
func (t *sqliteTx) UserByID(id string) (*entities.User, error) {
	row := t.tx.QueryRow(`SELECT id, email, name FROM users WHERE id = ?`, id)
	var u entities.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan user row: %v", err)
	}
	return &u, nil
}

// PreferenceForUser returns the user's notification preference, or nil when
// they never saved one.
func (t *sqliteTx) PreferenceForUser(userID string) (*entities.NotificationPreference, error) {
	row := t.tx.QueryRow(`
		SELECT user_id, channel, deal_alerts, condition_alerts, hazard_alerts, weekly_digest
		FROM notification_preferences WHERE user_id = ?`, userID)
	var p entities.NotificationPreference
	if err := row.Scan(&p.UserID, &p.Channel, &p.DealAlerts, &p.ConditionAlerts, &p.HazardAlerts, &p.WeeklyDigest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan preference row: %v", err)
	}
	return &p, nil
}
