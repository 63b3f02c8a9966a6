package entities

import (
	"time"
)

// User is the owner of filters, tracked rivers and delivery endpoints. The
// pipeline reads users only to address email notifications.
type User struct {
	ID    string
	Email string
	Name  string
}

// PushSubscription is one web-push delivery endpoint registered by the web
// app. The dispatcher deletes a subscription when the push service reports
// it permanently gone; nothing else mutates it.
type PushSubscription struct {
	ID       string
	UserID   string
	Endpoint string
	P256dh   string
	Auth     string
}

// Notification channel preference values.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelBoth  = "both"
)

// NotificationPreference controls which channels and alert kinds a user
// receives. Users without a preference row get push-only defaults.
type NotificationPreference struct {
	UserID          string
	Channel         string
	DealAlerts      bool
	ConditionAlerts bool
	HazardAlerts    bool
	WeeklyDigest    bool // opt-in, off by default
}

// DefaultNotificationPreference returns the preference applied to users who
// never saved one.
func DefaultNotificationPreference(userID string) NotificationPreference {
	return NotificationPreference{
		UserID:          userID,
		Channel:         ChannelPush,
		DealAlerts:      true,
		ConditionAlerts: true,
		HazardAlerts:    true,
	}
}

// ScrapeLog is the write-only audit record for one pipeline run.
type ScrapeLog struct {
	ID         string
	Source     string
	Status     string // "success" or "error"
	ItemCount  int
	Error      string
	DurationMS int64
	StartedAt  time.Time
	FinishedAt time.Time
}
