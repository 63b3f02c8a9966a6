// Package webpush implements VAPID web-push delivery.
package webpush

import (
	"context"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/notifiers"
)

// Channel sends web-push messages signed with the configured VAPID key pair.
type Channel struct {
	publicKey  string
	privateKey string
	subject    string
	ttl        int
}

// NewChannel creates a push channel. The subject is the VAPID contact URI
// (mailto: or https:).
func NewChannel(publicKey, privateKey, subject string) *Channel {
	return &Channel{
		publicKey:  publicKey,
		privateKey: privateKey,
		subject:    subject,
		ttl:        3600,
	}
}

// Send delivers one payload to one subscription. HTTP 410 (and 404, which
// some push services use for expired registrations) is wrapped with
// notifiers.ErrSubscriptionGone so the dispatcher prunes the endpoint.
func (c *Channel) Send(ctx context.Context, sub entities.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      c.subject,
		VAPIDPublicKey:  c.publicKey,
		VAPIDPrivateKey: c.privateKey,
		TTL:             c.ttl,
	})
	if err != nil {
		return fmt.Errorf("failed to send web push: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("push endpoint returned %d: %w", resp.StatusCode, notifiers.ErrSubscriptionGone)
	case resp.StatusCode >= 400:
		return fmt.Errorf("push failed with status %d", resp.StatusCode)
	}
	return nil
}
