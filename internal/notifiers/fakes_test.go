package notifiers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// fakeTx is an in-memory repository.Tx for dispatcher tests.
type fakeTx struct {
	subscriptions []entities.PushSubscription
	trackers      []entities.UserRiver
	users         map[string]entities.User
	preferences   map[string]entities.NotificationPreference
	matches       []entities.DealFilterMatch

	deletedEndpoints []string
	notified         []string // "filterID/dealID" in call order
	failMarkNotified bool
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		users:       make(map[string]entities.User),
		preferences: make(map[string]entities.NotificationPreference),
	}
}

func (f *fakeTx) RiverByUSGSGaugeID(string) (*entities.River, error) { return nil, nil }
func (f *fakeTx) RiverByAWID(string) (*entities.River, error)        { return nil, nil }
func (f *fakeTx) RiverByName(string) (*entities.River, error)        { return nil, nil }
func (f *fakeTx) RecentConditions(string, time.Time, int) ([]entities.RiverCondition, error) {
	return nil, nil
}
func (f *fakeTx) LatestCondition(string) (*entities.RiverCondition, error) { return nil, nil }
func (f *fakeTx) InsertCondition(entities.RiverCondition) error            { return nil }
func (f *fakeTx) DealByURL(string) (*entities.GearDeal, error)             { return nil, nil }
func (f *fakeTx) InsertDeal(entities.GearDeal) error                       { return nil }
func (f *fakeTx) ActiveDealFilters() ([]entities.DealFilter, error)        { return nil, nil }
func (f *fakeTx) InsertDealFilterMatch(m entities.DealFilterMatch) error {
	f.matches = append(f.matches, m)
	return nil
}

func (f *fakeTx) MarkMatchNotified(filterID, dealID string) error {
	if f.failMarkNotified {
		return errors.New("mark notified failed")
	}
	f.notified = append(f.notified, filterID+"/"+dealID)
	return nil
}

func (f *fakeTx) SubscriptionsForUser(userID string) ([]entities.PushSubscription, error) {
	var subs []entities.PushSubscription
	for _, sub := range f.subscriptions {
		if sub.UserID == userID && !f.isDeleted(sub.Endpoint) {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (f *fakeTx) DeleteSubscription(endpoint string) error {
	f.deletedEndpoints = append(f.deletedEndpoints, endpoint)
	return nil
}

func (f *fakeTx) isDeleted(endpoint string) bool {
	for _, deleted := range f.deletedEndpoints {
		if deleted == endpoint {
			return true
		}
	}
	return false
}

func (f *fakeTx) RiverTrackers(riverID string) ([]entities.UserRiver, error) {
	var out []entities.UserRiver
	for _, tracker := range f.trackers {
		if tracker.RiverID == riverID && tracker.Notify {
			out = append(out, tracker)
		}
	}
	return out, nil
}

func (f *fakeTx) UserByID(id string) (*entities.User, error) {
	if user, ok := f.users[id]; ok {
		return &user, nil
	}
	return nil, nil
}

func (f *fakeTx) PreferenceForUser(userID string) (*entities.NotificationPreference, error) {
	if pref, ok := f.preferences[userID]; ok {
		return &pref, nil
	}
	return nil, nil
}

func (f *fakeTx) InsertScrapeLog(entities.ScrapeLog) error { return nil }

type fakeStore struct {
	tx        *fakeTx
	rollbacks int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tx: newFakeTx()}
}

func (s *fakeStore) WithTx(_ context.Context, fn func(repository.Tx) error) error {
	if err := fn(s.tx); err != nil {
		s.rollbacks++
		return err
	}
	return nil
}

func (s *fakeStore) RiversWithUSGSGauge(context.Context) ([]entities.River, error) { return nil, nil }
func (s *fakeStore) RiversWithAWID(context.Context) ([]entities.River, error)      { return nil, nil }
func (s *fakeStore) ListRivers(context.Context) ([]entities.River, error)          { return nil, nil }
func (s *fakeStore) Close() error                                                  { return nil }

// fakeChannel records deliveries and fails configured endpoints.
type fakeChannel struct {
	sent          []string // endpoints in send order
	payloads      map[string][][]byte
	goneEndpoints map[string]bool
	flakyEndpoint string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		payloads:      make(map[string][][]byte),
		goneEndpoints: make(map[string]bool),
	}
}

func (c *fakeChannel) Send(_ context.Context, sub entities.PushSubscription, payload []byte) error {
	if c.goneEndpoints[sub.Endpoint] {
		return fmt.Errorf("push endpoint returned 410: %w", ErrSubscriptionGone)
	}
	if c.flakyEndpoint == sub.Endpoint {
		return errors.New("push service unavailable")
	}
	c.sent = append(c.sent, sub.Endpoint)
	c.payloads[sub.Endpoint] = append(c.payloads[sub.Endpoint], payload)
	return nil
}

// fakeEmailSender records sent emails.
type fakeEmailSender struct {
	recipients []string
	subjects   []string
	failFor    string
}

func (s *fakeEmailSender) Send(_ context.Context, to, subject, _ string) error {
	if s.failFor == to {
		return errors.New("email rejected")
	}
	s.recipients = append(s.recipients, to)
	s.subjects = append(s.subjects, subject)
	return nil
}
