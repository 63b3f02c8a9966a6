package usecases

import (
	"context"
	"errors"
	"time"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// fakeTx is an in-memory repository.Tx for exercising the processors without
// a database. Conditions are held newest-first per river, matching the real
// store's ordering.
type fakeTx struct {
	rivers     []entities.River
	conditions map[string][]entities.RiverCondition
	deals      map[string]entities.GearDeal
	filters    []entities.DealFilter
	matches    []entities.DealFilterMatch
	scrapeLogs []entities.ScrapeLog

	failInsertCondition bool
	failInsertDeal      bool
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		conditions: make(map[string][]entities.RiverCondition),
		deals:      make(map[string]entities.GearDeal),
	}
}

func (f *fakeTx) riverBy(match func(entities.River) bool) (*entities.River, error) {
	for _, river := range f.rivers {
		if match(river) {
			r := river
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeTx) RiverByUSGSGaugeID(gaugeID string) (*entities.River, error) {
	return f.riverBy(func(r entities.River) bool { return r.USGSGaugeID == gaugeID })
}

func (f *fakeTx) RiverByAWID(awID string) (*entities.River, error) {
	return f.riverBy(func(r entities.River) bool { return r.AWID == awID })
}

func (f *fakeTx) RiverByName(name string) (*entities.River, error) {
	return f.riverBy(func(r entities.River) bool { return r.Name == name })
}

func (f *fakeTx) RecentConditions(riverID string, since time.Time, limit int) ([]entities.RiverCondition, error) {
	var recent []entities.RiverCondition
	for _, cond := range f.conditions[riverID] {
		if cond.ScrapedAt.Before(since) {
			continue
		}
		recent = append(recent, cond)
		if len(recent) == limit {
			break
		}
	}
	return recent, nil
}

func (f *fakeTx) LatestCondition(riverID string) (*entities.RiverCondition, error) {
	conds := f.conditions[riverID]
	if len(conds) == 0 {
		return nil, nil
	}
	c := conds[0]
	return &c, nil
}

func (f *fakeTx) InsertCondition(c entities.RiverCondition) error {
	if f.failInsertCondition {
		return errors.New("insert condition failed")
	}
	f.conditions[c.RiverID] = append([]entities.RiverCondition{c}, f.conditions[c.RiverID]...)
	return nil
}

func (f *fakeTx) DealByURL(url string) (*entities.GearDeal, error) {
	if deal, ok := f.deals[url]; ok {
		return &deal, nil
	}
	return nil, nil
}

func (f *fakeTx) InsertDeal(d entities.GearDeal) error {
	if f.failInsertDeal {
		return errors.New("insert deal failed")
	}
	f.deals[d.URL] = d
	return nil
}

func (f *fakeTx) ActiveDealFilters() ([]entities.DealFilter, error) {
	var active []entities.DealFilter
	for _, filter := range f.filters {
		if filter.IsActive {
			active = append(active, filter)
		}
	}
	return active, nil
}

func (f *fakeTx) InsertDealFilterMatch(m entities.DealFilterMatch) error {
	f.matches = append(f.matches, m)
	return nil
}

func (f *fakeTx) MarkMatchNotified(filterID, dealID string) error {
	for i, match := range f.matches {
		if match.FilterID == filterID && match.DealID == dealID {
			f.matches[i].Notified = true
		}
	}
	return nil
}

func (f *fakeTx) SubscriptionsForUser(string) ([]entities.PushSubscription, error) { return nil, nil }
func (f *fakeTx) DeleteSubscription(string) error                                 { return nil }
func (f *fakeTx) RiverTrackers(string) ([]entities.UserRiver, error)              { return nil, nil }
func (f *fakeTx) UserByID(string) (*entities.User, error)                         { return nil, nil }
func (f *fakeTx) PreferenceForUser(string) (*entities.NotificationPreference, error) {
	return nil, nil
}

func (f *fakeTx) InsertScrapeLog(l entities.ScrapeLog) error {
	f.scrapeLogs = append(f.scrapeLogs, l)
	return nil
}

// fakeStore hands out the same fakeTx for every transaction.
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
func (s *fakeStore) ListRivers(context.Context) ([]entities.River, error) {
	return s.tx.rivers, nil
}
func (s *fakeStore) Close() error { return nil }

func floatPtr(v float64) *float64 { return &v }
