package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/wayfinder/pkg/transit"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for single-process deployments and testing.
type MemStore struct {
	mu sync.RWMutex

	tickets     map[string]transit.Ticket // by ticket ID
	wallets     map[string]int64
	journeys    map[string][]transit.SavedJourney
	familiarity map[string]map[transit.JourneyKey]int
	alerts      map[string][]transit.Alert
	settings    map[string]transit.Settings

	startingBalance int64
	seed            []transit.FamiliarityRecord
	now             func() time.Time
}

// MemOption configures a [MemStore].
type MemOption func(*MemStore)

// WithStartingBalance sets the cash balance of a rider's wallet on first
// use.
func WithStartingBalance(cents int64) MemOption {
	return func(s *MemStore) { s.startingBalance = cents }
}

// WithFamiliaritySeed sets the usage records every new rider starts with.
func WithFamiliaritySeed(records []transit.FamiliarityRecord) MemOption {
	return func(s *MemStore) { s.seed = slices.Clone(records) }
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		tickets:     make(map[string]transit.Ticket),
		wallets:     make(map[string]int64),
		journeys:    make(map[string][]transit.SavedJourney),
		familiarity: make(map[string]map[transit.JourneyKey]int),
		alerts:      make(map[string][]transit.Alert),
		settings:    make(map[string]transit.Settings),
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping implements [Store.Ping].
func (s *MemStore) Ping(context.Context) error { return nil }

// Close implements [Store.Close].
func (s *MemStore) Close() error { return nil }

// CreateTicket implements [Tickets.CreateTicket].
func (s *MemStore) CreateTicket(_ context.Context, t transit.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.TicketID]; ok {
		return ErrDuplicateID
	}
	s.tickets[t.TicketID] = cloneTicket(t)
	return nil
}

// GetTicket implements [Tickets.GetTicket].
func (s *MemStore) GetTicket(_ context.Context, userID, ticketID string) (transit.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	if !ok || t.UserID != userID {
		return transit.Ticket{}, ErrNotFound
	}
	return cloneTicket(t), nil
}

// ListTickets implements [Tickets.ListTickets].
func (s *MemStore) ListTickets(_ context.Context, userID string) ([]transit.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []transit.Ticket
	for _, t := range s.tickets {
		if t.UserID == userID {
			out = append(out, cloneTicket(t))
		}
	}
	slices.SortFunc(out, func(a, b transit.Ticket) int {
		if c := b.PurchasedAt.Compare(a.PurchasedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.TicketID, b.TicketID)
	})
	return out, nil
}

// MarkValidated implements [Tickets.MarkValidated].
func (s *MemStore) MarkValidated(_ context.Context, userID, ticketID string, at time.Time) (transit.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketID]
	if !ok || t.UserID != userID {
		return transit.Ticket{}, ErrNotFound
	}
	t.ValidatedAt = &at
	s.tickets[ticketID] = t
	return cloneTicket(t), nil
}

// Balance implements [Wallets.Balance].
func (s *MemStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walletLocked(userID), nil
}

// Credit implements [Wallets.Credit].
func (s *MemStore) Credit(_ context.Context, userID string, cents int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.walletLocked(userID) + cents
	s.wallets[userID] = bal
	return bal, nil
}

// Debit implements [Wallets.Debit].
func (s *MemStore) Debit(_ context.Context, userID string, cents int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.walletLocked(userID)
	if bal < cents {
		return bal, ErrInsufficientFunds
	}
	bal -= cents
	s.wallets[userID] = bal
	return bal, nil
}

func (s *MemStore) walletLocked(userID string) int64 {
	bal, ok := s.wallets[userID]
	if !ok {
		bal = s.startingBalance
		s.wallets[userID] = bal
	}
	return bal
}

// SaveJourney implements [Journeys.SaveJourney].
func (s *MemStore) SaveJourney(_ context.Context, j transit.SavedJourney) (transit.SavedJourney, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now()
	}
	j.Journey = j.Journey.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.journeys[j.UserID] {
		if existing.ID == j.ID {
			return transit.SavedJourney{}, ErrDuplicateID
		}
	}
	s.journeys[j.UserID] = append(s.journeys[j.UserID], j)
	return j, nil
}

// ListJourneys implements [Journeys.ListJourneys].
func (s *MemStore) ListJourneys(_ context.Context, userID string, savedOnly bool) ([]transit.SavedJourney, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.journeys[userID]
	out := make([]transit.SavedJourney, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if savedOnly && !all[i].Saved {
			continue
		}
		j := all[i]
		j.Journey = j.Journey.Clone()
		out = append(out, j)
	}
	return out, nil
}

// RecordUsage implements [Familiarity.RecordUsage].
func (s *MemStore) RecordUsage(_ context.Context, userID string, key transit.JourneyKey) (transit.FamiliarityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fam := s.familiarityLocked(userID)
	fam[key]++
	return transit.FamiliarityRecord{Key: key, TimesUsed: fam[key]}, nil
}

// ListFamiliarity implements [Familiarity.ListFamiliarity].
func (s *MemStore) ListFamiliarity(_ context.Context, userID string) ([]transit.FamiliarityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fam := s.familiarityLocked(userID)
	out := make([]transit.FamiliarityRecord, 0, len(fam))
	for k, n := range fam {
		out = append(out, transit.FamiliarityRecord{Key: k, TimesUsed: n})
	}
	slices.SortFunc(out, func(a, b transit.FamiliarityRecord) int {
		if c := cmp.Compare(a.Key.ID, b.Key.ID); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.Summary, b.Key.Summary)
	})
	return out, nil
}

func (s *MemStore) familiarityLocked(userID string) map[transit.JourneyKey]int {
	fam, ok := s.familiarity[userID]
	if !ok {
		fam = make(map[transit.JourneyKey]int, len(s.seed))
		for _, r := range s.seed {
			fam[r.Key] = r.TimesUsed
		}
		s.familiarity[userID] = fam
	}
	return fam
}

// CreateAlert implements [Alerts.CreateAlert].
func (s *MemStore) CreateAlert(_ context.Context, a transit.Alert) (transit.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.UserID] = append(s.alerts[a.UserID], a)
	return a, nil
}

// ListAlerts implements [Alerts.ListAlerts].
func (s *MemStore) ListAlerts(_ context.Context, userID string) ([]transit.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.alerts[userID]
	out := make([]transit.Alert, len(all))
	for i, a := range all {
		out[len(all)-1-i] = a
	}
	return out, nil
}

// MarkAlertRead implements [Alerts.MarkAlertRead].
func (s *MemStore) MarkAlertRead(_ context.Context, userID, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts[userID] {
		if s.alerts[userID][i].ID == alertID {
			s.alerts[userID][i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

// GetSettings implements [Settings.GetSettings].
func (s *MemStore) GetSettings(_ context.Context, userID string) (transit.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.settings[userID]; ok {
		return st, nil
	}
	return transit.DefaultSettings(userID), nil
}

// PutSettings implements [Settings.PutSettings].
func (s *MemStore) PutSettings(_ context.Context, st transit.Settings) (transit.Settings, error) {
	st.UpdatedAt = s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[st.UserID] = st
	return st, nil
}

func cloneTicket(t transit.Ticket) transit.Ticket {
	if t.ValidatedAt != nil {
		v := *t.ValidatedAt
		t.ValidatedAt = &v
	}
	return t
}
