// Package ticket sells and validates fare products.
//
// The [Service] owns fare pricing and the rider's cash wallet. Card
// purchases are recorded directly; cash purchases debit the wallet first and
// fail with [ErrInsufficientFunds] when the balance is too low, leaving the
// balance unchanged.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/wayfinder/internal/observe"
	"github.com/MrWong99/wayfinder/internal/store"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

var (
	// ErrInsufficientFunds is returned by [Service.Purchase] when a cash
	// purchase exceeds the wallet balance.
	ErrInsufficientFunds = errors.New("ticket: insufficient cash balance")

	// ErrExpired is returned by [Service.Validate] for a ticket past its
	// validity.
	ErrExpired = errors.New("ticket: ticket expired")

	// ErrInvalidOrder is returned for an unknown ticket type or payment
	// method.
	ErrInvalidOrder = errors.New("ticket: invalid order")

	// ErrInvalidAmount is returned by [Service.TopUp] for a non-positive
	// amount.
	ErrInvalidAmount = errors.New("ticket: amount must be positive")
)

// Fares configures prices and validity.
type Fares struct {
	SinglePriceCents int64
	SingleValidity   time.Duration
	DayPriceCents    int64
	Currency         string
	TopUpLocations   []string
}

// DefaultFares returns the standard fare table.
func DefaultFares() Fares {
	return Fares{
		SinglePriceCents: 350,
		SingleValidity:   90 * time.Minute,
		DayPriceCents:    1200,
		Currency:         "USD",
		TopUpLocations:   []string{"Central Station", "Airport", "City Hall"},
	}
}

// Quote is the price and validity of a ticket bought at a given time.
type Quote struct {
	Type       transit.TicketType `json:"type"`
	PriceCents int64              `json:"price"`
	Currency   string             `json:"currency"`
	ValidUntil time.Time          `json:"validUntil"`
}

// Service sells, lists and validates tickets. It is safe for concurrent use.
type Service struct {
	tickets store.Tickets
	wallets store.Wallets

	mu    sync.RWMutex
	fares Fares

	metrics *observe.Metrics
	loc     *time.Location
	now     func() time.Time
	newID   func() string
}

// Option configures a [Service].
type Option func(*Service)

// WithMetrics records purchases on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLocation sets the time zone that defines "end of day" for day
// tickets. Default: [time.Local].
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a [Service] over the given stores.
func New(tickets store.Tickets, wallets store.Wallets, fares Fares, opts ...Option) *Service {
	s := &Service{
		tickets: tickets,
		wallets: wallets,
		fares:   fares,
		loc:     time.Local,
		now:     time.Now,
		newID:   func() string { return "TKT-" + uuid.NewString() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetFares replaces the fare table. Tickets already sold keep their price.
func (s *Service) SetFares(f Fares) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fares = f
}

func (s *Service) currentFares() Fares {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fares
}

// Quote prices tt for a purchase at the given time.
func (s *Service) Quote(tt transit.TicketType, at time.Time) (Quote, error) {
	f := s.currentFares()
	q := Quote{Type: tt, Currency: f.Currency}
	switch tt {
	case transit.TicketSingle:
		q.PriceCents = f.SinglePriceCents
		q.ValidUntil = at.Add(f.SingleValidity)
	case transit.TicketDay:
		q.PriceCents = f.DayPriceCents
		local := at.In(s.loc)
		y, m, d := local.Date()
		q.ValidUntil = time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), s.loc)
	default:
		return Quote{}, fmt.Errorf("%w: ticket type %q", ErrInvalidOrder, tt)
	}
	return q, nil
}

// Purchase sells a ticket of type tt to userID, paid with pm.
func (s *Service) Purchase(ctx context.Context, userID string, tt transit.TicketType, pm transit.PaymentMethod) (transit.Ticket, error) {
	if !pm.IsValid() {
		return transit.Ticket{}, fmt.Errorf("%w: payment method %q", ErrInvalidOrder, pm)
	}
	now := s.now()
	q, err := s.Quote(tt, now)
	if err != nil {
		return transit.Ticket{}, err
	}

	if pm == transit.PayCash {
		if _, err := s.wallets.Debit(ctx, userID, q.PriceCents); err != nil {
			if errors.Is(err, store.ErrInsufficientFunds) {
				s.record(ctx, tt, pm, "insufficient_funds")
				return transit.Ticket{}, ErrInsufficientFunds
			}
			s.record(ctx, tt, pm, "error")
			return transit.Ticket{}, fmt.Errorf("ticket: debit wallet: %w", err)
		}
	}

	t := transit.Ticket{
		TicketID:      s.newID(),
		UserID:        userID,
		Type:          tt,
		PriceCents:    q.PriceCents,
		PaymentMethod: pm,
		PurchasedAt:   now,
		ValidUntil:    q.ValidUntil,
	}
	if err := s.tickets.CreateTicket(ctx, t); err != nil {
		if pm == transit.PayCash {
			if _, rerr := s.wallets.Credit(ctx, userID, q.PriceCents); rerr != nil {
				slog.Error("ticket: refund after failed purchase", "user_id", userID, "cents", q.PriceCents, "err", rerr)
			}
		}
		s.record(ctx, tt, pm, "error")
		return transit.Ticket{}, fmt.Errorf("ticket: create: %w", err)
	}

	s.record(ctx, tt, pm, "ok")
	slog.Info("ticket: purchased", "user_id", userID, "ticket_id", t.TicketID, "type", tt, "payment", pm)
	return t, nil
}

func (s *Service) record(ctx context.Context, tt transit.TicketType, pm transit.PaymentMethod, status string) {
	if s.metrics != nil {
		s.metrics.RecordTicketPurchase(ctx, string(tt), string(pm), status)
	}
}

// Validate stamps the rider's ticket as validated. Expired tickets are
// rejected with [ErrExpired].
func (s *Service) Validate(ctx context.Context, userID, ticketID string) (transit.Ticket, error) {
	t, err := s.tickets.GetTicket(ctx, userID, ticketID)
	if err != nil {
		return transit.Ticket{}, fmt.Errorf("ticket: validate %q: %w", ticketID, err)
	}
	now := s.now()
	if !t.ActiveAt(now) {
		return transit.Ticket{}, fmt.Errorf("ticket: validate %q: %w", ticketID, ErrExpired)
	}
	t, err = s.tickets.MarkValidated(ctx, userID, ticketID, now)
	if err != nil {
		return transit.Ticket{}, fmt.Errorf("ticket: validate %q: %w", ticketID, err)
	}
	return t, nil
}

// List returns all of the rider's tickets, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]transit.Ticket, error) {
	ts, err := s.tickets.ListTickets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ticket: list: %w", err)
	}
	return ts, nil
}

// Active returns the rider's tickets that are still valid now.
func (s *Service) Active(ctx context.Context, userID string) ([]transit.Ticket, error) {
	ts, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return slices.DeleteFunc(ts, func(t transit.Ticket) bool { return !t.ActiveAt(now) }), nil
}

// Balance returns the rider's cash balance in cents.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	bal, err := s.wallets.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("ticket: balance: %w", err)
	}
	return bal, nil
}

// TopUp adds cents to the rider's wallet and returns the new balance.
func (s *Service) TopUp(ctx context.Context, userID string, cents int64) (int64, error) {
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	bal, err := s.wallets.Credit(ctx, userID, cents)
	if err != nil {
		return 0, fmt.Errorf("ticket: top up: %w", err)
	}
	slog.Info("ticket: wallet topped up", "user_id", userID, "cents", cents)
	return bal, nil
}

// TopUpLocations returns where cash can be added to a wallet.
func (s *Service) TopUpLocations() []string {
	return slices.Clone(s.currentFares().TopUpLocations)
}

// Currency returns the configured currency code.
func (s *Service) Currency() string {
	return s.currentFares().Currency
}
