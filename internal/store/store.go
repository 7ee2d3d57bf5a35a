// Package store persists rider state: tickets, cash wallets, planned and
// saved journeys, journey familiarity, alerts and settings.
//
// Two implementations are provided: [MemStore] for single-process use and
// tests, and [PostgresStore] backed by PostgreSQL via pgx. Both are safe for
// concurrent use.
//
// Familiarity has a single writer ([Familiarity.RecordUsage]), which is
// called when a rider selects a route. The ranking engine only ever reads a
// snapshot from [Familiarity.ListFamiliarity].
package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/wayfinder/pkg/transit"
)

var (
	// ErrNotFound is returned when a record does not exist or does not
	// belong to the requesting rider.
	ErrNotFound = errors.New("store: not found")

	// ErrInsufficientFunds is returned by [Wallets.Debit] when the balance
	// would go negative. The balance is left unchanged.
	ErrInsufficientFunds = errors.New("store: insufficient funds")

	// ErrDuplicateID is returned when inserting a record whose ID already
	// exists.
	ErrDuplicateID = errors.New("store: duplicate id")
)

// Tickets persists purchased tickets.
type Tickets interface {
	// CreateTicket inserts t. Returns [ErrDuplicateID] if t.TicketID exists.
	CreateTicket(ctx context.Context, t transit.Ticket) error

	// GetTicket returns the rider's ticket. Returns [ErrNotFound] when the
	// ticket does not exist or belongs to someone else.
	GetTicket(ctx context.Context, userID, ticketID string) (transit.Ticket, error)

	// ListTickets returns the rider's tickets, newest purchase first.
	ListTickets(ctx context.Context, userID string) ([]transit.Ticket, error)

	// MarkValidated stamps the ticket's validation time and returns the
	// updated ticket.
	MarkValidated(ctx context.Context, userID, ticketID string, at time.Time) (transit.Ticket, error)
}

// Wallets holds each rider's cash balance in cents. A rider without a
// wallet starts at the store's configured starting balance.
type Wallets interface {
	// Balance returns the current balance.
	Balance(ctx context.Context, userID string) (int64, error)

	// Credit adds cents and returns the new balance.
	Credit(ctx context.Context, userID string, cents int64) (int64, error)

	// Debit atomically subtracts cents and returns the new balance, or
	// [ErrInsufficientFunds] if the balance is too low.
	Debit(ctx context.Context, userID string, cents int64) (int64, error)
}

// Journeys persists planned and saved journeys.
type Journeys interface {
	// SaveJourney inserts j, assigning an ID and creation time when unset.
	SaveJourney(ctx context.Context, j transit.SavedJourney) (transit.SavedJourney, error)

	// ListJourneys returns the rider's journeys, newest first. When
	// savedOnly is true only journeys with Saved set are returned.
	ListJourneys(ctx context.Context, userID string, savedOnly bool) ([]transit.SavedJourney, error)
}

// Familiarity records how often riders use each journey.
type Familiarity interface {
	// RecordUsage increments the usage count for key and returns the
	// updated record.
	RecordUsage(ctx context.Context, userID string, key transit.JourneyKey) (transit.FamiliarityRecord, error)

	// ListFamiliarity returns a snapshot of the rider's records.
	ListFamiliarity(ctx context.Context, userID string) ([]transit.FamiliarityRecord, error)
}

// Alerts persists service notifications.
type Alerts interface {
	// CreateAlert inserts a, assigning an ID and creation time when unset.
	CreateAlert(ctx context.Context, a transit.Alert) (transit.Alert, error)

	// ListAlerts returns the rider's alerts, newest first.
	ListAlerts(ctx context.Context, userID string) ([]transit.Alert, error)

	// MarkAlertRead flags the alert as read. Returns [ErrNotFound] when the
	// alert does not exist or belongs to someone else.
	MarkAlertRead(ctx context.Context, userID, alertID string) error
}

// Settings persists rider settings.
type Settings interface {
	// GetSettings returns the rider's settings, or
	// [transit.DefaultSettings] when none are stored.
	GetSettings(ctx context.Context, userID string) (transit.Settings, error)

	// PutSettings replaces the rider's settings and returns them with
	// UpdatedAt set.
	PutSettings(ctx context.Context, s transit.Settings) (transit.Settings, error)
}

// Store aggregates every persistence concern.
type Store interface {
	Tickets
	Wallets
	Journeys
	Familiarity
	Alerts
	Settings

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases held resources.
	Close() error
}
