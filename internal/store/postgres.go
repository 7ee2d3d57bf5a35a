package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/wayfinder/pkg/transit"
)

// Schema is the SQL DDL for every table used by [PostgresStore]. Execute it
// via [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS tickets (
    ticket_id      TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    ticket_type    TEXT NOT NULL,
    price_cents    BIGINT NOT NULL,
    payment_method TEXT NOT NULL,
    purchased_at   TIMESTAMPTZ NOT NULL,
    valid_until    TIMESTAMPTZ NOT NULL,
    validated_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets(user_id, purchased_at DESC);

CREATE TABLE IF NOT EXISTS wallets (
    user_id       TEXT PRIMARY KEY,
    balance_cents BIGINT NOT NULL CHECK (balance_cents >= 0),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS journeys (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    origin      TEXT NOT NULL,
    destination TEXT NOT NULL,
    depart_time TEXT NOT NULL DEFAULT '',
    journey     JSONB NOT NULL,
    saved       BOOLEAN NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_journeys_user ON journeys(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS journey_familiarity (
    user_id    TEXT NOT NULL,
    journey_id TEXT NOT NULL,
    summary    TEXT NOT NULL,
    times_used INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, journey_id, summary)
);

CREATE TABLE IF NOT EXISTS alerts (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    title      TEXT NOT NULL,
    message    TEXT NOT NULL,
    route      TEXT NOT NULL DEFAULT '',
    read       BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS user_settings (
    user_id        TEXT PRIMARY KEY,
    language       TEXT NOT NULL DEFAULT 'en',
    voice_feedback BOOLEAN NOT NULL DEFAULT true,
    haptics        BOOLEAN NOT NULL DEFAULT true,
    high_contrast  BOOLEAN NOT NULL DEFAULT false,
    preferences    JSONB NOT NULL DEFAULT '{}',
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Journeys and
// preferences are stored as JSONB.
type PostgresStore struct {
	db              DB
	startingBalance int64
	now             func() time.Time
	close           func()
	ping            func(context.Context) error
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB, startingBalance int64) *PostgresStore {
	return &PostgresStore{
		db:              db,
		startingBalance: startingBalance,
		now:             time.Now,
	}
}

// Open connects a pool to the database at dsn, pings it and runs
// [PostgresStore.Migrate].
func Open(ctx context.Context, dsn string, startingBalance int64) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := NewPostgresStore(pool, startingBalance)
	s.close = pool.Close
	s.ping = pool.Ping
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping implements [Store.Ping].
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.ping != nil {
		return s.ping(ctx)
	}
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close implements [Store.Close].
func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tickets
// ---------------------------------------------------------------------------

const ticketColumns = `ticket_id, user_id, ticket_type, price_cents, payment_method, purchased_at, valid_until, validated_at`

// CreateTicket implements [Tickets.CreateTicket].
func (s *PostgresStore) CreateTicket(ctx context.Context, t transit.Ticket) error {
	const query = `
		INSERT INTO tickets (` + ticketColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := s.db.Exec(ctx, query,
		t.TicketID, t.UserID, string(t.Type), t.PriceCents, string(t.PaymentMethod),
		t.PurchasedAt, t.ValidUntil, t.ValidatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("store: ticket %q: %w", t.TicketID, ErrDuplicateID)
		}
		return fmt.Errorf("store: create ticket: %w", err)
	}
	return nil
}

// GetTicket implements [Tickets.GetTicket].
func (s *PostgresStore) GetTicket(ctx context.Context, userID, ticketID string) (transit.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_id = $1 AND user_id = $2`

	t, err := scanTicket(s.db.QueryRow(ctx, query, ticketID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transit.Ticket{}, ErrNotFound
		}
		return transit.Ticket{}, fmt.Errorf("store: get ticket %q: %w", ticketID, err)
	}
	return t, nil
}

// ListTickets implements [Tickets.ListTickets].
func (s *PostgresStore) ListTickets(ctx context.Context, userID string) ([]transit.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE user_id = $1 ORDER BY purchased_at DESC, ticket_id`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list tickets: %w", err)
	}
	defer rows.Close()

	var out []transit.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list tickets scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list tickets: %w", err)
	}
	return out, nil
}

// MarkValidated implements [Tickets.MarkValidated].
func (s *PostgresStore) MarkValidated(ctx context.Context, userID, ticketID string, at time.Time) (transit.Ticket, error) {
	const query = `
		UPDATE tickets SET validated_at = $3
		WHERE ticket_id = $1 AND user_id = $2
		RETURNING ` + ticketColumns

	t, err := scanTicket(s.db.QueryRow(ctx, query, ticketID, userID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transit.Ticket{}, ErrNotFound
		}
		return transit.Ticket{}, fmt.Errorf("store: validate ticket %q: %w", ticketID, err)
	}
	return t, nil
}

func scanTicket(row pgx.Row) (transit.Ticket, error) {
	var (
		t             transit.Ticket
		ticketType    string
		paymentMethod string
		validatedAt   *time.Time
	)
	if err := row.Scan(
		&t.TicketID, &t.UserID, &ticketType, &t.PriceCents, &paymentMethod,
		&t.PurchasedAt, &t.ValidUntil, &validatedAt,
	); err != nil {
		return transit.Ticket{}, err
	}
	t.Type = transit.TicketType(ticketType)
	t.PaymentMethod = transit.PaymentMethod(paymentMethod)
	t.ValidatedAt = validatedAt
	return t, nil
}

// ---------------------------------------------------------------------------
// Wallets
// ---------------------------------------------------------------------------

// Balance implements [Wallets.Balance].
func (s *PostgresStore) Balance(ctx context.Context, userID string) (int64, error) {
	if err := s.ensureWallet(ctx, userID); err != nil {
		return 0, err
	}
	var bal int64
	err := s.db.QueryRow(ctx, `SELECT balance_cents FROM wallets WHERE user_id = $1`, userID).Scan(&bal)
	if err != nil {
		return 0, fmt.Errorf("store: balance: %w", err)
	}
	return bal, nil
}

// Credit implements [Wallets.Credit].
func (s *PostgresStore) Credit(ctx context.Context, userID string, cents int64) (int64, error) {
	const query = `
		INSERT INTO wallets (user_id, balance_cents) VALUES ($1, $3 + $2)
		ON CONFLICT (user_id) DO UPDATE SET
			balance_cents = wallets.balance_cents + $2,
			updated_at = now()
		RETURNING balance_cents`

	var bal int64
	if err := s.db.QueryRow(ctx, query, userID, cents, s.startingBalance).Scan(&bal); err != nil {
		return 0, fmt.Errorf("store: credit: %w", err)
	}
	return bal, nil
}

// Debit implements [Wallets.Debit]. The balance check and the decrement
// happen in a single statement.
func (s *PostgresStore) Debit(ctx context.Context, userID string, cents int64) (int64, error) {
	if err := s.ensureWallet(ctx, userID); err != nil {
		return 0, err
	}

	const query = `
		UPDATE wallets SET balance_cents = balance_cents - $2, updated_at = now()
		WHERE user_id = $1 AND balance_cents >= $2
		RETURNING balance_cents`

	var bal int64
	err := s.db.QueryRow(ctx, query, userID, cents).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrInsufficientFunds
		}
		return 0, fmt.Errorf("store: debit: %w", err)
	}
	return bal, nil
}

func (s *PostgresStore) ensureWallet(ctx context.Context, userID string) error {
	const query = `
		INSERT INTO wallets (user_id, balance_cents) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.db.Exec(ctx, query, userID, s.startingBalance); err != nil {
		return fmt.Errorf("store: ensure wallet: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Journeys
// ---------------------------------------------------------------------------

// SaveJourney implements [Journeys.SaveJourney].
func (s *PostgresStore) SaveJourney(ctx context.Context, j transit.SavedJourney) (transit.SavedJourney, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now()
	}

	journeyJSON, err := json.Marshal(j.Journey)
	if err != nil {
		return transit.SavedJourney{}, fmt.Errorf("store: marshal journey: %w", err)
	}

	const query = `
		INSERT INTO journeys (id, user_id, origin, destination, depart_time, journey, saved, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = s.db.Exec(ctx, query, j.ID, j.UserID, j.From, j.To, j.Time, journeyJSON, j.Saved, j.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return transit.SavedJourney{}, fmt.Errorf("store: journey %q: %w", j.ID, ErrDuplicateID)
		}
		return transit.SavedJourney{}, fmt.Errorf("store: save journey: %w", err)
	}
	return j, nil
}

// ListJourneys implements [Journeys.ListJourneys].
func (s *PostgresStore) ListJourneys(ctx context.Context, userID string, savedOnly bool) ([]transit.SavedJourney, error) {
	const query = `
		SELECT id, user_id, origin, destination, depart_time, journey, saved, created_at
		FROM journeys
		WHERE user_id = $1 AND (saved OR NOT $2)
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, userID, savedOnly)
	if err != nil {
		return nil, fmt.Errorf("store: list journeys: %w", err)
	}
	defer rows.Close()

	out := []transit.SavedJourney{}
	for rows.Next() {
		var (
			j           transit.SavedJourney
			journeyJSON []byte
		)
		if err := rows.Scan(&j.ID, &j.UserID, &j.From, &j.To, &j.Time, &journeyJSON, &j.Saved, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list journeys scan: %w", err)
		}
		if err := json.Unmarshal(journeyJSON, &j.Journey); err != nil {
			return nil, fmt.Errorf("store: unmarshal journey: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list journeys: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Familiarity
// ---------------------------------------------------------------------------

// RecordUsage implements [Familiarity.RecordUsage].
func (s *PostgresStore) RecordUsage(ctx context.Context, userID string, key transit.JourneyKey) (transit.FamiliarityRecord, error) {
	const query = `
		INSERT INTO journey_familiarity (user_id, journey_id, summary, times_used)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, journey_id, summary) DO UPDATE SET
			times_used = journey_familiarity.times_used + 1
		RETURNING times_used`

	rec := transit.FamiliarityRecord{Key: key}
	if err := s.db.QueryRow(ctx, query, userID, key.ID, key.Summary).Scan(&rec.TimesUsed); err != nil {
		return transit.FamiliarityRecord{}, fmt.Errorf("store: record usage: %w", err)
	}
	return rec, nil
}

// ListFamiliarity implements [Familiarity.ListFamiliarity].
func (s *PostgresStore) ListFamiliarity(ctx context.Context, userID string) ([]transit.FamiliarityRecord, error) {
	const query = `
		SELECT journey_id, summary, times_used
		FROM journey_familiarity
		WHERE user_id = $1
		ORDER BY journey_id, summary`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list familiarity: %w", err)
	}
	defer rows.Close()

	out := []transit.FamiliarityRecord{}
	for rows.Next() {
		var r transit.FamiliarityRecord
		if err := rows.Scan(&r.Key.ID, &r.Key.Summary, &r.TimesUsed); err != nil {
			return nil, fmt.Errorf("store: list familiarity scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list familiarity: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Alerts
// ---------------------------------------------------------------------------

// CreateAlert implements [Alerts.CreateAlert].
func (s *PostgresStore) CreateAlert(ctx context.Context, a transit.Alert) (transit.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	const query = `
		INSERT INTO alerts (id, user_id, title, message, route, read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	if _, err := s.db.Exec(ctx, query, a.ID, a.UserID, a.Title, a.Message, a.Route, a.Read, a.CreatedAt); err != nil {
		if isDuplicateKeyError(err) {
			return transit.Alert{}, fmt.Errorf("store: alert %q: %w", a.ID, ErrDuplicateID)
		}
		return transit.Alert{}, fmt.Errorf("store: create alert: %w", err)
	}
	return a, nil
}

// ListAlerts implements [Alerts.ListAlerts].
func (s *PostgresStore) ListAlerts(ctx context.Context, userID string) ([]transit.Alert, error) {
	const query = `
		SELECT id, user_id, title, message, route, read, created_at
		FROM alerts
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	defer rows.Close()

	out := []transit.Alert{}
	for rows.Next() {
		var a transit.Alert
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.Message, &a.Route, &a.Read, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: list alerts scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	return out, nil
}

// MarkAlertRead implements [Alerts.MarkAlertRead].
func (s *PostgresStore) MarkAlertRead(ctx context.Context, userID, alertID string) error {
	tag, err := s.db.Exec(ctx, `UPDATE alerts SET read = true WHERE id = $1 AND user_id = $2`, alertID, userID)
	if err != nil {
		return fmt.Errorf("store: mark alert read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSettings implements [Settings.GetSettings].
func (s *PostgresStore) GetSettings(ctx context.Context, userID string) (transit.Settings, error) {
	const query = `
		SELECT user_id, language, voice_feedback, haptics, high_contrast, preferences, updated_at
		FROM user_settings
		WHERE user_id = $1`

	var (
		st        transit.Settings
		prefsJSON []byte
	)
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&st.UserID, &st.Language, &st.VoiceFeedback, &st.Haptics, &st.HighContrast, &prefsJSON, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transit.DefaultSettings(userID), nil
		}
		return transit.Settings{}, fmt.Errorf("store: get settings: %w", err)
	}
	if err := json.Unmarshal(prefsJSON, &st.Preferences); err != nil {
		return transit.Settings{}, fmt.Errorf("store: unmarshal preferences: %w", err)
	}
	return st, nil
}

// PutSettings implements [Settings.PutSettings].
func (s *PostgresStore) PutSettings(ctx context.Context, st transit.Settings) (transit.Settings, error) {
	prefsJSON, err := json.Marshal(st.Preferences)
	if err != nil {
		return transit.Settings{}, fmt.Errorf("store: marshal preferences: %w", err)
	}

	const query = `
		INSERT INTO user_settings (user_id, language, voice_feedback, haptics, high_contrast, preferences, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
		ON CONFLICT (user_id) DO UPDATE SET
			language = EXCLUDED.language,
			voice_feedback = EXCLUDED.voice_feedback,
			haptics = EXCLUDED.haptics,
			high_contrast = EXCLUDED.high_contrast,
			preferences = EXCLUDED.preferences,
			updated_at = now()
		RETURNING updated_at`

	err = s.db.QueryRow(ctx, query,
		st.UserID, st.Language, st.VoiceFeedback, st.Haptics, st.HighContrast, prefsJSON,
	).Scan(&st.UpdatedAt)
	if err != nil {
		return transit.Settings{}, fmt.Errorf("store: put settings: %w", err)
	}
	return st, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
