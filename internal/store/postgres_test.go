package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/wayfinder/pkg/transit"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// rowOf returns a mockRow that scans values into the destinations in order.
func rowOf(values ...any) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error { return assign(dest, values) }}
}

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error { return assign(dest, r.data[r.idx-1]) }

func assign(dest, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(values), len(dest))
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *int64:
			*d = v.(int64)
		case *bool:
			*d = v.(bool)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		case **time.Time:
			if v == nil {
				*d = nil
			} else {
				tv := v.(time.Time)
				*d = &tv
			}
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements the DB interface for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	execSQL []string
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = append(m.execSQL, sql)
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := NewPostgresStore(db, 0)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execSQL) != 1 || db.execSQL[0] != Schema {
		t.Error("Migrate did not execute Schema")
	}

	db.execFunc = func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	if err := s.Migrate(context.Background()); err == nil || !strings.Contains(err.Error(), "store: migrate") {
		t.Errorf("Migrate err = %v, want wrapped error", err)
	}
}

func TestPostgresStore_CreateTicketDuplicate(t *testing.T) {
	t.Parallel()

	db := &mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
	}}
	s := NewPostgresStore(db, 0)
	err := s.CreateTicket(context.Background(), transit.Ticket{TicketID: "TKT-1"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
}

func TestPostgresStore_GetTicket(t *testing.T) {
	t.Parallel()

	purchased := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	validated := purchased.Add(5 * time.Minute)

	db := &mockDB{queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
		if args[0] != "TKT-1" || args[1] != "u1" {
			return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
		}
		return rowOf("TKT-1", "u1", "single", int64(350), "cash", purchased, purchased.Add(90*time.Minute), validated)
	}}
	s := NewPostgresStore(db, 0)

	got, err := s.GetTicket(context.Background(), "u1", "TKT-1")
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if got.Type != transit.TicketSingle || got.PaymentMethod != transit.PayCash || got.PriceCents != 350 {
		t.Errorf("ticket = %+v", got)
	}
	if got.ValidatedAt == nil || !got.ValidatedAt.Equal(validated) {
		t.Errorf("ValidatedAt = %v, want %v", got.ValidatedAt, validated)
	}

	if _, err := s.GetTicket(context.Background(), "u2", "TKT-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign GetTicket err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_ListTickets(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	rows := &mockRows{data: [][]any{
		{"TKT-2", "u1", "day", int64(1200), "card", now, now.Add(15 * time.Hour), nil},
		{"TKT-1", "u1", "single", int64(350), "cash", now.Add(-time.Hour), now.Add(30 * time.Minute), nil},
	}}
	db := &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) { return rows, nil }}

	got, err := NewPostgresStore(db, 0).ListTickets(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(got) != 2 || got[0].TicketID != "TKT-2" || got[1].ValidatedAt != nil {
		t.Errorf("ListTickets = %+v", got)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
}

func TestPostgresStore_DebitInsufficientFunds(t *testing.T) {
	t.Parallel()

	var ensured bool
	db := &mockDB{
		execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if strings.Contains(sql, "ON CONFLICT (user_id) DO NOTHING") && args[1] == int64(500) {
				ensured = true
			}
			return pgconn.CommandTag{}, nil
		},
		// The guarded UPDATE matches no row when the balance is too low.
		queryRowFunc: func(context.Context, string, ...any) pgx.Row {
			return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
		},
	}
	s := NewPostgresStore(db, 500)

	if _, err := s.Debit(context.Background(), "u1", 1200); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("Debit err = %v, want ErrInsufficientFunds", err)
	}
	if !ensured {
		t.Error("Debit did not create the wallet with the starting balance")
	}
}

func TestPostgresStore_DebitAndCredit(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
		switch {
		case strings.Contains(sql, "balance_cents >= $2"):
			return rowOf(int64(150))
		case strings.Contains(sql, "wallets.balance_cents + $2"):
			if args[2] != int64(500) {
				return &mockRow{scanFunc: func(...any) error { return errors.New("starting balance not passed") }}
			}
			return rowOf(int64(1150))
		}
		return &mockRow{scanFunc: func(...any) error { return fmt.Errorf("unexpected query %q", sql) }}
	}}
	s := NewPostgresStore(db, 500)
	ctx := context.Background()

	if bal, err := s.Debit(ctx, "u1", 350); err != nil || bal != 150 {
		t.Errorf("Debit = %d, %v, want 150", bal, err)
	}
	if bal, err := s.Credit(ctx, "u1", 1000); err != nil || bal != 1150 {
		t.Errorf("Credit = %d, %v, want 1150", bal, err)
	}
}

func TestPostgresStore_SaveAndListJourneys(t *testing.T) {
	t.Parallel()

	var inserted []byte
	db := &mockDB{execFunc: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
		inserted = args[5].([]byte)
		return pgconn.CommandTag{}, nil
	}}
	s := NewPostgresStore(db, 0)
	ctx := context.Background()

	journey := transit.Journey{ID: "3", Summary: "Metro Red Line direct", DurationMinutes: 20,
		Steps: []transit.Step{{Mode: "Metro", Route: "Red Line", From: "Central Station", To: "Airport", DurationMinutes: 20}}}
	saved, err := s.SaveJourney(ctx, transit.SavedJourney{UserID: "u1", From: "Central Station", To: "Airport", Journey: journey, Saved: true})
	if err != nil {
		t.Fatalf("SaveJourney: %v", err)
	}
	if saved.ID == "" {
		t.Error("SaveJourney did not assign an ID")
	}

	db.queryFunc = func(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
		if args[1] != true {
			t.Errorf("savedOnly arg = %v, want true", args[1])
		}
		return &mockRows{data: [][]any{
			{saved.ID, "u1", "Central Station", "Airport", "", inserted, true, saved.CreatedAt},
		}}, nil
	}
	list, err := s.ListJourneys(ctx, "u1", true)
	if err != nil {
		t.Fatalf("ListJourneys: %v", err)
	}
	if len(list) != 1 || list[0].Journey.Steps[0].Route != "Red Line" {
		t.Errorf("ListJourneys = %+v", list)
	}
}

func TestPostgresStore_RecordUsage(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryRowFunc: func(_ context.Context, sql string, args ...any) pgx.Row {
		if !strings.Contains(sql, "times_used = journey_familiarity.times_used + 1") {
			t.Errorf("unexpected query %q", sql)
		}
		return rowOf(6)
	}}
	key := transit.JourneyKey{ID: "1", Summary: "Bus 12 → Metro Blue Line"}
	rec, err := NewPostgresStore(db, 0).RecordUsage(context.Background(), "u1", key)
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if rec.Key != key || rec.TimesUsed != 6 {
		t.Errorf("record = %+v", rec)
	}
}

func TestPostgresStore_MarkAlertReadNotFound(t *testing.T) {
	t.Parallel()

	db := &mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}}
	err := NewPostgresStore(db, 0).MarkAlertRead(context.Background(), "u1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	db.execFunc = func(context.Context, string, ...any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	if err := NewPostgresStore(db, 0).MarkAlertRead(context.Background(), "u1", "a1"); err != nil {
		t.Errorf("MarkAlertRead: %v", err)
	}
}

func TestPostgresStore_GetSettings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// No row: defaults.
	s := NewPostgresStore(&mockDB{}, 0)
	st, err := s.GetSettings(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if st != transit.DefaultSettings("u1") {
		t.Errorf("settings = %+v, want defaults", st)
	}

	prefs, _ := json.Marshal(transit.Preferences{Wheelchair: true, PreferFamiliarRoutes: true})
	updated := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s = NewPostgresStore(&mockDB{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
		return rowOf("u1", "de", false, true, true, prefs, updated)
	}}, 0)
	st, err = s.GetSettings(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if st.Language != "de" || st.VoiceFeedback || !st.Preferences.Wheelchair || !st.Preferences.PreferFamiliarRoutes {
		t.Errorf("settings = %+v", st)
	}
}

func TestIsDuplicateKeyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true},
		{"other code", &pgconn.PgError{Code: "23503"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := isDuplicateKeyError(tc.err); got != tc.want {
				t.Errorf("isDuplicateKeyError = %v, want %v", got, tc.want)
			}
		})
	}
}
