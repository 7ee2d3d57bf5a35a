package session

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/wayfinder/internal/store"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

// FamiliarityGuard wraps a [store.Familiarity] and makes all operations
// non-fatal. A failing read yields an empty history so ranking still runs;
// a failing write is logged and dropped. [FamiliarityGuard.IsDegraded]
// reports whether the last operation failed.
//
// All methods are safe for concurrent use.
type FamiliarityGuard struct {
	store    store.Familiarity
	degraded atomic.Bool
}

var _ store.Familiarity = (*FamiliarityGuard)(nil)

// NewFamiliarityGuard creates a [FamiliarityGuard] around s.
func NewFamiliarityGuard(s store.Familiarity) *FamiliarityGuard {
	return &FamiliarityGuard{store: s}
}

// RecordUsage counts one use of key. On failure the error is logged and
// swallowed and a zero record is returned.
func (g *FamiliarityGuard) RecordUsage(ctx context.Context, userID string, key transit.JourneyKey) (transit.FamiliarityRecord, error) {
	rec, err := g.store.RecordUsage(ctx, userID, key)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("session: familiarity guard: RecordUsage failed, swallowing error",
			"user_id", userID, "journey_id", key.ID, "err", err)
		return transit.FamiliarityRecord{Key: key}, nil
	}
	g.degraded.Store(false)
	return rec, nil
}

// ListFamiliarity returns the rider's usage records, or an empty slice
// when the store fails.
func (g *FamiliarityGuard) ListFamiliarity(ctx context.Context, userID string) ([]transit.FamiliarityRecord, error) {
	recs, err := g.store.ListFamiliarity(ctx, userID)
	if err != nil {
		g.degraded.Store(true)
		slog.Warn("session: familiarity guard: ListFamiliarity failed, returning empty",
			"user_id", userID, "err", err)
		return []transit.FamiliarityRecord{}, nil
	}
	g.degraded.Store(false)
	return recs, nil
}

// IsDegraded reports whether the most recent operation failed.
func (g *FamiliarityGuard) IsDegraded() bool {
	return g.degraded.Load()
}
