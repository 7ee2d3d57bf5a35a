// Package ranking orders candidate journeys by rider preference and history.
//
// [Rank] is pure: it reads its inputs, never mutates them and returns a new
// slice of the same length. Familiarity overlays ([Ranked.IsFamiliar],
// [Ranked.TimesUsed]) are recomputed on every call and never written back
// to the candidates.
package ranking

import (
	"cmp"
	"slices"

	"github.com/MrWong99/wayfinder/pkg/transit"
)

// Ranked is a candidate journey annotated for display.
type Ranked struct {
	transit.Journey

	// IsFamiliar is true only when the rider has used this exact journey
	// (same ID and summary) and opted into familiar-route promotion.
	IsFamiliar bool `json:"isFamiliar"`

	// TimesUsed is the recorded usage count, or 0 when unknown. It is set
	// regardless of the promotion preference.
	TimesUsed int `json:"timesUsed"`
}

// Rank annotates candidates with familiarity and, when
// prefs.PreferFamiliarRoutes is set, moves familiar journeys to the front
// ordered by descending usage. All other relative orders are preserved.
func Rank(candidates []transit.Journey, prefs transit.Preferences, fam transit.Familiarity) []Ranked {
	out := make([]Ranked, len(candidates))
	for i, c := range candidates {
		rec, ok := fam[c.Key()]
		out[i] = Ranked{
			Journey:    c.Clone(),
			IsFamiliar: ok && prefs.PreferFamiliarRoutes,
		}
		if ok {
			out[i].TimesUsed = rec.TimesUsed
		}
	}

	if prefs.PreferFamiliarRoutes {
		slices.SortStableFunc(out, compareFamiliar)
	}
	return out
}

// compareFamiliar puts familiar journeys first and orders them by usage.
// Unfamiliar journeys compare equal so the stable sort keeps their order.
func compareFamiliar(a, b Ranked) int {
	switch {
	case a.IsFamiliar && b.IsFamiliar:
		return cmp.Compare(b.TimesUsed, a.TimesUsed)
	case a.IsFamiliar:
		return -1
	case b.IsFamiliar:
		return 1
	default:
		return 0
	}
}

// FromRecords builds a [transit.Familiarity] snapshot from records. Later
// records for the same key replace earlier ones.
func FromRecords(records []transit.FamiliarityRecord) transit.Familiarity {
	fam := make(transit.Familiarity, len(records))
	for _, r := range records {
		fam[r.Key] = r
	}
	return fam
}
