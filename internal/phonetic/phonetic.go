// Package phonetic corrects misrecognised stop names in spoken trip
// endpoints.
//
// Speech recognisers often return near-misses for proper nouns ("centrall
// station", "hospitle"). An [Index] matches such text against the known
// stop names in two passes:
//
//  1. Phonetic: Double Metaphone codes of every token are compared; a stop
//     sharing at least one code is a candidate and is accepted when its
//     Jaro-Winkler similarity reaches the phonetic threshold.
//  2. Fuzzy: when no phonetic candidate is accepted, pure Jaro-Winkler
//     similarity is tested against the stricter fuzzy threshold.
//
// A [Corrector] wraps an index with the labels that must never be
// rewritten, such as the current-location placeholder.
package phonetic

import (
	"strings"
	"sync/atomic"

	"github.com/antzucaro/matchr"
)

const (
	DefaultPhoneticThreshold = 0.70
	DefaultFuzzyThreshold    = 0.85
)

// Option configures an [Index].
type Option func(*thresholds)

type thresholds struct {
	phonetic float64
	fuzzy    float64
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching stop. Non-positive values keep the default.
func WithPhoneticThreshold(v float64) Option {
	return func(t *thresholds) {
		if v > 0 {
			t.phonetic = v
		}
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a stop with no
// phonetic overlap. Non-positive values keep the default.
func WithFuzzyThreshold(v float64) Option {
	return func(t *thresholds) {
		if v > 0 {
			t.fuzzy = v
		}
	}
}

// Result is a successful lookup.
type Result struct {
	// Stop is the canonical stop name.
	Stop string

	// Score is the Jaro-Winkler similarity in [0, 1]; 1 for exact matches.
	Score float64

	// Phonetic is true when the stop was accepted in the phonetic pass.
	Phonetic bool
}

type entry struct {
	name   string
	lower  string
	tokens []string
	codes  map[string]struct{}
}

// Index is an immutable set of stop names prepared for matching. It is safe
// for concurrent use.
type Index struct {
	th      thresholds
	entries []entry
	exact   map[string]string
}

// NewIndex prepares stops for matching. Blank names are ignored.
func NewIndex(stops []string, opts ...Option) *Index {
	th := thresholds{phonetic: DefaultPhoneticThreshold, fuzzy: DefaultFuzzyThreshold}
	for _, o := range opts {
		o(&th)
	}
	idx := &Index{th: th, exact: make(map[string]string, len(stops))}
	for _, s := range stops {
		lower := normalize(s)
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		idx.entries = append(idx.entries, entry{
			name:   strings.TrimSpace(s),
			lower:  lower,
			tokens: tokens,
			codes:  metaphoneCodes(tokens),
		})
		if _, dup := idx.exact[lower]; !dup {
			idx.exact[lower] = strings.TrimSpace(s)
		}
	}
	return idx
}

// Len returns the number of indexed stops.
func (idx *Index) Len() int { return len(idx.entries) }

// Lookup finds the stop that best matches spoken.
func (idx *Index) Lookup(spoken string) (Result, bool) {
	lower := normalize(spoken)
	if lower == "" || len(idx.entries) == 0 {
		return Result{}, false
	}
	if name, ok := idx.exact[lower]; ok {
		return Result{Stop: name, Score: 1, Phonetic: true}, true
	}

	tokens := strings.Fields(lower)
	codes := metaphoneCodes(tokens)

	var best Result
	for _, e := range idx.entries {
		score := similarity(tokens, e.tokens, lower, e.lower)
		if overlaps(codes, e.codes) {
			if score >= idx.th.phonetic && (!best.Phonetic || score > best.Score) {
				best = Result{Stop: e.name, Score: score, Phonetic: true}
			}
			continue
		}
		if !best.Phonetic && score >= idx.th.fuzzy && score > best.Score {
			best = Result{Stop: e.name, Score: score}
		}
	}
	return best, best.Stop != ""
}

// Corrector rewrites spoken endpoints to canonical stop names. The stop
// list can be replaced at runtime with [Corrector.SetStops]. It is safe for
// concurrent use.
type Corrector struct {
	opts  []Option
	skip  map[string]struct{}
	index atomic.Pointer[Index]
}

// NewCorrector creates a [Corrector] over stops. Text equal to one of the
// skip labels (case-insensitive) is never corrected.
func NewCorrector(stops []string, skip []string, opts ...Option) *Corrector {
	c := &Corrector{opts: opts, skip: make(map[string]struct{}, len(skip))}
	for _, s := range skip {
		c.skip[normalize(s)] = struct{}{}
	}
	c.SetStops(stops)
	return c
}

// SetStops rebuilds the index from stops.
func (c *Corrector) SetStops(stops []string) {
	c.index.Store(NewIndex(stops, c.opts...))
}

// Correct returns the canonical stop name for spoken, or spoken unchanged
// when it is a skip label or nothing matches. The second result reports
// whether the text was changed.
func (c *Corrector) Correct(spoken string) (string, bool) {
	if _, ok := c.skip[normalize(spoken)]; ok {
		return spoken, false
	}
	res, ok := c.index.Load().Lookup(spoken)
	if !ok || res.Stop == spoken {
		return spoken, false
	}
	return res.Stop, true
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// metaphoneCodes returns the union of primary and secondary Double
// Metaphone codes of tokens. Empty codes are dropped.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		for _, c := range [...]string{primary, secondary} {
			if c != "" {
				codes[c] = struct{}{}
			}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score of the full strings, the
// strings with spaces removed, and every token pair.
func similarity(aTokens, bTokens []string, a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if len(aTokens) > 1 || len(bTokens) > 1 {
		score = max(score, matchr.JaroWinkler(strings.Join(aTokens, ""), strings.Join(bTokens, ""), false))
	}
	for _, at := range aTokens {
		for _, bt := range bTokens {
			score = max(score, matchr.JaroWinkler(at, bt, false))
		}
	}
	return score
}
