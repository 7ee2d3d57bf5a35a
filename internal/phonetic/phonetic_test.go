package phonetic

import (
	"sync"
	"testing"
)

var stops = []string{"Central Station", "Airport", "City Hall", "General Hospital", "University", "Riverside Park"}

func TestCorrector_Correct(t *testing.T) {
	t.Parallel()

	c := NewCorrector(stops, []string{"Current Location"})

	tests := []struct {
		spoken      string
		want        string
		wantChanged bool
	}{
		{"airport", "Airport", true},
		{"Airport", "Airport", false},
		{"  central   STATION ", "Central Station", true},
		{"centrall station", "Central Station", true},
		{"city hal", "City Hall", true},
		{"hospitle", "General Hospital", true},
		{"the airport", "Airport", true},
		{"banana", "banana", false},
		{"home", "home", false},
		{"current location", "current location", false},
		{"Current Location", "Current Location", false},
		{"", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.spoken, func(t *testing.T) {
			t.Parallel()
			got, changed := c.Correct(tc.spoken)
			if got != tc.want || changed != tc.wantChanged {
				t.Errorf("Correct(%q) = %q, %v; want %q, %v", tc.spoken, got, changed, tc.want, tc.wantChanged)
			}
		})
	}
}

func TestIndex_Lookup(t *testing.T) {
	t.Parallel()

	idx := NewIndex(append([]string{"", "  "}, stops...))
	if idx.Len() != len(stops) {
		t.Errorf("Len = %d, want %d", idx.Len(), len(stops))
	}

	res, ok := idx.Lookup("CITY HALL")
	if !ok || res.Stop != "City Hall" || res.Score != 1 {
		t.Errorf("exact lookup = %+v, %v", res, ok)
	}

	res, ok = idx.Lookup("centrall station")
	if !ok || !res.Phonetic || res.Score < DefaultPhoneticThreshold {
		t.Errorf("phonetic lookup = %+v, %v", res, ok)
	}

	if _, ok := NewIndex(nil).Lookup("airport"); ok {
		t.Error("empty index matched")
	}
}

func TestIndex_Thresholds(t *testing.T) {
	t.Parallel()

	// A threshold of 1 accepts only exact token matches.
	strict := NewIndex(stops, WithPhoneticThreshold(1), WithFuzzyThreshold(1))
	if res, ok := strict.Lookup("hospitle"); ok {
		t.Errorf("strict lookup matched %+v", res)
	}
	// Non-positive values keep the defaults.
	lax := NewIndex(stops, WithPhoneticThreshold(0), WithFuzzyThreshold(-1))
	if _, ok := lax.Lookup("hospitle"); !ok {
		t.Error("default thresholds did not match")
	}
}

func TestCorrector_SetStopsConcurrent(t *testing.T) {
	t.Parallel()

	c := NewCorrector(nil, nil)
	if got, changed := c.Correct("airport"); changed {
		t.Fatalf("empty corrector changed text to %q", got)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 50 {
				c.SetStops(stops)
				c.Correct("city hal")
			}
		})
	}
	wg.Wait()

	if got, _ := c.Correct("city hal"); got != "City Hall" {
		t.Errorf("Correct = %q, want City Hall", got)
	}
}
