// Package transit defines the shared domain types used across Wayfinder
// packages: candidate journeys, rider preferences, familiarity records and
// ticketing vocabulary.
//
// These types are the lingua franca between the planner, the ranking engine,
// the ticket service, the store and the voice session layer. Packages define
// their own behaviour, but cross-cutting data lives here to avoid circular
// imports.
package transit

import (
	"strings"
	"time"
)

// Step is one leg of a [Journey].
type Step struct {
	// Mode is the vehicle or movement type (e.g., "Bus", "Metro", "Walk").
	Mode string `json:"mode" yaml:"mode"`

	// Route is the line identifier within Mode (e.g., "12", "Blue Line").
	// "N/A" for walking legs.
	Route string `json:"route" yaml:"route"`

	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`

	// DurationMinutes is the leg duration. Never negative.
	DurationMinutes int `json:"durationMinutes" yaml:"duration_minutes"`
}

// Describe returns a short spoken description of the step.
func (s Step) Describe() string {
	var b strings.Builder
	b.WriteString(s.Mode)
	if s.Route != "" && s.Route != "N/A" {
		b.WriteString(" ")
		b.WriteString(s.Route)
	}
	b.WriteString(" from ")
	b.WriteString(s.From)
	b.WriteString(" to ")
	b.WriteString(s.To)
	return b.String()
}

// Journey is a candidate itinerary produced by a planning collaborator.
// Journeys are immutable once produced; consumers that need to annotate them
// copy the value (see [Journey.Clone]).
type Journey struct {
	ID      string `json:"id" yaml:"id"`
	Summary string `json:"summary" yaml:"summary"`

	DurationMinutes int `json:"duration" yaml:"duration_minutes"`
	Transfers       int `json:"transfers" yaml:"transfers"`

	// Accessibility is a human-readable label such as "Wheelchair accessible".
	Accessibility string `json:"accessibility" yaml:"accessibility"`

	DepartureTime string `json:"departureTime" yaml:"departure_time"`
	ArrivalTime   string `json:"arrivalTime" yaml:"arrival_time"`

	Steps []Step `json:"steps" yaml:"steps"`
}

// Key returns the composite identity used to look up familiarity records.
func (j Journey) Key() JourneyKey {
	return JourneyKey{ID: j.ID, Summary: j.Summary}
}

// Clone returns a deep copy of j so that the copy's Steps do not alias the
// original's backing array.
func (j Journey) Clone() Journey {
	c := j
	if j.Steps != nil {
		c.Steps = make([]Step, len(j.Steps))
		copy(c.Steps, j.Steps)
	}
	return c
}

// Details returns the spoken route details: every step description joined
// with ", then ".
func (j Journey) Details() string {
	parts := make([]string, len(j.Steps))
	for i, s := range j.Steps {
		parts[i] = s.Describe()
	}
	return strings.Join(parts, ", then ")
}

// JourneyKey identifies a journey for familiarity purposes. Both fields must
// match: a route whose description changes is treated as a different route.
type JourneyKey struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
}

// FamiliarityRecord counts how often a rider has used a journey.
type FamiliarityRecord struct {
	Key       JourneyKey `json:"key"`
	TimesUsed int        `json:"timesUsed"`
}

// Familiarity maps journey keys to their usage records. It is a snapshot:
// readers never write to it.
type Familiarity map[JourneyKey]FamiliarityRecord

// Preferences are the rider's stated constraints for trip planning.
type Preferences struct {
	LowFloor             bool `json:"lowFloor" yaml:"low_floor"`
	FewerTransfers       bool `json:"fewerTransfers" yaml:"fewer_transfers"`
	Wheelchair           bool `json:"wheelchair" yaml:"wheelchair"`
	PreferFamiliarRoutes bool `json:"preferFamiliarRoutes" yaml:"prefer_familiar_routes"`
}

// TicketType is the fare product being purchased.
type TicketType string

const (
	TicketSingle TicketType = "single"
	TicketDay    TicketType = "day"
)

// IsValid reports whether t is a known ticket type.
func (t TicketType) IsValid() bool {
	return t == TicketSingle || t == TicketDay
}

// PaymentMethod selects how a ticket is paid for.
type PaymentMethod string

const (
	PayCard PaymentMethod = "card"
	PayCash PaymentMethod = "cash"
)

// IsValid reports whether m is a known payment method.
func (m PaymentMethod) IsValid() bool {
	return m == PayCard || m == PayCash
}

// Ticket is a purchased fare product.
type Ticket struct {
	TicketID      string        `json:"ticketId"`
	UserID        string        `json:"userId"`
	Type          TicketType    `json:"type"`
	PriceCents    int64         `json:"price"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	PurchasedAt   time.Time     `json:"purchasedAt"`
	ValidUntil    time.Time     `json:"validUntil"`

	// ValidatedAt is nil until the ticket has been validated on board.
	ValidatedAt *time.Time `json:"validatedAt,omitempty"`
}

// ActiveAt reports whether the ticket can still be used at t.
func (t Ticket) ActiveAt(at time.Time) bool {
	return at.Before(t.ValidUntil)
}

// SavedJourney is a journey a rider planned or saved for later.
type SavedJourney struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Time      string    `json:"time,omitempty"`
	Journey   Journey   `json:"journey"`
	Saved     bool      `json:"saved"`
	CreatedAt time.Time `json:"createdAt"`
}

// Alert is a service notification addressed to a rider.
type Alert struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Route     string    `json:"route,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Settings are a rider's persisted accessibility and planning settings.
type Settings struct {
	UserID        string      `json:"userId"`
	Language      string      `json:"language"`
	VoiceFeedback bool        `json:"voiceFeedback"`
	Haptics       bool        `json:"haptics"`
	HighContrast  bool        `json:"highContrast"`
	Preferences   Preferences `json:"preferences"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// DefaultSettings returns the settings a rider starts with.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:        userID,
		Language:      "en",
		VoiceFeedback: true,
		Haptics:       true,
	}
}

// SettingsPatch is a partial update to [Settings]. Nil fields are left
// unchanged.
type SettingsPatch struct {
	Language      *string      `json:"language,omitempty"`
	VoiceFeedback *bool        `json:"voiceFeedback,omitempty"`
	Haptics       *bool        `json:"haptics,omitempty"`
	HighContrast  *bool        `json:"highContrast,omitempty"`
	Preferences   *Preferences `json:"preferences,omitempty"`
}

// Apply returns s with every non-nil field of p applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.VoiceFeedback != nil {
		s.VoiceFeedback = *p.VoiceFeedback
	}
	if p.Haptics != nil {
		s.Haptics = *p.Haptics
	}
	if p.HighContrast != nil {
		s.HighContrast = *p.HighContrast
	}
	if p.Preferences != nil {
		s.Preferences = *p.Preferences
	}
	return s
}
