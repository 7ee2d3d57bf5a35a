package intent

import (
	"regexp"
	"strings"

	"github.com/MrWong99/wayfinder/pkg/transit"
)

// Transcript is the normalised, lower-cased output of the speech recogniser.
type Transcript string

// NewTranscript lower-cases raw recogniser output.
func NewTranscript(raw string) Transcript {
	return Transcript(strings.ToLower(raw))
}

var (
	fromClause = regexp.MustCompile(`\bfrom\s+(.+?)\s+to\b`)
	toClause   = regexp.MustCompile(`\bto\s+(.+?)(?:\s+at\b|$)`)
	atClause   = regexp.MustCompile(`\bat\s+(.+)$`)
)

// Indicator phrases for ticket orders. Cash is checked before card, so a
// transcript naming both pays cash.
var (
	dayPassPhrases = []string{"day pass", "daily"}
	cashPhrases    = []string{"with cash", "using cash"}
	cardPhrases    = []string{"with card", "using card"}
)

// Parse maps t to an [Intent] according to c. It never panics and never
// fails; anything it cannot interpret becomes [Unrecognized].
func Parse(t Transcript, c Context) Intent {
	text := strings.TrimSpace(strings.ToLower(string(t)))

	switch {
	case c.ActiveField.IsCapture():
		return SetField{Field: c.ActiveField, Value: text}
	case c.ActiveField == FieldVoicePlan:
		return parseTrip(text, c)
	case c.ActiveField == FieldTicketOrder:
		return parseTicket(text)
	}

	switch c.Domain {
	case DomainTrip:
		return parseTrip(text, c)
	case DomainTicket:
		return parseTicket(text)
	default:
		return parseNavigation(text)
	}
}

func parseNavigation(text string) Intent {
	if text == "" {
		return Unrecognized{}
	}
	if s, ok := matchSection(text); ok {
		return Navigate{Destination: s}
	}
	return Unrecognized{}
}

func parseTrip(text string, c Context) Intent {
	if text == "" {
		return Unrecognized{}
	}
	from := c.CurrentLocation
	if from == "" {
		from = DefaultCurrentLocation
	}
	if m := fromClause.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); v != "" {
			from = v
		}
	}
	var to, at string
	if m := toClause.FindStringSubmatch(text); m != nil {
		to = strings.TrimSpace(m[1])
	}
	if m := atClause.FindStringSubmatch(text); m != nil {
		at = strings.TrimSpace(m[1])
	}
	return PlanJourney{From: from, To: to, Time: at}
}

func parseTicket(text string) Intent {
	if text == "" {
		return Unrecognized{}
	}
	order := PurchaseTicket{
		TicketType:    transit.TicketSingle,
		PaymentMethod: transit.PayCard,
	}
	if containsAny(text, dayPassPhrases) {
		order.TicketType = transit.TicketDay
	}
	switch {
	case containsAny(text, cashPhrases):
		order.PaymentMethod = transit.PayCash
	case containsAny(text, cardPhrases):
		order.PaymentMethod = transit.PayCard
	}
	return order
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
