// Package intent turns recognised speech into structured commands.
//
// [Parse] is a pure, total function: it performs no I/O, never returns an
// error and always resolves a transcript to exactly one [Intent] variant.
// Which variant is produced depends on the [Context] the voice session
// recorded when listening started:
//
//   - Global mode (no active field, [DomainGlobal]) scans an ordered
//     navigation table and returns [Navigate] or [Unrecognized].
//   - Field-capture mode ([FieldFrom], [FieldTo], [FieldDate], [FieldTime])
//     returns the trimmed transcript verbatim as a [SetField].
//   - Trip-planning mode ([FieldVoicePlan] or [DomainTrip]) extracts
//     "from X to Y at Z" clauses into a [PlanJourney].
//   - Ticket-order mode ([FieldTicketOrder] or [DomainTicket]) reads the
//     ticket type and payment method on independent axes into a
//     [PurchaseTicket].
//
// Trip-planning extraction is regex based and therefore ambiguous for place
// names that themselves contain " to " or " at ". This is a known
// limitation: the first " to" ends the origin, the first " at" after the
// destination starts the time.
package intent

import "github.com/MrWong99/wayfinder/pkg/transit"

// Kind is the variant tag of an [Intent].
type Kind string

const (
	KindNavigate       Kind = "navigate"
	KindSetField       Kind = "set_field"
	KindPlanJourney    Kind = "plan_journey"
	KindPurchaseTicket Kind = "purchase_ticket"
	KindUnrecognized   Kind = "unrecognized"
)

// Intent is a parsed voice command. The concrete type is one of [Navigate],
// [SetField], [PlanJourney], [PurchaseTicket] or [Unrecognized].
type Intent interface {
	// Kind returns the variant tag.
	Kind() Kind

	isIntent()
}

// Navigate asks the UI to move to another section.
type Navigate struct {
	Destination Section
}

// SetField fills a single form field with the spoken value.
type SetField struct {
	Field Field
	Value string
}

// PlanJourney carries the clauses of a free-form trip request. To may be
// empty, in which case the request must not be submitted.
type PlanJourney struct {
	From string
	To   string
	Time string
}

// PurchaseTicket is a spoken ticket order.
type PurchaseTicket struct {
	TicketType    transit.TicketType
	PaymentMethod transit.PaymentMethod
}

// Unrecognized is the safe fallback when nothing matched.
type Unrecognized struct{}

func (Navigate) Kind() Kind       { return KindNavigate }
func (SetField) Kind() Kind       { return KindSetField }
func (PlanJourney) Kind() Kind    { return KindPlanJourney }
func (PurchaseTicket) Kind() Kind { return KindPurchaseTicket }
func (Unrecognized) Kind() Kind   { return KindUnrecognized }

func (Navigate) isIntent()       {}
func (SetField) isIntent()       {}
func (PlanJourney) isIntent()    {}
func (PurchaseTicket) isIntent() {}
func (Unrecognized) isIntent()   {}

// Field identifies the UI target awaiting a transcript.
type Field string

const (
	// FieldNone means no field is active.
	FieldNone Field = ""

	FieldFrom Field = "from"
	FieldTo   Field = "to"
	FieldDate Field = "date"
	FieldTime Field = "time"

	// FieldVoicePlan is the compound "plan by voice" target.
	FieldVoicePlan Field = "voice-plan"

	// FieldTicketOrder is the spoken ticket order target.
	FieldTicketOrder Field = "ticket-order"
)

// IsCapture reports whether f is a plain text field whose value is the
// transcript verbatim.
func (f Field) IsCapture() bool {
	switch f {
	case FieldFrom, FieldTo, FieldDate, FieldTime:
		return true
	}
	return false
}

// IsValid reports whether f is a known field (including [FieldNone]).
func (f Field) IsValid() bool {
	switch f {
	case FieldNone, FieldVoicePlan, FieldTicketOrder:
		return true
	}
	return f.IsCapture()
}

// Domain is the UI surface a transcript is expected to address.
type Domain string

const (
	DomainGlobal Domain = "global"
	DomainTrip   Domain = "trip"
	DomainTicket Domain = "ticket"
)

// IsValid reports whether d is a known domain.
func (d Domain) IsValid() bool {
	switch d {
	case DomainGlobal, DomainTrip, DomainTicket:
		return true
	}
	return false
}

// DefaultCurrentLocation is used for a missing "from" clause when the
// caller does not supply its own label.
const DefaultCurrentLocation = "Current Location"

// Context is the parse context captured when listening started.
type Context struct {
	Domain      Domain
	ActiveField Field

	// CurrentLocation replaces a missing "from" clause. Empty means
	// [DefaultCurrentLocation].
	CurrentLocation string
}
