package intent

import "strings"

// Section is an application section reachable by voice navigation.
type Section string

const (
	SectionAccount     Section = "account"
	SectionPlanJourney Section = "plan"
	SectionTickets     Section = "tickets"
	SectionBoarding    Section = "boarding"
	SectionValidation  Section = "validation"
	SectionAlerts      Section = "alerts"
	SectionSupport     Section = "support"
	SectionSettings    Section = "settings"
)

// Path returns the UI route for s.
func (s Section) Path() string {
	return "/" + string(s)
}

// Label returns the spoken name of s.
func (s Section) Label() string {
	for _, r := range navigationTable {
		if r.Section == s {
			return r.Label
		}
	}
	return string(s)
}

// route pairs a phrase set with the section it selects.
type route struct {
	Section Section
	Label   string
	Phrases []string
}

// navigationTable is evaluated top to bottom; the first entry with any
// phrase contained in the transcript wins. Order matters: "buy ticket" in
// a transcript that also says "plan trip" navigates to Plan Journey.
var navigationTable = []route{
	{Section: SectionAccount, Label: "Account", Phrases: []string{"account", "go to account"}},
	{Section: SectionPlanJourney, Label: "Plan Journey", Phrases: []string{"plan journey", "plan trip"}},
	{Section: SectionTickets, Label: "Tickets", Phrases: []string{"tickets", "buy ticket"}},
	{Section: SectionBoarding, Label: "Boarding", Phrases: []string{"boarding", "assistance"}},
	{Section: SectionValidation, Label: "Validation", Phrases: []string{"validation", "check in"}},
	{Section: SectionAlerts, Label: "Alerts", Phrases: []string{"alerts", "notifications"}},
	{Section: SectionSupport, Label: "Support", Phrases: []string{"support", "help"}},
	{Section: SectionSettings, Label: "Settings", Phrases: []string{"settings", "preferences"}},
}

// Sections returns every navigable section in table order.
func Sections() []Section {
	out := make([]Section, len(navigationTable))
	for i, r := range navigationTable {
		out[i] = r.Section
	}
	return out
}

// matchSection returns the first section whose phrase set matches text.
func matchSection(text string) (Section, bool) {
	for _, r := range navigationTable {
		for _, p := range r.Phrases {
			if strings.Contains(text, p) {
				return r.Section, true
			}
		}
	}
	return "", false
}
