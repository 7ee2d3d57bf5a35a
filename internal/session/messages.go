package session

import (
	"fmt"
	"strings"

	"github.com/MrWong99/wayfinder/internal/intent"
)

// Fixed user-facing messages.
const (
	msgNotRecognized           = "Command not recognized"
	msgNavigationNotRecognized = `Command not recognized. Try saying "Go to Account" or "Plan Journey"`
	msgEnterDestination        = "Please enter a destination"
	msgPlanningFailed          = "Journey planning failed. Please try again."
	msgTicketPrompt            = "Listening for ticket order"
	msgInsufficientFunds       = "Insufficient cash balance. Please top up or use a card."
	msgPurchaseFailed          = "Ticket purchase failed. Please try again."
	msgTicketValidated         = "Ticket validated"
	msgValidationFailed        = "Ticket validation failed. Please try again."
	msgValidatorNotified       = "Validator notified of digital ticket"
	msgRouteUnknown            = "Route not found. Please plan a journey first."
)

func fieldPrompt(f intent.Field) string {
	const prefix = "Listening to voice command. "
	switch f {
	case intent.FieldVoicePlan:
		return prefix + "Speak your trip"
	case intent.FieldFrom:
		return prefix + "Speak your starting location"
	case intent.FieldTo:
		return prefix + "Speak your destination"
	default:
		return prefix + "Speak your " + string(f)
	}
}

func navigatedTo(s intent.Section) string {
	return "Navigated to " + s.Label()
}

func fieldSet(f intent.Field, value string) string {
	return fmt.Sprintf("%s set to %s", f, value)
}

func planningJourney(from, to, at string) string {
	msg := fmt.Sprintf("Planning journey from %s to %s", from, to)
	if at != "" {
		msg += " at " + at
	}
	return msg
}

func foundRoutes(n int) string {
	return fmt.Sprintf("Found %d route options", n)
}

func ticketPurchased(id string) string {
	return "Ticket purchased successfully. Ticket ID: " + id
}

func routeSaved(id string) string {
	return fmt.Sprintf("Route %s saved for later use", id)
}

func routeDetails(details string) string {
	return "Route details: " + details
}

func topUpAt(locations []string) string {
	return "Top up cash at " + strings.Join(locations, ", ")
}
