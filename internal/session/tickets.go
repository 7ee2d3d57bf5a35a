package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/wayfinder/internal/feedback"
	"github.com/MrWong99/wayfinder/internal/ticket"
	"github.com/MrWong99/wayfinder/pkg/transit"
)

// Purchase buys a ticket and announces the outcome. Insufficient cash is
// announced with its own message.
func (s *Session) Purchase(ctx context.Context, tt transit.TicketType, pm transit.PaymentMethod) (transit.Ticket, error) {
	if err := s.require(SurfaceTicket); err != nil {
		return transit.Ticket{}, err
	}
	return s.purchase(ctx, s.fb, tt, pm)
}

func (s *Session) purchase(ctx context.Context, fb feedback.Channel, tt transit.TicketType, pm transit.PaymentMethod) (transit.Ticket, error) {
	t, err := s.svc.Tickets.Purchase(ctx, s.userID, tt, pm)
	switch {
	case err == nil:
		s.mu.Lock()
		s.lastTicket = &t
		s.mu.Unlock()
		fb.Announce(ctx, ticketPurchased(t.TicketID))
		fb.Vibrate(ctx, feedback.PulseSuccess)
		return t, nil
	case errors.Is(err, ticket.ErrInsufficientFunds):
		fb.Announce(ctx, msgInsufficientFunds)
	default:
		slog.Error("session: ticket purchase failed", "user_id", s.userID, "type", tt, "payment", pm, "err", err)
		fb.Announce(ctx, msgPurchaseFailed)
	}
	fb.Vibrate(ctx, feedback.PulseError)
	return transit.Ticket{}, fmt.Errorf("session: purchase: %w", err)
}

// Validate stamps a ticket and announces the outcome.
func (s *Session) Validate(ctx context.Context, ticketID string) (transit.Ticket, error) {
	if err := s.require(SurfaceTicket); err != nil {
		return transit.Ticket{}, err
	}
	t, err := s.svc.Tickets.Validate(ctx, s.userID, ticketID)
	if err != nil {
		slog.Warn("session: ticket validation failed", "user_id", s.userID, "ticket_id", ticketID, "err", err)
		s.fb.Announce(ctx, msgValidationFailed)
		s.fb.Vibrate(ctx, feedback.PulseError)
		return transit.Ticket{}, fmt.Errorf("session: validate: %w", err)
	}
	s.fb.Announce(ctx, msgTicketValidated)
	s.fb.Vibrate(ctx, feedback.PulseSuccess)
	return t, nil
}

// NotifyValidator tells the rider that staff were alerted to check their
// digital ticket.
func (s *Session) NotifyValidator(ctx context.Context) error {
	if err := s.require(SurfaceTicket); err != nil {
		return err
	}
	slog.Info("session: validator notified", "user_id", s.userID)
	s.fb.Announce(ctx, msgValidatorNotified)
	s.fb.Vibrate(ctx, feedback.PulseNotify)
	return nil
}

// AnnounceTopUpLocations reads out where cash can be added and returns the
// list.
func (s *Session) AnnounceTopUpLocations(ctx context.Context) ([]string, error) {
	if err := s.require(SurfaceTicket); err != nil {
		return nil, err
	}
	locs := s.svc.Tickets.TopUpLocations()
	s.fb.Announce(ctx, topUpAt(locs))
	return locs, nil
}
