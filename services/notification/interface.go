package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carelink/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationService writes inbox entries for session parties. It consumes
// session events as an events.Publisher.
type NotificationService interface {
	Publish(ctx context.Context, evt models.SessionEvent) error
	SendBookingReminder(ctx context.Context, booking *models.Booking) error
	Inbox(ctx context.Context, partyID string, limit int) ([]models.Notification, error)
}

type DefaultNotificationService struct {
	Store  InboxStore
	Logger *zap.Logger
	Now    func() time.Time
}

func NewDefaultNotificationService(store InboxStore, logger *zap.Logger) (*DefaultNotificationService, error) {
	if store == nil {
		return nil, fmt.Errorf("notification service initialization error: inbox store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultNotificationService{Store: store, Logger: logger, Now: time.Now}, nil
}

func formatSessionTime(t time.Time) string {
	return t.UTC().Format("2 January, 3:04 PM")
}

// recipients are the parties other than the actor. Events without a party
// actor go to both sides.
func recipients(evt models.SessionEvent) []string {
	switch evt.ActorID {
	case evt.RequesterID:
		return []string{evt.ProviderID}
	case evt.ProviderID:
		return []string{evt.RequesterID}
	}
	return []string{evt.RequesterID, evt.ProviderID}
}

func describe(evt models.SessionEvent) (title, message string) {
	when := formatSessionTime(evt.ScheduledStart)
	switch evt.Type {
	case models.EventBookingCreated:
		return "New Booking Request", fmt.Sprintf("You have a new booking request for %s.", when)
	case models.EventBookingConfirmed:
		return "Booking Confirmed!", fmt.Sprintf("Your appointment on %s has been confirmed.", when)
	case models.EventBookingRejected:
		return "Booking Declined", fmt.Sprintf("Your booking request for %s was declined.", when)
	case models.EventBookingStarted:
		return "Session Started", fmt.Sprintf("Your session scheduled for %s has started.", when)
	case models.EventBookingCompleted:
		return "Session Completed", fmt.Sprintf("Your session on %s is complete.", when)
	case models.EventBookingCancelled:
		return "Booking Cancelled", fmt.Sprintf("The booking on %s has been cancelled.", when)
	case models.EventScheduleChangeProposed:
		return "New Time Proposed", fmt.Sprintf("A new time of %s was proposed for your booking on %s.", proposed(evt), when)
	case models.EventScheduleChangeAccepted:
		return "New Time Accepted", fmt.Sprintf("Your booking has been moved to %s.", when)
	case models.EventScheduleChangeRejected:
		return "New Time Declined", fmt.Sprintf("Your proposal of %s was declined. The booking stays on %s.", proposed(evt), when)
	case models.EventScheduleChangeCancelled:
		return "Proposal Withdrawn", fmt.Sprintf("The proposal to move your booking on %s was withdrawn.", when)
	}
	return "Booking Update", fmt.Sprintf("Your booking on %s was updated.", when)
}

func proposed(evt models.SessionEvent) string {
	if evt.ProposedStart == nil {
		return "another time"
	}
	return formatSessionTime(*evt.ProposedStart)
}

func (s *DefaultNotificationService) Publish(ctx context.Context, evt models.SessionEvent) error {
	title, message := describe(evt)
	data := map[string]any{
		"bookingId": evt.BookingID,
		"status":    evt.Status,
		"dateTime":  formatSessionTime(evt.ScheduledStart),
	}
	if evt.RequestID != "" {
		data["requestId"] = evt.RequestID
	}
	notifType := strings.ReplaceAll(string(evt.Type), ".", "_")

	for _, party := range recipients(evt) {
		if party == "" {
			continue
		}
		if err := s.push(ctx, party, notifType, title, message, data); err != nil {
			return err
		}
	}
	return nil
}

// SendBookingReminder notifies both parties that a confirmed booking is coming up.
func (s *DefaultNotificationService) SendBookingReminder(ctx context.Context, booking *models.Booking) error {
	when := formatSessionTime(booking.ScheduledStart)
	ends := booking.EndsAt().UTC().Format("3:04 PM")
	data := map[string]any{
		"bookingId": booking.ID,
		"dateTime":  when,
		"endsAt":    ends,
	}

	kind, where := booking.ServiceKind, ""
	if details := models.ServiceDetailsOf(booking); details != nil {
		kind, where = details.Kind(), details.Location()
	}
	label := strings.ReplaceAll(string(kind), "_", " ")
	if where != "" {
		label += " session at " + where
		data["address"] = where
	} else {
		label += " session"
	}
	msg := fmt.Sprintf("Reminder: your %s runs from %s to %s.", label, when, ends)

	for _, party := range []string{booking.RequesterID, booking.ProviderID} {
		if err := s.push(ctx, party, "booking_reminder", "Upcoming Session", msg, data); err != nil {
			return err
		}
	}
	return nil
}

func (s *DefaultNotificationService) Inbox(ctx context.Context, partyID string, limit int) ([]models.Notification, error) {
	return s.Store.List(ctx, partyID, limit)
}

func (s *DefaultNotificationService) push(ctx context.Context, partyID, notifType, title, message string, data map[string]any) error {
	n := models.Notification{
		ID:        uuid.New().String(),
		PartyID:   partyID,
		Type:      notifType,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: s.Now().UTC(),
	}
	if err := s.Store.Push(ctx, n); err != nil {
		s.Logger.Error("Failed to store notification",
			zap.String("partyID", partyID),
			zap.String("type", notifType),
			zap.Error(err))
		return err
	}
	return nil
}
