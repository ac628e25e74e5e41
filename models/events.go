package models

import "time"

type SessionEventType string

const (
	EventBookingCreated   SessionEventType = "booking.created"
	EventBookingConfirmed SessionEventType = "booking.confirmed"
	EventBookingRejected  SessionEventType = "booking.rejected"
	EventBookingStarted   SessionEventType = "booking.started"
	EventBookingCompleted SessionEventType = "booking.completed"
	EventBookingCancelled SessionEventType = "booking.cancelled"

	EventScheduleChangeProposed  SessionEventType = "schedule_change.proposed"
	EventScheduleChangeAccepted  SessionEventType = "schedule_change.accepted"
	EventScheduleChangeRejected  SessionEventType = "schedule_change.rejected"
	EventScheduleChangeCancelled SessionEventType = "schedule_change.cancelled"
)

// SessionEvent is a committed fact about a booking or one of its schedule-change requests.
type SessionEvent struct {
	Type           SessionEventType `json:"type"`
	BookingID      string           `json:"bookingId"`
	RequestID      string           `json:"requestId,omitempty"`
	RequesterID    string           `json:"requesterId"`
	ProviderID     string           `json:"providerId"`
	ActorID        string           `json:"actorId,omitempty"`
	Status         string           `json:"status"`
	ScheduledStart time.Time        `json:"scheduledStart"`
	ProposedStart  *time.Time       `json:"proposedStart,omitempty"`
	OccurredAt     time.Time        `json:"occurredAt"`
}

// BookingEvent builds the event for a booking transition.
func BookingEvent(t SessionEventType, b *Booking, actorID string, at time.Time) SessionEvent {
	return SessionEvent{
		Type:           t,
		BookingID:      b.ID,
		RequesterID:    b.RequesterID,
		ProviderID:     b.ProviderID,
		ActorID:        actorID,
		Status:         string(b.Status),
		ScheduledStart: b.ScheduledStart,
		OccurredAt:     at,
	}
}

// ScheduleChangeEvent builds the event for a schedule-change transition.
func ScheduleChangeEvent(t SessionEventType, b *Booking, r *ScheduleChangeRequest, actorID string, at time.Time) SessionEvent {
	evt := BookingEvent(t, b, actorID, at)
	evt.RequestID = r.ID
	evt.Status = string(r.Status)
	proposed := r.ProposedDateTime
	evt.ProposedStart = &proposed
	return evt
}
