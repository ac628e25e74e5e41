package models

import "time"

// ReminderPayload is carried by a queued booking reminder. ScheduledStart lets
// the worker drop reminders for a start time that has since moved.
type ReminderPayload struct {
	BookingID      string    `json:"bookingId"`
	ScheduledStart time.Time `json:"scheduledStart"`
	FireDate       string    `json:"fireDate,omitempty"`
}
