package models

import "time"

// BookingStatus is the lifecycle state of a Booking.
type BookingStatus string

const (
	BookingPending    BookingStatus = "pending"
	BookingConfirmed  BookingStatus = "confirmed"
	BookingInProgress BookingStatus = "in_progress"
	BookingCompleted  BookingStatus = "completed"
	BookingCancelled  BookingStatus = "cancelled"
	BookingRejected   BookingStatus = "rejected"
)

// BookingStatuses lists every lifecycle state.
var BookingStatuses = []BookingStatus{
	BookingPending,
	BookingConfirmed,
	BookingInProgress,
	BookingCompleted,
	BookingCancelled,
	BookingRejected,
}

// IsTerminal reports whether no further transition is permitted from s.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingCompleted, BookingCancelled, BookingRejected:
		return true
	}
	return false
}

// Renegotiable reports whether the booking's schedule may still be changed.
func (s BookingStatus) Renegotiable() bool {
	return s == BookingPending || s == BookingConfirmed
}

func (s BookingStatus) Valid() bool {
	for _, st := range BookingStatuses {
		if st == s {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentQR   PaymentMethod = "qr"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentQR
}

type PaymentStatus string

const (
	// PaymentUnpaid is a cash booking awaiting settlement at the visit.
	PaymentUnpaid PaymentStatus = "unpaid"
	// PaymentPaid is a qr booking whose attempt completed before creation.
	PaymentPaid PaymentStatus = "paid"
	// PaymentCollected marks cash settled out-of-band on completion. Informational only.
	PaymentCollected PaymentStatus = "collected"
)

// Booking is a scheduled care engagement between a care seeker and a caregiver.
type Booking struct {
	ID               string        `bson:"id" json:"id" gorm:"primaryKey;size:64"`
	RequesterID      string        `bson:"requester_id" json:"requesterId" gorm:"index;size:64"`
	ProviderID       string        `bson:"provider_id" json:"providerId" gorm:"index;size:64"`
	ServiceKind      ServiceKind   `bson:"service_kind" json:"serviceKind" gorm:"size:32"`
	Title            string        `bson:"title" json:"title"`
	Description      string        `bson:"description,omitempty" json:"description,omitempty"`
	ScheduledStart   time.Time     `bson:"scheduled_start" json:"scheduledStart" gorm:"index"`
	DurationMinutes  int           `bson:"duration_minutes" json:"durationMinutes"`
	Address          string        `bson:"address,omitempty" json:"address,omitempty"`
	HourlyRate       int64         `bson:"hourly_rate" json:"hourlyRate"`
	Price            int64         `bson:"price" json:"price"` // minor units
	Currency         string        `bson:"currency" json:"currency" gorm:"size:8"`
	PaymentMethod    PaymentMethod `bson:"payment_method" json:"paymentMethod" gorm:"size:16"`
	PaymentStatus    PaymentStatus `bson:"payment_status" json:"paymentStatus" gorm:"size:16"`
	PaymentAttemptID string        `bson:"payment_attempt_id,omitempty" json:"paymentAttemptId,omitempty" gorm:"size:64"`
	PaymentReference string        `bson:"payment_reference,omitempty" json:"paymentReference,omitempty"`
	Status           BookingStatus `bson:"status" json:"status" gorm:"index;size:16"`
	Version          int64         `bson:"version" json:"version"`

	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updatedAt"`
	ConfirmedAt *time.Time `bson:"confirmed_at,omitempty" json:"confirmedAt,omitempty"`
	StartedAt   *time.Time `bson:"started_at,omitempty" json:"startedAt,omitempty"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
	CancelledAt *time.Time `bson:"cancelled_at,omitempty" json:"cancelledAt,omitempty"`
	CancelledBy string     `bson:"cancelled_by,omitempty" json:"cancelledBy,omitempty"`
	RejectedAt  *time.Time `bson:"rejected_at,omitempty" json:"rejectedAt,omitempty"`
}

// EndsAt is the scheduled end of the visit or call.
func (b *Booking) EndsAt() time.Time {
	return b.ScheduledStart.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// IsParty reports whether partyID is the requester or the provider.
func (b *Booking) IsParty(partyID string) bool {
	return partyID != "" && (partyID == b.RequesterID || partyID == b.ProviderID)
}

// CounterpartyOf returns the other party of the booking, or "" if partyID is not a party.
func (b *Booking) CounterpartyOf(partyID string) string {
	switch partyID {
	case "":
		return ""
	case b.RequesterID:
		return b.ProviderID
	case b.ProviderID:
		return b.RequesterID
	}
	return ""
}

// BookingDetails is the care-seeker supplied part of a booking request.
type BookingDetails struct {
	Title           string         `json:"title"`
	Description     string         `json:"description,omitempty"`
	ScheduledStart  time.Time      `json:"scheduledStart"`
	DurationMinutes int            `json:"durationMinutes"`
	Service         ServiceDetails `json:"-"`
}

// PaymentSelection is how the care seeker intends to pay.
type PaymentSelection struct {
	Method    PaymentMethod `json:"method"`
	AttemptID string        `json:"attemptId,omitempty"`
}

// Quote is the price a booking would be created with.
type Quote struct {
	ProviderID      string      `json:"providerId"`
	ServiceKind     ServiceKind `json:"serviceKind"`
	DurationMinutes int         `json:"durationMinutes"`
	HourlyRate      int64       `json:"hourlyRate"`
	Price           int64       `json:"price"`
	Currency        string      `json:"currency"`
}

// BookingFilter selects bookings for directory listings.
type BookingFilter struct {
	RequesterID string
	ProviderID  string
	Statuses    []BookingStatus
	Limit       int
}
