package sessionRepo

import (
	"context"
	"errors"

	"carelink/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict means the record changed since it was read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrPendingChangeExists means the booking already has a pending schedule-change request.
	ErrPendingChangeExists = errors.New("a pending schedule change already exists for this booking")
)

// SessionRepository stores bookings and schedule-change requests. Updates are
// optimistic: they apply only if the stored version equals expectedVersion and
// then store expectedVersion+1 on the record.
type SessionRepository interface {
	InsertBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	UpdateBooking(ctx context.Context, booking *models.Booking, expectedVersion int64) error
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)

	InsertScheduleChange(ctx context.Context, req *models.ScheduleChangeRequest) error
	GetScheduleChange(ctx context.Context, requestID string) (*models.ScheduleChangeRequest, error)
	GetPendingScheduleChange(ctx context.Context, bookingID string) (*models.ScheduleChangeRequest, error)
	UpdateScheduleChange(ctx context.Context, req *models.ScheduleChangeRequest, expectedVersion int64) error
	ListScheduleChanges(ctx context.Context, filter models.ScheduleChangeFilter) ([]models.ScheduleChangeRequest, error)

	// ApplyScheduleChange writes an answered request and its booking together, or neither.
	ApplyScheduleChange(
		ctx context.Context,
		req *models.ScheduleChangeRequest,
		reqVersion int64,
		booking *models.Booking,
		bookingVersion int64,
	) error
}
