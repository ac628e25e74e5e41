package booking

import (
	"context"

	"carelink/models"
)

// LifecycleService owns the booking state machine.
type LifecycleService interface {
	CreateBooking(ctx context.Context, requesterID, providerID string, details models.BookingDetails, payment models.PaymentSelection) (*models.Booking, error)
	Confirm(ctx context.Context, bookingID, actingProviderID string) (*models.Booking, error)
	Reject(ctx context.Context, bookingID, actingProviderID string) (*models.Booking, error)
	Start(ctx context.Context, bookingID string) (*models.Booking, error)
	Complete(ctx context.Context, bookingID string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID, actingPartyID string) (*models.Booking, error)

	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	// Quote prices a prospective booking so a qr attempt can be opened for the exact amount.
	Quote(ctx context.Context, providerID string, kind models.ServiceKind, durationMinutes int) (*models.Quote, error)
}

// PaymentAuthorizer is the part of the payment gate booking creation relies on.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, bookingID string, sel models.PaymentSelection, req models.PaymentRequest) (*models.PaymentAuthorization, error)
	Release(ctx context.Context, attemptID, bookingID string) error
}
