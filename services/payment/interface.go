package payment

import (
	"context"

	"carelink/models"
)

// PaymentGate guards qr-funded bookings: a booking paid by qr is only created
// from an attempt that reached completed.
type PaymentGate interface {
	OpenAttempt(ctx context.Context, req models.PaymentRequest) (*models.PaymentAttempt, error)
	GetAttempt(ctx context.Context, attemptID string) (*models.PaymentAttempt, error)
	// ConfirmPayment moves a pending attempt to processing and returns once the
	// processor settled it or the processing timeout elapsed.
	ConfirmPayment(ctx context.Context, attemptID string) (*models.PaymentAttempt, error)
	// RetryPayment resets a failed attempt to pending.
	RetryPayment(ctx context.Context, attemptID string) (*models.PaymentAttempt, error)
	// AbandonAttempt discards a pending or failed attempt.
	AbandonAttempt(ctx context.Context, attemptID string) error

	// Authorize is the check run right before a booking is persisted. A qr
	// attempt is marked consumed by bookingID so it funds one booking only.
	Authorize(ctx context.Context, bookingID string, sel models.PaymentSelection, req models.PaymentRequest) (*models.PaymentAuthorization, error)
	// Release undoes Authorize when the booking could not be persisted.
	Release(ctx context.Context, attemptID, bookingID string) error
}

// Processor talks to whatever actually moves the money.
type Processor interface {
	Name() string
	// Open registers the attempt with the processor and returns its reference.
	Open(ctx context.Context, attempt *models.PaymentAttempt) (string, error)
	// Settle blocks until the payment succeeded, failed, or ctx is done.
	Settle(ctx context.Context, attempt *models.PaymentAttempt) error
}
