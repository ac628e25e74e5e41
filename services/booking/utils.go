package booking

import (
	"slices"
	"strings"
	"time"

	"carelink/models"
	"carelink/services/apperrors"
)

// DefaultDurationOptions are the bookable lengths in minutes.
var DefaultDurationOptions = []int{60, 120, 180, 240, 360, 480}

// NormalizeTime drops sub-second precision so stored and compared times agree
// across stores.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func validateDuration(durationMinutes int, options []int) error {
	if durationMinutes <= 0 {
		return apperrors.Validation("durationMinutes must be positive, got %d", durationMinutes)
	}
	if len(options) > 0 && !slices.Contains(options, durationMinutes) {
		return apperrors.Validation("durationMinutes must be one of %v, got %d", options, durationMinutes)
	}
	return nil
}

func validateBookingRequest(requesterID, providerID string, details models.BookingDetails, payment models.PaymentSelection, options []int, now time.Time) error {
	if strings.TrimSpace(requesterID) == "" {
		return apperrors.Validation("requesterId is required")
	}
	if strings.TrimSpace(providerID) == "" {
		return apperrors.Validation("providerId is required")
	}
	if requesterID == providerID {
		return apperrors.Validation("a caregiver cannot book themselves")
	}
	if details.Service == nil {
		return apperrors.Validation("service details are required")
	}
	if err := details.Service.Validate(); err != nil {
		return apperrors.Validation("%s", err.Error())
	}
	if err := validateDuration(details.DurationMinutes, options); err != nil {
		return err
	}
	if details.ScheduledStart.IsZero() {
		return apperrors.Validation("scheduledStart is required")
	}
	if !details.ScheduledStart.After(now) {
		return apperrors.Validation("scheduledStart must be in the future")
	}
	if !payment.Method.Valid() {
		return apperrors.Validation("paymentMethod must be cash or qr, got %q", payment.Method)
	}
	return nil
}
