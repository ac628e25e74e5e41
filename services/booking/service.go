package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	caregiverRepo "carelink/database/repository/caregiver"
	sessionRepo "carelink/database/repository/session"
	"carelink/models"
	"carelink/services/apperrors"
	"carelink/services/events"
	"carelink/services/tasks"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("carelink/services/booking")

// maxTransitionAttempts bounds the retries after a version conflict that did
// not change the booking's status.
const maxTransitionAttempts = 3

// DefaultLifecycleService implements LifecycleService.
type DefaultLifecycleService struct {
	Repo       sessionRepo.SessionRepository
	Caregivers caregiverRepo.CaregiverRepository
	Payments   PaymentAuthorizer
	Events     events.Publisher
	Reminders  tasks.ReminderScheduler
	Logger     *zap.Logger
	Now        func() time.Time

	DurationOptions []int
	Currency        string
}

func NewLifecycleService(
	repo sessionRepo.SessionRepository,
	caregivers caregiverRepo.CaregiverRepository,
	payments PaymentAuthorizer,
	publisher events.Publisher,
	reminders tasks.ReminderScheduler,
	logger *zap.Logger,
) *DefaultLifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.LogPublisher{Logger: logger}
	}
	if reminders == nil {
		reminders = tasks.NoopReminderScheduler{}
	}
	return &DefaultLifecycleService{
		Repo:            repo,
		Caregivers:      caregivers,
		Payments:        payments,
		Events:          publisher,
		Reminders:       reminders,
		Logger:          logger,
		Now:             time.Now,
		DurationOptions: DefaultDurationOptions,
	}
}

func (s *DefaultLifecycleService) now() time.Time {
	if s.Now != nil {
		return NormalizeTime(s.Now())
	}
	return NormalizeTime(time.Now())
}

func (s *DefaultLifecycleService) CreateBooking(ctx context.Context, requesterID, providerID string, details models.BookingDetails, payment models.PaymentSelection) (*models.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.CreateBooking", trace.WithAttributes(
		attribute.String("provider.id", providerID),
		attribute.String("payment.method", string(payment.Method)),
	))
	defer span.End()

	now := s.now()
	details.ScheduledStart = NormalizeTime(details.ScheduledStart)
	if err := validateBookingRequest(requesterID, providerID, details, payment, s.DurationOptions, now); err != nil {
		return nil, err
	}

	quote, err := s.Quote(ctx, providerID, details.Service.Kind(), details.DurationMinutes)
	if err != nil {
		return nil, err
	}

	bookingID := uuid.New().String()
	auth, err := s.Payments.Authorize(ctx, bookingID, payment, models.PaymentRequest{
		PayerID:    requesterID,
		ProviderID: providerID,
		Amount:     quote.Price,
		Currency:   quote.Currency,
	})
	if err != nil {
		s.Logger.Warn("Payment gate refused booking",
			zap.String("requesterID", requesterID),
			zap.String("providerID", providerID),
			zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	booking := &models.Booking{
		ID:               bookingID,
		RequesterID:      requesterID,
		ProviderID:       providerID,
		ServiceKind:      details.Service.Kind(),
		Title:            strings.TrimSpace(details.Title),
		Description:      strings.TrimSpace(details.Description),
		ScheduledStart:   details.ScheduledStart,
		DurationMinutes:  details.DurationMinutes,
		Address:          details.Service.Location(),
		HourlyRate:       quote.HourlyRate,
		Price:            quote.Price,
		Currency:         quote.Currency,
		PaymentMethod:    auth.Method,
		PaymentStatus:    auth.Status,
		PaymentAttemptID: auth.AttemptID,
		PaymentReference: auth.Reference,
		Status:           models.BookingPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.Repo.InsertBooking(ctx, booking); err != nil {
		if relErr := s.Payments.Release(ctx, auth.AttemptID, bookingID); relErr != nil {
			s.Logger.Error("Failed to release payment after insert failure",
				zap.String("attemptID", auth.AttemptID), zap.Error(relErr))
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}

	s.Logger.Info("Booking created",
		zap.String("bookingID", booking.ID),
		zap.String("requesterID", requesterID),
		zap.String("providerID", providerID),
		zap.Int64("price", booking.Price))
	s.publish(ctx, models.BookingEvent(models.EventBookingCreated, booking, requesterID, now))
	return booking, nil
}

func (s *DefaultLifecycleService) Quote(ctx context.Context, providerID string, kind models.ServiceKind, durationMinutes int) (*models.Quote, error) {
	if err := validateDuration(durationMinutes, s.DurationOptions); err != nil {
		return nil, err
	}
	caregiver, err := s.Caregivers.GetByID(ctx, providerID)
	if errors.Is(err, caregiverRepo.ErrNotFound) {
		return nil, apperrors.Wrap(err, apperrors.NotFound("caregiver %s not found", providerID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up caregiver %s: %w", providerID, err)
	}
	if !caregiver.Active {
		return nil, apperrors.Validation("caregiver %s is not accepting bookings", providerID)
	}
	if !caregiver.Offers(kind) {
		return nil, apperrors.Validation("caregiver %s does not offer %s", providerID, kind)
	}
	if caregiver.HourlyRate < 0 {
		return nil, fmt.Errorf("caregiver %s has a negative rate", providerID)
	}

	currency := caregiver.Currency
	if currency == "" {
		currency = s.Currency
	}
	return &models.Quote{
		ProviderID:      providerID,
		ServiceKind:     kind,
		DurationMinutes: durationMinutes,
		HourlyRate:      caregiver.HourlyRate,
		Price:           CalculatePrice(caregiver.HourlyRate, durationMinutes),
		Currency:        currency,
	}, nil
}

func (s *DefaultLifecycleService) Confirm(ctx context.Context, bookingID, actingProviderID string) (*models.Booking, error) {
	b, err := s.transition(ctx, bookingID, models.BookingConfirmed, actingProviderID, models.EventBookingConfirmed,
		func(b *models.Booking, _ time.Time) error {
			if b.ProviderID != actingProviderID {
				return apperrors.InvalidTransition("only the booked caregiver can confirm booking %s", b.ID)
			}
			return nil
		},
		func(b *models.Booking, now time.Time) { b.ConfirmedAt = &now },
	)
	if err != nil {
		return nil, err
	}
	if err := s.Reminders.ScheduleBookingReminder(ctx, b); err != nil {
		s.Logger.Error("Failed to schedule booking reminder", zap.String("bookingID", b.ID), zap.Error(err))
	}
	return b, nil
}

func (s *DefaultLifecycleService) Reject(ctx context.Context, bookingID, actingProviderID string) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.BookingRejected, actingProviderID, models.EventBookingRejected,
		func(b *models.Booking, _ time.Time) error {
			if b.ProviderID != actingProviderID {
				return apperrors.InvalidTransition("only the booked caregiver can reject booking %s", b.ID)
			}
			return nil
		},
		func(b *models.Booking, now time.Time) { b.RejectedAt = &now },
	)
}

func (s *DefaultLifecycleService) Start(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.BookingInProgress, "", models.EventBookingStarted,
		func(b *models.Booking, now time.Time) error {
			if now.Before(b.ScheduledStart) {
				return apperrors.InvalidTransition("booking %s cannot start before %s", b.ID, b.ScheduledStart.Format(time.RFC3339))
			}
			return nil
		},
		func(b *models.Booking, now time.Time) { b.StartedAt = &now },
	)
}

func (s *DefaultLifecycleService) Complete(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.BookingCompleted, "", models.EventBookingCompleted,
		nil,
		func(b *models.Booking, now time.Time) {
			b.CompletedAt = &now
			if b.PaymentMethod == models.PaymentCash {
				b.PaymentStatus = models.PaymentCollected
			}
		},
	)
}

func (s *DefaultLifecycleService) Cancel(ctx context.Context, bookingID, actingPartyID string) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.BookingCancelled, actingPartyID, models.EventBookingCancelled,
		func(b *models.Booking, _ time.Time) error {
			if !b.IsParty(actingPartyID) {
				return apperrors.InvalidTransition("only a party to booking %s can cancel it", b.ID)
			}
			return nil
		},
		func(b *models.Booking, now time.Time) {
			b.CancelledAt = &now
			b.CancelledBy = actingPartyID
		},
	)
}

func (s *DefaultLifecycleService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := s.Repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, bookingError(err, bookingID)
	}
	return b, nil
}

func (s *DefaultLifecycleService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, apperrors.Validation("unknown booking status %q", st)
		}
	}
	out, err := s.Repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return out, nil
}

// transition applies one edge of the state machine as an optimistic
// read-modify-write. If the write loses to a concurrent one that changed the
// status, the caller gets InvalidTransition; otherwise it retries.
func (s *DefaultLifecycleService) transition(
	ctx context.Context,
	bookingID string,
	to models.BookingStatus,
	actorID string,
	eventType models.SessionEventType,
	guard func(b *models.Booking, now time.Time) error,
	mutate func(b *models.Booking, now time.Time),
) (*models.Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.transition", trace.WithAttributes(
		attribute.String("booking.id", bookingID),
		attribute.String("booking.to", string(to)),
	))
	defer span.End()

	var observed models.BookingStatus
	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		b, err := s.Repo.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, bookingError(err, bookingID)
		}
		if observed != "" && b.Status != observed {
			return nil, apperrors.InvalidTransition("booking %s changed to %s concurrently", bookingID, b.Status)
		}
		observed = b.Status

		if !CanTransition(b.Status, to) {
			return nil, apperrors.InvalidTransition("booking %s cannot move from %s to %s", bookingID, b.Status, to)
		}
		now := s.now()
		if guard != nil {
			if err := guard(b, now); err != nil {
				return nil, err
			}
		}

		from := b.Status
		b.Status = to
		b.UpdatedAt = now
		if mutate != nil {
			mutate(b, now)
		}

		err = s.Repo.UpdateBooking(ctx, b, b.Version)
		if errors.Is(err, sessionRepo.ErrVersionConflict) {
			s.Logger.Debug("Booking version conflict, re-reading",
				zap.String("bookingID", bookingID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, bookingError(err, bookingID)
		}

		s.Logger.Info("Booking transitioned",
			zap.String("bookingID", bookingID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("actorID", actorID))
		s.publish(ctx, models.BookingEvent(eventType, b, actorID, now))
		return b, nil
	}
	return nil, apperrors.Conflict("booking %s is being modified concurrently, try again", bookingID)
}

func (s *DefaultLifecycleService) publish(ctx context.Context, evt models.SessionEvent) {
	if err := s.Events.Publish(ctx, evt); err != nil {
		s.Logger.Error("Failed to publish session event",
			zap.String("type", string(evt.Type)),
			zap.String("bookingID", evt.BookingID),
			zap.Error(err))
	}
}

func bookingError(err error, bookingID string) error {
	switch {
	case errors.Is(err, sessionRepo.ErrNotFound):
		return apperrors.Wrap(err, apperrors.NotFound("booking %s not found", bookingID))
	case apperrors.KindOf(err) != "":
		return err
	}
	return fmt.Errorf("booking %s: %w", bookingID, err)
}
