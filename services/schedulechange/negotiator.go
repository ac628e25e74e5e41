package schedulechange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sessionRepo "carelink/database/repository/session"
	"carelink/models"
	"carelink/services/apperrors"
	"carelink/services/events"
	"carelink/services/tasks"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("carelink/services/schedulechange")

const maxWriteAttempts = 3

// Negotiator runs the two-party proposal/response protocol that moves a
// booking's start time without creating a new booking.
type Negotiator interface {
	Propose(ctx context.Context, bookingID, initiatorID string, proposedStart time.Time, reason string) (*models.ScheduleChangeRequest, error)
	Respond(ctx context.Context, requestID, responderID string, decision models.ScheduleChangeDecision, note string) (*models.ScheduleChangeRequest, error)
	Withdraw(ctx context.Context, requestID, initiatorID string) (*models.ScheduleChangeRequest, error)

	GetRequest(ctx context.Context, requestID string) (*models.ScheduleChangeRequest, error)
	ListForBooking(ctx context.Context, bookingID string) ([]models.ScheduleChangeRequest, error)
	// ListPendingFor returns pending requests awaiting partyID's response.
	ListPendingFor(ctx context.Context, partyID string) ([]models.ScheduleChangeRequest, error)
}

type DefaultNegotiator struct {
	Repo      sessionRepo.SessionRepository
	Events    events.Publisher
	Reminders tasks.ReminderScheduler
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewNegotiator(repo sessionRepo.SessionRepository, publisher events.Publisher, reminders tasks.ReminderScheduler, logger *zap.Logger) *DefaultNegotiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.LogPublisher{Logger: logger}
	}
	if reminders == nil {
		reminders = tasks.NoopReminderScheduler{}
	}
	return &DefaultNegotiator{Repo: repo, Events: publisher, Reminders: reminders, Logger: logger, Now: time.Now}
}

func (n *DefaultNegotiator) now() time.Time {
	if n.Now != nil {
		return normalize(n.Now())
	}
	return normalize(time.Now())
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func (n *DefaultNegotiator) Propose(ctx context.Context, bookingID, initiatorID string, proposedStart time.Time, reason string) (*models.ScheduleChangeRequest, error) {
	ctx, span := tracer.Start(ctx, "schedulechange.Propose", trace.WithAttributes(attribute.String("booking.id", bookingID)))
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("a reason is required to propose a new time")
	}
	if proposedStart.IsZero() {
		return nil, apperrors.Validation("proposedDateTime is required")
	}
	proposedStart = normalize(proposedStart)

	b, err := n.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.Renegotiable() {
		return nil, apperrors.InvalidTransition("booking %s is %s and can no longer be rescheduled", b.ID, b.Status)
	}
	if !b.IsParty(initiatorID) {
		return nil, apperrors.InvalidTransition("only a party to booking %s can propose a new time", b.ID)
	}

	now := n.now()
	if !proposedStart.After(now) {
		return nil, apperrors.Validation("proposedDateTime must be in the future")
	}
	if proposedStart.Equal(b.ScheduledStart) {
		return nil, apperrors.Validation("proposedDateTime must differ from the current start")
	}

	// The insert below is the real guard; this only names the request in the way.
	existing, err := n.Repo.GetPendingScheduleChange(ctx, b.ID)
	switch {
	case err == nil:
		return nil, apperrors.Conflict("booking %s already has pending schedule change %s", b.ID, existing.ID)
	case !errors.Is(err, sessionRepo.ErrNotFound):
		return nil, fmt.Errorf("failed to check pending schedule changes: %w", err)
	}

	req := &models.ScheduleChangeRequest{
		ID:                 uuid.New().String(),
		OriginalScheduleID: b.ID,
		InitiatorID:        initiatorID,
		CounterpartyID:     b.CounterpartyOf(initiatorID),
		OriginalDateTime:   b.ScheduledStart,
		ProposedDateTime:   proposedStart,
		Reason:             reason,
		Status:             models.ScheduleChangePending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := n.Repo.InsertScheduleChange(ctx, req); err != nil {
		if errors.Is(err, sessionRepo.ErrPendingChangeExists) {
			return nil, apperrors.Wrap(err, apperrors.Conflict("booking %s already has a pending schedule change", b.ID))
		}
		return nil, fmt.Errorf("failed to save schedule change: %w", err)
	}

	n.Logger.Info("Schedule change proposed",
		zap.String("requestID", req.ID),
		zap.String("bookingID", b.ID),
		zap.String("initiatorID", initiatorID),
		zap.Time("proposed", proposedStart))
	n.publish(ctx, models.ScheduleChangeEvent(models.EventScheduleChangeProposed, b, req, initiatorID, now))
	return req, nil
}

func (n *DefaultNegotiator) Respond(ctx context.Context, requestID, responderID string, decision models.ScheduleChangeDecision, note string) (*models.ScheduleChangeRequest, error) {
	ctx, span := tracer.Start(ctx, "schedulechange.Respond", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("decision", string(decision)),
	))
	defer span.End()

	if !decision.Valid() {
		return nil, apperrors.Validation("decision must be accept or reject, got %q", decision)
	}

	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		req, err := n.getRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if responderID != req.CounterpartyID {
			return nil, apperrors.InvalidTransition("only the counterparty can respond to schedule change %s", req.ID)
		}
		if req.Status != models.ScheduleChangePending {
			return nil, apperrors.InvalidTransition("schedule change %s is already %s", req.ID, req.Status)
		}

		now := n.now()
		reqVersion := req.Version
		req.ResponseNote = strings.TrimSpace(note)
		req.RespondedAt = &now
		req.UpdatedAt = now

		if decision == models.DecisionReject {
			req.Status = models.ScheduleChangeRejected
			err := n.Repo.UpdateScheduleChange(ctx, req, reqVersion)
			if errors.Is(err, sessionRepo.ErrVersionConflict) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to update schedule change %s: %w", req.ID, err)
			}
			b, err := n.getBooking(ctx, req.OriginalScheduleID)
			if err != nil {
				n.Logger.Warn("Booking lookup failed after rejection", zap.String("requestID", req.ID), zap.Error(err))
				return req, nil
			}
			n.Logger.Info("Schedule change rejected", zap.String("requestID", req.ID), zap.String("bookingID", b.ID))
			n.publish(ctx, models.ScheduleChangeEvent(models.EventScheduleChangeRejected, b, req, responderID, now))
			return req, nil
		}

		b, err := n.getBooking(ctx, req.OriginalScheduleID)
		if err != nil {
			return nil, err
		}
		if !b.Status.Renegotiable() {
			return nil, apperrors.InvalidTransition("booking %s is %s, the schedule change can no longer be accepted", b.ID, b.Status)
		}
		if !b.ScheduledStart.Equal(req.OriginalDateTime) {
			return nil, apperrors.Conflict("booking %s was rescheduled after this request was made", b.ID)
		}
		if !req.ProposedDateTime.After(now) {
			return nil, apperrors.Validation("the proposed time %s has already passed", req.ProposedDateTime.Format(time.RFC3339))
		}

		bookingVersion := b.Version
		req.Status = models.ScheduleChangeAccepted
		b.ScheduledStart = req.ProposedDateTime
		b.UpdatedAt = now

		err = n.Repo.ApplyScheduleChange(ctx, req, reqVersion, b, bookingVersion)
		if errors.Is(err, sessionRepo.ErrVersionConflict) {
			n.Logger.Debug("Schedule change accept raced, re-reading", zap.String("requestID", req.ID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to apply schedule change %s: %w", req.ID, err)
		}

		n.Logger.Info("Schedule change accepted",
			zap.String("requestID", req.ID),
			zap.String("bookingID", b.ID),
			zap.Time("scheduledStart", b.ScheduledStart))
		if b.Status == models.BookingConfirmed {
			if err := n.Reminders.ScheduleBookingReminder(ctx, b); err != nil {
				n.Logger.Error("Failed to re-schedule booking reminder", zap.String("bookingID", b.ID), zap.Error(err))
			}
		}
		n.publish(ctx, models.ScheduleChangeEvent(models.EventScheduleChangeAccepted, b, req, responderID, now))
		return req, nil
	}
	return nil, apperrors.Conflict("schedule change %s is being modified concurrently, try again", requestID)
}

func (n *DefaultNegotiator) Withdraw(ctx context.Context, requestID, initiatorID string) (*models.ScheduleChangeRequest, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		req, err := n.getRequest(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if initiatorID != req.InitiatorID {
			return nil, apperrors.InvalidTransition("only the initiator can withdraw schedule change %s", req.ID)
		}
		if req.Status != models.ScheduleChangePending {
			return nil, apperrors.InvalidTransition("schedule change %s is already %s", req.ID, req.Status)
		}

		now := n.now()
		req.Status = models.ScheduleChangeCancelled
		req.UpdatedAt = now
		err = n.Repo.UpdateScheduleChange(ctx, req, req.Version)
		if errors.Is(err, sessionRepo.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to withdraw schedule change %s: %w", req.ID, err)
		}

		n.Logger.Info("Schedule change withdrawn", zap.String("requestID", req.ID))
		if b, err := n.getBooking(ctx, req.OriginalScheduleID); err == nil {
			n.publish(ctx, models.ScheduleChangeEvent(models.EventScheduleChangeCancelled, b, req, initiatorID, now))
		}
		return req, nil
	}
	return nil, apperrors.Conflict("schedule change %s is being modified concurrently, try again", requestID)
}

func (n *DefaultNegotiator) GetRequest(ctx context.Context, requestID string) (*models.ScheduleChangeRequest, error) {
	return n.getRequest(ctx, requestID)
}

func (n *DefaultNegotiator) ListForBooking(ctx context.Context, bookingID string) ([]models.ScheduleChangeRequest, error) {
	if _, err := n.getBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	out, err := n.Repo.ListScheduleChanges(ctx, models.ScheduleChangeFilter{BookingID: bookingID})
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule changes: %w", err)
	}
	return out, nil
}

// ListPendingFor returns the pending requests partyID still has to answer.
// Requests on bookings that can no longer be rescheduled are left out, since
// accepting them would fail.
func (n *DefaultNegotiator) ListPendingFor(ctx context.Context, partyID string) ([]models.ScheduleChangeRequest, error) {
	if strings.TrimSpace(partyID) == "" {
		return nil, apperrors.Validation("partyId is required")
	}
	pending, err := n.Repo.ListScheduleChanges(ctx, models.ScheduleChangeFilter{
		CounterpartyID: partyID,
		Statuses:       []models.ScheduleChangeStatus{models.ScheduleChangePending},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending schedule changes: %w", err)
	}

	renegotiable := make(map[string]bool)
	out := pending[:0]
	for _, req := range pending {
		ok, seen := renegotiable[req.OriginalScheduleID]
		if !seen {
			b, err := n.Repo.GetBooking(ctx, req.OriginalScheduleID)
			switch {
			case errors.Is(err, sessionRepo.ErrNotFound):
				ok = false
			case err != nil:
				return nil, fmt.Errorf("booking %s: %w", req.OriginalScheduleID, err)
			default:
				ok = b.Status.Renegotiable()
			}
			renegotiable[req.OriginalScheduleID] = ok
		}
		if ok {
			out = append(out, req)
		}
	}
	return out, nil
}

func (n *DefaultNegotiator) getBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	b, err := n.Repo.GetBooking(ctx, bookingID)
	if errors.Is(err, sessionRepo.ErrNotFound) {
		return nil, apperrors.Wrap(err, apperrors.NotFound("booking %s not found", bookingID))
	}
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", bookingID, err)
	}
	return b, nil
}

func (n *DefaultNegotiator) getRequest(ctx context.Context, requestID string) (*models.ScheduleChangeRequest, error) {
	req, err := n.Repo.GetScheduleChange(ctx, requestID)
	if errors.Is(err, sessionRepo.ErrNotFound) {
		return nil, apperrors.Wrap(err, apperrors.NotFound("schedule change %s not found", requestID))
	}
	if err != nil {
		return nil, fmt.Errorf("schedule change %s: %w", requestID, err)
	}
	return req, nil
}

func (n *DefaultNegotiator) publish(ctx context.Context, evt models.SessionEvent) {
	if err := n.Events.Publish(ctx, evt); err != nil {
		n.Logger.Error("Failed to publish session event",
			zap.String("type", string(evt.Type)),
			zap.String("requestID", evt.RequestID),
			zap.Error(err))
	}
}
