package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carelink/models"
	"carelink/services/apperrors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("carelink/services/payment")

const staleProcessingReason = "payment processing timed out"

// DefaultPaymentGate implements PaymentGate on top of an AttemptStore and a Processor.
type DefaultPaymentGate struct {
	Store             AttemptStore
	Processor         Processor
	Logger            *zap.Logger
	ProcessingTimeout time.Duration
	// AttemptTTL matches the store's expiry and is reported as ExpiresAt.
	AttemptTTL        time.Duration
	Now               func() time.Time
}

func NewPaymentGate(store AttemptStore, processor Processor, processingTimeout, attemptTTL time.Duration, logger *zap.Logger) *DefaultPaymentGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultPaymentGate{
		Store:             store,
		Processor:         processor,
		Logger:            logger,
		ProcessingTimeout: processingTimeout,
		AttemptTTL:        attemptTTL,
		Now:               time.Now,
	}
}

func (g *DefaultPaymentGate) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *DefaultPaymentGate) OpenAttempt(ctx context.Context, req models.PaymentRequest) (*models.PaymentAttempt, error) {
	if req.PayerID == "" {
		return nil, apperrors.Validation("payerId is required")
	}
	if req.Amount <= 0 {
		return nil, apperrors.Validation("amount must be positive, got %d", req.Amount)
	}
	if req.Currency == "" {
		return nil, apperrors.Validation("currency is required")
	}

	now := g.now()
	attempt := &models.PaymentAttempt{
		ID:         uuid.New().String(),
		PayerID:    req.PayerID,
		ProviderID: req.ProviderID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Status:     models.AttemptPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if g.AttemptTTL > 0 {
		attempt.ExpiresAt = now.Add(g.AttemptTTL)
	}

	ref, err := g.Processor.Open(ctx, attempt)
	if err != nil {
		g.Logger.Error("processor rejected payment attempt", zap.String("processor", g.Processor.Name()), zap.Error(err))
		return nil, fmt.Errorf("open payment attempt: %w", err)
	}
	attempt.Reference = ref

	if err := g.Store.Create(ctx, attempt); err != nil {
		return nil, err
	}
	g.Logger.Info("Payment attempt opened",
		zap.String("attemptID", attempt.ID),
		zap.String("reference", attempt.Reference),
		zap.Int64("amount", attempt.Amount))
	return attempt, nil
}

// GetAttempt reads an attempt, resolving one stuck in processing past the
// timeout to failed.
func (g *DefaultPaymentGate) GetAttempt(ctx context.Context, attemptID string) (*models.PaymentAttempt, error) {
	attempt, err := g.Store.Get(ctx, attemptID)
	if err != nil {
		return nil, g.storeError(err, attemptID)
	}
	if !g.isStale(attempt) {
		return attempt, nil
	}
	updated, err := g.Store.Update(ctx, attemptID, func(a *models.PaymentAttempt) error {
		if g.isStale(a) {
			g.markFailed(a, staleProcessingReason)
		}
		return nil
	})
	if err != nil {
		return nil, g.storeError(err, attemptID)
	}
	return updated, nil
}

func (g *DefaultPaymentGate) isStale(a *models.PaymentAttempt) bool {
	if a.Status != models.AttemptProcessing || a.ProcessingStartedAt == nil {
		return false
	}
	return g.now().Sub(*a.ProcessingStartedAt) > g.ProcessingTimeout
}

func (g *DefaultPaymentGate) markFailed(a *models.PaymentAttempt, reason string) {
	a.Status = models.AttemptFailed
	a.FailureReason = reason
	a.ProcessingStartedAt = nil
	a.UpdatedAt = g.now()
}

func (g *DefaultPaymentGate) ConfirmPayment(ctx context.Context, attemptID string) (*models.PaymentAttempt, error) {
	ctx, span := tracer.Start(ctx, "payment.ConfirmPayment")
	defer span.End()
	span.SetAttributes(attribute.String("attempt.id", attemptID))

	started := g.now()
	attempt, err := g.Store.Update(ctx, attemptID, func(a *models.PaymentAttempt) error {
		if a.Status != models.AttemptPending {
			return apperrors.InvalidTransition("payment attempt %s is %s, only pending attempts can be confirmed", a.ID, a.Status)
		}
		a.Status = models.AttemptProcessing
		a.FailureReason = ""
		a.ProcessingStartedAt = &started
		a.UpdatedAt = started
		return nil
	})
	if err != nil {
		return nil, g.storeError(err, attemptID)
	}

	// Settlement must not depend on the caller staying connected, only on the timeout.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.ProcessingTimeout)
	defer cancel()
	settleErr := g.Processor.Settle(settleCtx, attempt)

	final, err := g.Store.Update(context.WithoutCancel(ctx), attemptID, func(a *models.PaymentAttempt) error {
		if a.Status != models.AttemptProcessing || a.ProcessingStartedAt == nil || !a.ProcessingStartedAt.Equal(started) {
			// Someone already resolved this run.
			return nil
		}
		if settleErr != nil {
			reason := settleErr.Error()
			if errors.Is(settleErr, context.DeadlineExceeded) {
				reason = staleProcessingReason
			}
			g.markFailed(a, reason)
			return nil
		}
		a.Status = models.AttemptCompleted
		a.ProcessingStartedAt = nil
		a.UpdatedAt = g.now()
		return nil
	})
	if err != nil {
		return nil, g.storeError(err, attemptID)
	}

	if final.Status == models.AttemptFailed {
		span.SetStatus(codes.Error, final.FailureReason)
		g.Logger.Warn("Payment attempt failed", zap.String("attemptID", attemptID), zap.String("reason", final.FailureReason))
	} else {
		g.Logger.Info("Payment attempt settled", zap.String("attemptID", attemptID), zap.String("status", string(final.Status)))
	}
	return final, nil
}

func (g *DefaultPaymentGate) RetryPayment(ctx context.Context, attemptID string) (*models.PaymentAttempt, error) {
	attempt, err := g.Store.Update(ctx, attemptID, func(a *models.PaymentAttempt) error {
		if g.isStale(a) {
			g.markFailed(a, staleProcessingReason)
		}
		if a.Status != models.AttemptFailed {
			return apperrors.InvalidTransition("payment attempt %s is %s, only failed attempts can be retried", a.ID, a.Status)
		}
		a.Status = models.AttemptPending
		a.FailureReason = ""
		a.Retries++
		a.UpdatedAt = g.now()
		return nil
	})
	if err != nil {
		return nil, g.storeError(err, attemptID)
	}
	g.Logger.Info("Payment attempt reset for retry", zap.String("attemptID", attemptID), zap.Int("retries", attempt.Retries))
	return attempt, nil
}

// AbandonAttempt deletes a pending or failed attempt. The status check and
// the delete are one store operation, so an attempt that completes meanwhile
// is never dropped after it could have funded a booking.
func (g *DefaultPaymentGate) AbandonAttempt(ctx context.Context, attemptID string) error {
	err := g.Store.DeleteIf(ctx, attemptID, func(a *models.PaymentAttempt) error {
		if g.isStale(a) {
			g.markFailed(a, staleProcessingReason)
		}
		if a.Status != models.AttemptPending && a.Status != models.AttemptFailed {
			return apperrors.InvalidTransition("payment attempt %s is %s and cannot be abandoned", a.ID, a.Status)
		}
		return nil
	})
	if err != nil {
		return g.storeError(err, attemptID)
	}
	g.Logger.Info("Payment attempt abandoned", zap.String("attemptID", attemptID))
	return nil
}

func (g *DefaultPaymentGate) Authorize(ctx context.Context, bookingID string, sel models.PaymentSelection, req models.PaymentRequest) (*models.PaymentAuthorization, error) {
	ctx, span := tracer.Start(ctx, "payment.Authorize")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.id", bookingID),
		attribute.String("payment.method", string(sel.Method)),
	)

	switch sel.Method {
	case models.PaymentCash:
		// Settled at the visit; nothing to check now.
		return &models.PaymentAuthorization{Method: models.PaymentCash, Status: models.PaymentUnpaid}, nil
	case models.PaymentQR:
	default:
		return nil, apperrors.Validation("unsupported payment method %q", sel.Method)
	}

	if sel.AttemptID == "" {
		return nil, apperrors.PaymentRequired("qr payment requires a completed payment attempt")
	}

	attempt, err := g.Store.Update(ctx, sel.AttemptID, func(a *models.PaymentAttempt) error {
		switch {
		case a.Status != models.AttemptCompleted:
			return apperrors.PaymentRequired("payment attempt %s is %s, not completed", a.ID, a.Status)
		case a.PayerID != req.PayerID:
			return apperrors.PaymentRequired("payment attempt %s was not made by this requester", a.ID)
		case a.ProviderID != "" && a.ProviderID != req.ProviderID:
			return apperrors.PaymentRequired("payment attempt %s was made for a different caregiver", a.ID)
		case a.Amount != req.Amount || (a.Currency != "" && a.Currency != req.Currency):
			return apperrors.PaymentRequired("payment attempt %s covers %d %s, booking costs %d %s",
				a.ID, a.Amount, a.Currency, req.Amount, req.Currency)
		case a.ConsumedBy != "" && a.ConsumedBy != bookingID:
			return apperrors.PaymentRequired("payment attempt %s already funded another booking", a.ID)
		}
		a.ConsumedBy = bookingID
		a.UpdatedAt = g.now()
		return nil
	})
	if errors.Is(err, ErrAttemptNotFound) {
		return nil, apperrors.Wrap(err, apperrors.PaymentRequired("payment attempt %s not found or expired", sel.AttemptID))
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, g.storeError(err, sel.AttemptID)
	}

	return &models.PaymentAuthorization{
		Method:    models.PaymentQR,
		Status:    models.PaymentPaid,
		AttemptID: attempt.ID,
		Reference: attempt.Reference,
	}, nil
}

func (g *DefaultPaymentGate) Release(ctx context.Context, attemptID, bookingID string) error {
	if attemptID == "" {
		return nil
	}
	_, err := g.Store.Update(ctx, attemptID, func(a *models.PaymentAttempt) error {
		if a.ConsumedBy == bookingID {
			a.ConsumedBy = ""
			a.UpdatedAt = g.now()
		}
		return nil
	})
	if errors.Is(err, ErrAttemptNotFound) {
		g.Logger.Warn("Released payment attempt no longer exists", zap.String("attemptID", attemptID))
		return nil
	}
	if err != nil {
		return g.storeError(err, attemptID)
	}
	g.Logger.Info("Payment attempt released", zap.String("attemptID", attemptID), zap.String("bookingID", bookingID))
	return nil
}

// storeError maps store failures to the error taxonomy and leaves classified errors alone.
func (g *DefaultPaymentGate) storeError(err error, attemptID string) error {
	switch {
	case apperrors.KindOf(err) != "":
		return err
	case errors.Is(err, ErrAttemptNotFound):
		return apperrors.Wrap(err, apperrors.NotFound("payment attempt %s not found", attemptID))
	case errors.Is(err, ErrAttemptBusy):
		return apperrors.Wrap(err, apperrors.Conflict("payment attempt %s is busy, try again", attemptID))
	}
	return fmt.Errorf("payment attempt %s: %w", attemptID, err)
}
