package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carelink/models"
	"carelink/services/apperrors"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGate(t *testing.T, proc Processor) (*DefaultPaymentGate, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)}
	store := NewMemoryAttemptStore(30*time.Minute, clk.Now)
	gate := NewPaymentGate(store, proc, 200*time.Millisecond, 30*time.Minute, nil)
	gate.Now = clk.Now
	return gate, clk
}

func openTestAttempt(t *testing.T, gate *DefaultPaymentGate) *models.PaymentAttempt {
	t.Helper()
	attempt, err := gate.OpenAttempt(context.Background(), models.PaymentRequest{
		PayerID:    "seeker-1",
		ProviderID: "carer-1",
		Amount:     500000,
		Currency:   "VND",
	})
	if err != nil {
		t.Fatalf("open attempt: %v", err)
	}
	return attempt
}

func TestOpenAttemptValidatesInput(t *testing.T) {
	gate, _ := newTestGate(t, NewSimulatedProcessor(0))
	cases := []models.PaymentRequest{
		{Amount: 100, Currency: "VND"},
		{PayerID: "p", Amount: 0, Currency: "VND"},
		{PayerID: "p", Amount: 100},
	}
	for _, req := range cases {
		if _, err := gate.OpenAttempt(context.Background(), req); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("%+v: expected validation error, got %v", req, err)
		}
	}
}

func TestOpenAttemptReportsExpiry(t *testing.T) {
	gate, clk := newTestGate(t, NewSimulatedProcessor(0))
	attempt := openTestAttempt(t, gate)

	if want := clk.Now().Add(30 * time.Minute); !attempt.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", attempt.ExpiresAt, want)
	}
	stored, err := gate.GetAttempt(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.ExpiresAt.Equal(attempt.ExpiresAt) {
		t.Fatalf("stored expiresAt = %v, want %v", stored.ExpiresAt, attempt.ExpiresAt)
	}
}

func TestConfirmPaymentCompletes(t *testing.T) {
	gate, _ := newTestGate(t, NewSimulatedProcessor(time.Millisecond))
	attempt := openTestAttempt(t, gate)

	if attempt.Status != models.AttemptPending || len(attempt.Reference) != len("QR-")+12 {
		t.Fatalf("unexpected new attempt: %+v", attempt)
	}

	done, err := gate.ConfirmPayment(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if done.Status != models.AttemptCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}

	if _, err := gate.ConfirmPayment(context.Background(), attempt.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("second confirm should be an invalid transition, got %v", err)
	}
}

func TestConfirmPaymentIsBoundedByTimeout(t *testing.T) {
	gate, _ := newTestGate(t, NewSimulatedProcessor(time.Hour))
	attempt := openTestAttempt(t, gate)

	start := time.Now()
	done, err := gate.ConfirmPayment(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("confirm did not respect the processing timeout")
	}
	if done.Status != models.AttemptFailed || done.FailureReason == "" {
		t.Fatalf("expected failed with a reason, got %+v", done)
	}
}

func TestFailedAttemptCanBeRetried(t *testing.T) {
	proc := NewSimulatedProcessor(time.Millisecond)
	declines := 1
	var mu sync.Mutex
	proc.Fail = func(*models.PaymentAttempt) error {
		mu.Lock()
		defer mu.Unlock()
		if declines > 0 {
			declines--
			return errors.New("card declined")
		}
		return nil
	}
	gate, _ := newTestGate(t, proc)
	attempt := openTestAttempt(t, gate)
	ctx := context.Background()

	failed, err := gate.ConfirmPayment(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if failed.Status != models.AttemptFailed || failed.FailureReason != "card declined" {
		t.Fatalf("expected declined attempt, got %+v", failed)
	}

	retried, err := gate.RetryPayment(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != models.AttemptPending || retried.Retries != 1 {
		t.Fatalf("expected pending with one retry, got %+v", retried)
	}

	done, err := gate.ConfirmPayment(ctx, attempt.ID)
	if err != nil || done.Status != models.AttemptCompleted {
		t.Fatalf("expected completed after retry, got %+v, %v", done, err)
	}

	if _, err := gate.RetryPayment(ctx, attempt.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("retrying a completed attempt should fail, got %v", err)
	}
}

func TestStaleProcessingReadsAsFailed(t *testing.T) {
	gate, clk := newTestGate(t, NewSimulatedProcessor(0))
	attempt := openTestAttempt(t, gate)
	ctx := context.Background()

	// Simulate a crash between processing and settlement.
	started := clk.Now()
	if _, err := gate.Store.Update(ctx, attempt.ID, func(a *models.PaymentAttempt) error {
		a.Status = models.AttemptProcessing
		a.ProcessingStartedAt = &started
		return nil
	}); err != nil {
		t.Fatalf("seed processing: %v", err)
	}

	got, _ := gate.GetAttempt(ctx, attempt.ID)
	if got.Status != models.AttemptProcessing {
		t.Fatalf("fresh processing attempt should stay processing, got %s", got.Status)
	}

	clk.Advance(time.Second)
	got, err := gate.GetAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.AttemptFailed {
		t.Fatalf("expected stale processing to read as failed, got %s", got.Status)
	}
}

func TestAbandonAttempt(t *testing.T) {
	gate, _ := newTestGate(t, NewSimulatedProcessor(time.Millisecond))
	ctx := context.Background()

	pending := openTestAttempt(t, gate)
	if err := gate.AbandonAttempt(ctx, pending.ID); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, err := gate.GetAttempt(ctx, pending.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("abandoned attempt should be gone, got %v", err)
	}

	completed := openTestAttempt(t, gate)
	if _, err := gate.ConfirmPayment(ctx, completed.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := gate.AbandonAttempt(ctx, completed.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("completed attempt cannot be abandoned, got %v", err)
	}
}

// interleavingStore runs beforeDelete once, between AbandonAttempt's call and
// the store's own check-and-delete.
type interleavingStore struct {
	*MemoryAttemptStore
	beforeDelete func()
}

func (s *interleavingStore) DeleteIf(ctx context.Context, attemptID string, fn func(*models.PaymentAttempt) error) error {
	if s.beforeDelete != nil {
		hook := s.beforeDelete
		s.beforeDelete = nil
		hook()
	}
	return s.MemoryAttemptStore.DeleteIf(ctx, attemptID, fn)
}

func TestAbandonLosesToCompletionThatFundedABooking(t *testing.T) {
	gate, _ := newTestGate(t, NewSimulatedProcessor(time.Millisecond))
	store := &interleavingStore{MemoryAttemptStore: gate.Store.(*MemoryAttemptStore)}
	gate.Store = store
	ctx := context.Background()

	attempt := openTestAttempt(t, gate)
	req := models.PaymentRequest{PayerID: "seeker-1", ProviderID: "carer-1", Amount: 500000, Currency: "VND"}
	store.beforeDelete = func() {
		if _, err := gate.ConfirmPayment(ctx, attempt.ID); err != nil {
			t.Errorf("confirm: %v", err)
		}
		if _, err := gate.Authorize(ctx, "booking-x", models.PaymentSelection{Method: models.PaymentQR, AttemptID: attempt.ID}, req); err != nil {
			t.Errorf("authorize: %v", err)
		}
	}

	if err := gate.AbandonAttempt(ctx, attempt.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("abandon of an attempt that funded a booking must fail, got %v", err)
	}
	got, err := gate.GetAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("attempt should survive the failed abandon: %v", err)
	}
	if got.Status != models.AttemptCompleted || got.ConsumedBy != "booking-x" {
		t.Fatalf("unexpected attempt after abandon: %+v", got)
	}
}

func TestAbandonResolvesStaleProcessing(t *testing.T) {
	gate, clk := newTestGate(t, NewSimulatedProcessor(0))
	attempt := openTestAttempt(t, gate)
	ctx := context.Background()

	started := clk.Now()
	if _, err := gate.Store.Update(ctx, attempt.ID, func(a *models.PaymentAttempt) error {
		a.Status = models.AttemptProcessing
		a.ProcessingStartedAt = &started
		return nil
	}); err != nil {
		t.Fatalf("seed processing: %v", err)
	}
	if err := gate.AbandonAttempt(ctx, attempt.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("processing attempt cannot be abandoned, got %v", err)
	}

	clk.Advance(time.Second)
	if err := gate.AbandonAttempt(ctx, attempt.ID); err != nil {
		t.Fatalf("stale processing attempt should be abandonable: %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	gate, _ := newTestGate(t, NewSimulatedProcessor(time.Millisecond))
	ctx := context.Background()
	req := models.PaymentRequest{PayerID: "seeker-1", ProviderID: "carer-1", Amount: 500000, Currency: "VND"}

	auth, err := gate.Authorize(ctx, "b0", models.PaymentSelection{Method: models.PaymentCash}, req)
	if err != nil || auth.Status != models.PaymentUnpaid {
		t.Fatalf("cash should pass immediately, got %+v, %v", auth, err)
	}

	pending := openTestAttempt(t, gate)
	qr := models.PaymentSelection{Method: models.PaymentQR, AttemptID: pending.ID}
	if _, err := gate.Authorize(ctx, "b1", qr, req); !errors.Is(err, apperrors.ErrPaymentRequired) {
		t.Fatalf("pending attempt must not authorize, got %v", err)
	}
	if _, err := gate.Authorize(ctx, "b1", models.PaymentSelection{Method: models.PaymentQR}, req); !errors.Is(err, apperrors.ErrPaymentRequired) {
		t.Fatalf("missing attempt must not authorize, got %v", err)
	}

	if _, err := gate.ConfirmPayment(ctx, pending.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	wrongAmount := req
	wrongAmount.Amount = 1
	if _, err := gate.Authorize(ctx, "b1", qr, wrongAmount); !errors.Is(err, apperrors.ErrPaymentRequired) {
		t.Fatalf("amount mismatch must not authorize, got %v", err)
	}

	auth, err = gate.Authorize(ctx, "b1", qr, req)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if auth.Status != models.PaymentPaid || auth.Reference != pending.Reference {
		t.Fatalf("unexpected authorization: %+v", auth)
	}

	if _, err := gate.Authorize(ctx, "b2", qr, req); !errors.Is(err, apperrors.ErrPaymentRequired) {
		t.Fatalf("a consumed attempt must not fund a second booking, got %v", err)
	}

	if err := gate.Release(ctx, pending.ID, "b1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := gate.Authorize(ctx, "b2", qr, req); err != nil {
		t.Fatalf("released attempt should authorize again: %v", err)
	}
}

func TestExpiredAttemptIsGone(t *testing.T) {
	gate, clk := newTestGate(t, NewSimulatedProcessor(0))
	attempt := openTestAttempt(t, gate)

	clk.Advance(31 * time.Minute)
	if _, err := gate.GetAttempt(context.Background(), attempt.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected expired attempt to be not found, got %v", err)
	}
}
