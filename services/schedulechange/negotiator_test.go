package schedulechange

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sessionRepo "carelink/database/repository/session"
	"carelink/models"
	"carelink/services/apperrors"
)

var testNow = time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (r *recordingPublisher) Publish(_ context.Context, evt models.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

type recordingReminders struct {
	calls []time.Time
}

func (r *recordingReminders) ScheduleBookingReminder(_ context.Context, b *models.Booking) error {
	r.calls = append(r.calls, b.ScheduledStart)
	return nil
}

type fixture struct {
	n         *DefaultNegotiator
	repo      *sessionRepo.MemorySessionRepo
	events    *recordingPublisher
	reminders *recordingReminders
	start     time.Time
}

func newFixture(t *testing.T, status models.BookingStatus) *fixture {
	t.Helper()
	repo := sessionRepo.NewMemorySessionRepo()
	start := testNow.Add(48 * time.Hour)
	err := repo.InsertBooking(context.Background(), &models.Booking{
		ID:              "b1",
		RequesterID:     "seeker-1",
		ProviderID:      "carer-1",
		ServiceKind:     models.ServiceHomeCare,
		ScheduledStart:  start,
		DurationMinutes: 120,
		Address:         "12 Nguyen Hue",
		Status:          status,
	})
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	events := &recordingPublisher{}
	reminders := &recordingReminders{}
	n := NewNegotiator(repo, events, reminders, nil)
	n.Now = func() time.Time { return testNow }
	return &fixture{n: n, repo: repo, events: events, reminders: reminders, start: start}
}

func TestProposeAndAcceptMovesBooking(t *testing.T) {
	f := newFixture(t, models.BookingConfirmed)
	ctx := context.Background()
	proposed := f.start.Add(24 * time.Hour)

	req, err := f.n.Propose(ctx, "b1", "seeker-1", proposed, "family visit")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if req.Status != models.ScheduleChangePending || req.CounterpartyID != "carer-1" || !req.OriginalDateTime.Equal(f.start) {
		t.Fatalf("unexpected request: %+v", req)
	}

	_, err = f.n.Propose(ctx, "b1", "carer-1", proposed.Add(time.Hour), "clash")
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("second pending proposal should conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), req.ID) {
		t.Fatalf("conflict should name the pending request %s, got %q", req.ID, err)
	}

	if _, err := f.n.Respond(ctx, req.ID, "seeker-1", models.DecisionAccept, ""); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("initiator cannot respond to own request, got %v", err)
	}

	accepted, err := f.n.Respond(ctx, req.ID, "carer-1", models.DecisionAccept, "works for me")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != models.ScheduleChangeAccepted || accepted.ResponseNote != "works for me" || accepted.RespondedAt == nil {
		t.Fatalf("unexpected accepted request: %+v", accepted)
	}

	b, _ := f.repo.GetBooking(ctx, "b1")
	if !b.ScheduledStart.Equal(proposed) {
		t.Fatalf("expected booking start %v, got %v", proposed, b.ScheduledStart)
	}
	if b.Status != models.BookingConfirmed {
		t.Fatalf("accept must not change booking status, got %s", b.Status)
	}
	if len(f.reminders.calls) != 1 || !f.reminders.calls[0].Equal(proposed) {
		t.Fatalf("expected one reminder at the new start, got %v", f.reminders.calls)
	}

	if _, err := f.n.Respond(ctx, req.ID, "carer-1", models.DecisionReject, ""); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("answered request cannot be answered again, got %v", err)
	}

	// The booking is free for a new proposal once the first is answered.
	if _, err := f.n.Propose(ctx, "b1", "carer-1", proposed.Add(time.Hour), "running late"); err != nil {
		t.Fatalf("new proposal after accept: %v", err)
	}
}

func TestProposeValidation(t *testing.T) {
	f := newFixture(t, models.BookingPending)
	ctx := context.Background()

	cases := []struct {
		name     string
		proposed time.Time
		reason   string
		want     error
	}{
		{"blank reason", f.start.Add(time.Hour), "  ", apperrors.ErrValidation},
		{"past time", testNow.Add(-time.Hour), "x", apperrors.ErrValidation},
		{"now", testNow, "x", apperrors.ErrValidation},
		{"same as current", f.start, "x", apperrors.ErrValidation},
		{"zero time", time.Time{}, "x", apperrors.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.n.Propose(ctx, "b1", "seeker-1", tc.proposed, tc.reason); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := f.n.Propose(ctx, "b1", "stranger", f.start.Add(time.Hour), "x"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("non-party proposal should be an invalid transition, got %v", err)
	}
	if _, err := f.n.Propose(ctx, "missing", "seeker-1", f.start.Add(time.Hour), "x"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("unknown booking should be not found, got %v", err)
	}
}

func TestProposeRefusedOutsideRenegotiableStates(t *testing.T) {
	for _, st := range []models.BookingStatus{models.BookingInProgress, models.BookingCompleted, models.BookingCancelled, models.BookingRejected} {
		t.Run(string(st), func(t *testing.T) {
			f := newFixture(t, st)
			_, err := f.n.Propose(context.Background(), "b1", "seeker-1", f.start.Add(time.Hour), "x")
			if !errors.Is(err, apperrors.ErrInvalidTransition) {
				t.Fatalf("expected invalid transition, got %v", err)
			}
		})
	}
}

func TestRejectLeavesBookingAlone(t *testing.T) {
	f := newFixture(t, models.BookingPending)
	ctx := context.Background()

	req, _ := f.n.Propose(ctx, "b1", "carer-1", f.start.Add(3*time.Hour), "another client")
	rejected, err := f.n.Respond(ctx, req.ID, "seeker-1", models.DecisionReject, "cannot")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != models.ScheduleChangeRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	b, _ := f.repo.GetBooking(ctx, "b1")
	if !b.ScheduledStart.Equal(f.start) || b.Version != 0 {
		t.Fatalf("reject must not touch the booking, got %v v%d", b.ScheduledStart, b.Version)
	}
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, models.BookingConfirmed)
	ctx := context.Background()

	req, _ := f.n.Propose(ctx, "b1", "seeker-1", f.start.Add(time.Hour), "x")
	if _, err := f.n.Withdraw(ctx, req.ID, "carer-1"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("counterparty cannot withdraw, got %v", err)
	}
	withdrawn, err := f.n.Withdraw(ctx, req.ID, "seeker-1")
	if err != nil || withdrawn.Status != models.ScheduleChangeCancelled {
		t.Fatalf("withdraw: %+v, %v", withdrawn, err)
	}
	if _, err := f.n.Withdraw(ctx, req.ID, "seeker-1"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("second withdraw should fail, got %v", err)
	}
	if _, err := f.n.Respond(ctx, req.ID, "carer-1", models.DecisionAccept, ""); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("withdrawn request cannot be accepted, got %v", err)
	}
}

func TestAcceptOnCancelledBookingFails(t *testing.T) {
	f := newFixture(t, models.BookingConfirmed)
	ctx := context.Background()

	req, _ := f.n.Propose(ctx, "b1", "carer-1", f.start.Add(time.Hour), "x")

	b, _ := f.repo.GetBooking(ctx, "b1")
	b.Status = models.BookingCancelled
	if err := f.repo.UpdateBooking(ctx, b, b.Version); err != nil {
		t.Fatalf("cancel booking: %v", err)
	}

	if _, err := f.n.Respond(ctx, req.ID, "seeker-1", models.DecisionAccept, ""); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("accept on cancelled booking should fail, got %v", err)
	}
	stored, _ := f.repo.GetBooking(ctx, "b1")
	if !stored.ScheduledStart.Equal(f.start) {
		t.Fatalf("cancelled booking must keep its start")
	}
}

func TestStaleSnapshotIsAConflict(t *testing.T) {
	f := newFixture(t, models.BookingConfirmed)
	ctx := context.Background()

	req, _ := f.n.Propose(ctx, "b1", "seeker-1", f.start.Add(time.Hour), "x")

	// The start moved by some other path after the proposal was made.
	b, _ := f.repo.GetBooking(ctx, "b1")
	b.ScheduledStart = f.start.Add(30 * time.Minute)
	_ = f.repo.UpdateBooking(ctx, b, b.Version)

	if _, err := f.n.Respond(ctx, req.ID, "carer-1", models.DecisionAccept, ""); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("expected conflict for stale snapshot, got %v", err)
	}
	stored, _ := f.n.GetRequest(ctx, req.ID)
	if stored.Status != models.ScheduleChangePending {
		t.Fatalf("request must stay pending, got %s", stored.Status)
	}
}

func TestAcceptAfterProposedTimePassedIsValidationError(t *testing.T) {
	f := newFixture(t, models.BookingConfirmed)
	ctx := context.Background()
	proposed := testNow.Add(2 * time.Hour)

	req, err := f.n.Propose(ctx, "b1", "seeker-1", proposed, "earlier please")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	f.n.Now = func() time.Time { return proposed.Add(time.Minute) }
	if _, err := f.n.Respond(ctx, req.ID, "carer-1", models.DecisionAccept, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentProposalsYieldOnePending(t *testing.T) {
	f := newFixture(t, models.BookingConfirmed)
	ctx := context.Background()

	const workers = 12
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			party := "seeker-1"
			if i%2 == 1 {
				party = "carer-1"
			}
			_, errs[i] = f.n.Propose(ctx, "b1", party, f.start.Add(time.Duration(i+1)*time.Hour), "x")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperrors.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one proposal to succeed, got %d", ok)
	}
	pending, _ := f.repo.ListScheduleChanges(ctx, models.ScheduleChangeFilter{
		BookingID: "b1",
		Statuses:  []models.ScheduleChangeStatus{models.ScheduleChangePending},
	})
	if len(pending) != 1 {
		t.Fatalf("expected one pending request, found %d", len(pending))
	}
}

func TestListPendingFor(t *testing.T) {
	f := newFixture(t, models.BookingConfirmed)
	ctx := context.Background()

	req, _ := f.n.Propose(ctx, "b1", "seeker-1", f.start.Add(time.Hour), "x")

	awaiting, err := f.n.ListPendingFor(ctx, "carer-1")
	if err != nil || len(awaiting) != 1 || awaiting[0].ID != req.ID {
		t.Fatalf("caregiver should see the request: %+v, %v", awaiting, err)
	}
	mine, _ := f.n.ListPendingFor(ctx, "seeker-1")
	if len(mine) != 0 {
		t.Fatalf("the initiator is not awaited, got %d", len(mine))
	}
	if _, err := f.n.ListPendingFor(ctx, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	history, err := f.n.ListForBooking(ctx, "b1")
	if err != nil || len(history) != 1 {
		t.Fatalf("history: %+v, %v", history, err)
	}
}

func TestListPendingForSkipsClosedBookings(t *testing.T) {
	f := newFixture(t, models.BookingConfirmed)
	ctx := context.Background()

	if _, err := f.n.Propose(ctx, "b1", "seeker-1", f.start.Add(time.Hour), "x"); err != nil {
		t.Fatalf("propose: %v", err)
	}

	b, _ := f.repo.GetBooking(ctx, "b1")
	b.Status = models.BookingCancelled
	if err := f.repo.UpdateBooking(ctx, b, b.Version); err != nil {
		t.Fatalf("cancel booking: %v", err)
	}

	awaiting, err := f.n.ListPendingFor(ctx, "carer-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(awaiting) != 0 {
		t.Fatalf("request on a cancelled booking cannot be answered, got %+v", awaiting)
	}

	// The request itself is untouched and still shows in the booking history.
	history, _ := f.n.ListForBooking(ctx, "b1")
	if len(history) != 1 || history[0].Status != models.ScheduleChangePending {
		t.Fatalf("unexpected history: %+v", history)
	}
}
