package controls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sessionRepo "carelink/database/repository/session"
	"carelink/models"
	"carelink/services/apperrors"
)

func mic(seq uint64, value bool) models.ControlUpdate {
	return models.ControlUpdate{SessionID: "s1", PartyID: "seeker-1", Field: models.ControlMicrophone, Value: value, Seq: seq}
}

func TestMemoryHubDropsLateUpdates(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	for _, tc := range []struct {
		update  models.ControlUpdate
		applied bool
	}{
		{mic(2, true), true},
		{mic(1, false), false}, // delivered late
		{mic(2, false), false},
		{mic(3, false), true},
	} {
		got, err := hub.Apply(ctx, tc.update)
		if err != nil || got != tc.applied {
			t.Fatalf("seq %d: applied=%v err=%v, want %v", tc.update.Seq, got, err, tc.applied)
		}
	}

	state, _ := hub.State(ctx, "s1")
	v := state.Parties["seeker-1"][models.ControlMicrophone]
	if v.Value || v.Seq != 3 {
		t.Fatalf("unexpected state: %+v", v)
	}
}

func TestMemoryHubFieldsAreIndependent(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	_, _ = hub.Apply(ctx, mic(5, true))
	cam := models.ControlUpdate{SessionID: "s1", PartyID: "seeker-1", Field: models.ControlCamera, Value: true, Seq: 1}
	if applied, _ := hub.Apply(ctx, cam); !applied {
		t.Fatalf("camera seq is tracked separately from microphone")
	}
	other := mic(1, true)
	other.PartyID = "carer-1"
	if applied, _ := hub.Apply(ctx, other); !applied {
		t.Fatalf("each party has its own sequence")
	}
}

func TestMemoryHubConcurrentApplyKeepsHighestSeq(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			_, _ = hub.Apply(ctx, mic(seq, seq%2 == 0))
		}(uint64(i))
	}
	wg.Wait()

	state, _ := hub.State(ctx, "s1")
	if v := state.Parties["seeker-1"][models.ControlMicrophone]; v.Seq != 50 || !v.Value {
		t.Fatalf("expected seq 50 to win, got %+v", v)
	}
}

func TestMemoryHubSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := hub.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = hub.Apply(context.Background(), mic(1, true))
	_, _ = hub.Apply(context.Background(), mic(1, false))

	select {
	case u := <-ch:
		if u.Seq != 1 || !u.Value {
			t.Fatalf("unexpected update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
	select {
	case u := <-ch:
		t.Fatalf("stale update must not be delivered, got %+v", u)
	default:
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func newControlService(t *testing.T, kind models.ServiceKind, status models.BookingStatus) *DefaultControlService {
	t.Helper()
	repo := sessionRepo.NewMemorySessionRepo()
	if err := repo.InsertBooking(context.Background(), &models.Booking{
		ID: "s1", RequesterID: "seeker-1", ProviderID: "carer-1", ServiceKind: kind, Status: status,
	}); err != nil {
		t.Fatal(err)
	}
	return NewControlService(NewMemoryHub(), repo, nil)
}

func TestControlServiceRules(t *testing.T) {
	ctx := context.Background()

	svc := newControlService(t, models.ServiceVideoCall, models.BookingInProgress)
	if applied, err := svc.Apply(ctx, mic(1, true)); err != nil || !applied {
		t.Fatalf("party of a live video call should publish: %v %v", applied, err)
	}
	stranger := mic(2, true)
	stranger.PartyID = "someone"
	if _, err := svc.Apply(ctx, stranger); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("non-party should be refused, got %v", err)
	}
	bad := mic(2, true)
	bad.Field = "volume"
	if _, err := svc.Apply(ctx, bad); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("unknown field should be a validation error, got %v", err)
	}
	if _, err := svc.Apply(ctx, mic(0, true)); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("zero seq should be a validation error, got %v", err)
	}

	home := newControlService(t, models.ServiceHomeCare, models.BookingInProgress)
	if _, err := home.Apply(ctx, mic(1, true)); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("home care has no controls, got %v", err)
	}

	done := newControlService(t, models.ServiceVideoCall, models.BookingCompleted)
	if _, err := done.Apply(ctx, mic(1, true)); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("completed call controls are closed, got %v", err)
	}
	if _, err := done.State(ctx, "s1", "carer-1"); err != nil {
		t.Fatalf("parties can still read state: %v", err)
	}
	if _, err := done.State(ctx, "missing", "carer-1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
