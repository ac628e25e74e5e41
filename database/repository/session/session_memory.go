package sessionRepo

import (
	"context"
	"slices"
	"sort"
	"sync"

	"carelink/models"
)

// MemorySessionRepo is an in-process SessionRepository. Records are copied on
// the way in and out so callers never share state with the store.
type MemorySessionRepo struct {
	mu       sync.RWMutex
	bookings map[string]models.Booking
	changes  map[string]models.ScheduleChangeRequest
}

func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		bookings: make(map[string]models.Booking),
		changes:  make(map[string]models.ScheduleChangeRequest),
	}
}

func (repo *MemorySessionRepo) InsertBooking(_ context.Context, booking *models.Booking) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.bookings[booking.ID] = *booking
	return nil
}

func (repo *MemorySessionRepo) GetBooking(_ context.Context, bookingID string) (*models.Booking, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	b, ok := repo.bookings[bookingID]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (repo *MemorySessionRepo) UpdateBooking(_ context.Context, booking *models.Booking, expectedVersion int64) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	return repo.putBookingLocked(booking, expectedVersion)
}

func (repo *MemorySessionRepo) putBookingLocked(booking *models.Booking, expectedVersion int64) error {
	current, ok := repo.bookings[booking.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	booking.Version = expectedVersion + 1
	repo.bookings[booking.ID] = *booking
	return nil
}

func (repo *MemorySessionRepo) ListBookings(_ context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	out := []models.Booking{}
	for _, b := range repo.bookings {
		if filter.RequesterID != "" && b.RequesterID != filter.RequesterID {
			continue
		}
		if filter.ProviderID != "" && b.ProviderID != filter.ProviderID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, b.Status) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledStart.Equal(out[j].ScheduledStart) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledStart.Before(out[j].ScheduledStart)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (repo *MemorySessionRepo) InsertScheduleChange(_ context.Context, req *models.ScheduleChangeRequest) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if req.Status == models.ScheduleChangePending {
		for _, existing := range repo.changes {
			if existing.OriginalScheduleID == req.OriginalScheduleID && existing.Status == models.ScheduleChangePending {
				return ErrPendingChangeExists
			}
		}
	}
	repo.changes[req.ID] = *req
	return nil
}

func (repo *MemorySessionRepo) GetScheduleChange(_ context.Context, requestID string) (*models.ScheduleChangeRequest, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	req, ok := repo.changes[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &req, nil
}

func (repo *MemorySessionRepo) GetPendingScheduleChange(_ context.Context, bookingID string) (*models.ScheduleChangeRequest, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, req := range repo.changes {
		if req.OriginalScheduleID == bookingID && req.Status == models.ScheduleChangePending {
			return &req, nil
		}
	}
	return nil, ErrNotFound
}

func (repo *MemorySessionRepo) UpdateScheduleChange(_ context.Context, req *models.ScheduleChangeRequest, expectedVersion int64) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if err := repo.checkScheduleChangeLocked(req, expectedVersion); err != nil {
		return err
	}
	req.Version = expectedVersion + 1
	repo.changes[req.ID] = *req
	return nil
}

func (repo *MemorySessionRepo) checkScheduleChangeLocked(req *models.ScheduleChangeRequest, expectedVersion int64) error {
	current, ok := repo.changes[req.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}
	return nil
}

func (repo *MemorySessionRepo) ListScheduleChanges(_ context.Context, filter models.ScheduleChangeFilter) ([]models.ScheduleChangeRequest, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	out := []models.ScheduleChangeRequest{}
	for _, req := range repo.changes {
		if filter.BookingID != "" && req.OriginalScheduleID != filter.BookingID {
			continue
		}
		if filter.InitiatorID != "" && req.InitiatorID != filter.InitiatorID {
			continue
		}
		if filter.CounterpartyID != "" && req.CounterpartyID != filter.CounterpartyID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, req.Status) {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (repo *MemorySessionRepo) ApplyScheduleChange(
	_ context.Context,
	req *models.ScheduleChangeRequest,
	reqVersion int64,
	booking *models.Booking,
	bookingVersion int64,
) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if err := repo.checkScheduleChangeLocked(req, reqVersion); err != nil {
		return err
	}
	if repo.changes[req.ID].Status != models.ScheduleChangePending {
		return ErrVersionConflict
	}
	current, ok := repo.bookings[booking.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != bookingVersion {
		return ErrVersionConflict
	}

	req.Version = reqVersion + 1
	booking.Version = bookingVersion + 1
	repo.changes[req.ID] = *req
	repo.bookings[booking.ID] = *booking
	return nil
}
