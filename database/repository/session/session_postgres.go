package sessionRepo

import (
	"context"
	"errors"
	"fmt"

	"carelink/models"

	"gorm.io/gorm"
)

// GormSessionRepo implements SessionRepository on Postgres using GORM.
type GormSessionRepo struct {
	db *gorm.DB
}

func NewGormSessionRepo(db *gorm.DB) *GormSessionRepo {
	return &GormSessionRepo{db: db}
}

// Migrate creates the tables and the partial unique index that allows one
// pending schedule change per booking.
func (repo *GormSessionRepo) Migrate() error {
	if err := repo.db.AutoMigrate(&models.Booking{}, &models.ScheduleChangeRequest{}); err != nil {
		return fmt.Errorf("failed to migrate session tables: %w", err)
	}
	err := repo.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS schedule_changes_one_pending
		ON schedule_changes (original_schedule_id) WHERE status = 'pending'`).Error
	if err != nil {
		return fmt.Errorf("failed to create pending schedule change index: %w", err)
	}
	return nil
}

func (repo *GormSessionRepo) InsertBooking(ctx context.Context, booking *models.Booking) error {
	if err := repo.db.WithContext(ctx).Create(booking).Error; err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (repo *GormSessionRepo) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var booking models.Booking
	err := repo.db.WithContext(ctx).First(&booking, "id = ?", bookingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve booking with id %s: %w", bookingID, err)
	}
	return &booking, nil
}

func (repo *GormSessionRepo) UpdateBooking(ctx context.Context, booking *models.Booking, expectedVersion int64) error {
	return updateBooking(repo.db.WithContext(ctx), booking, expectedVersion)
}

func updateBooking(tx *gorm.DB, booking *models.Booking, expectedVersion int64) error {
	booking.Version = expectedVersion + 1
	res := tx.Model(&models.Booking{}).
		Where("id = ? AND version = ?", booking.ID, expectedVersion).
		Select("*").Omit("id", "created_at").
		Updates(booking)
	if res.Error != nil {
		return fmt.Errorf("failed to update booking %s: %w", booking.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (repo *GormSessionRepo) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	qb := repo.db.WithContext(ctx).Model(&models.Booking{})
	if filter.RequesterID != "" {
		qb = qb.Where("requester_id = ?", filter.RequesterID)
	}
	if filter.ProviderID != "" {
		qb = qb.Where("provider_id = ?", filter.ProviderID)
	}
	if len(filter.Statuses) > 0 {
		qb = qb.Where("status IN ?", filter.Statuses)
	}
	if filter.Limit > 0 {
		qb = qb.Limit(filter.Limit)
	}

	out := []models.Booking{}
	if err := qb.Order("scheduled_start ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return out, nil
}

func (repo *GormSessionRepo) InsertScheduleChange(ctx context.Context, req *models.ScheduleChangeRequest) error {
	err := repo.db.WithContext(ctx).Create(req).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrPendingChangeExists
	}
	if err != nil {
		return fmt.Errorf("failed to create schedule change: %w", err)
	}
	return nil
}

func (repo *GormSessionRepo) GetScheduleChange(ctx context.Context, requestID string) (*models.ScheduleChangeRequest, error) {
	return repo.firstScheduleChange(repo.db.WithContext(ctx).Where("id = ?", requestID))
}

func (repo *GormSessionRepo) GetPendingScheduleChange(ctx context.Context, bookingID string) (*models.ScheduleChangeRequest, error) {
	return repo.firstScheduleChange(repo.db.WithContext(ctx).
		Where("original_schedule_id = ? AND status = ?", bookingID, models.ScheduleChangePending))
}

func (repo *GormSessionRepo) firstScheduleChange(qb *gorm.DB) (*models.ScheduleChangeRequest, error) {
	var req models.ScheduleChangeRequest
	err := qb.First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve schedule change: %w", err)
	}
	return &req, nil
}

func (repo *GormSessionRepo) UpdateScheduleChange(ctx context.Context, req *models.ScheduleChangeRequest, expectedVersion int64) error {
	return updateScheduleChange(repo.db.WithContext(ctx), req, expectedVersion, false)
}

func updateScheduleChange(tx *gorm.DB, req *models.ScheduleChangeRequest, expectedVersion int64, mustBePending bool) error {
	req.Version = expectedVersion + 1
	qb := tx.Model(&models.ScheduleChangeRequest{}).
		Where("id = ? AND version = ?", req.ID, expectedVersion)
	if mustBePending {
		qb = qb.Where("status = ?", models.ScheduleChangePending)
	}
	res := qb.Select("*").Omit("id", "created_at").Updates(req)
	if res.Error != nil {
		return fmt.Errorf("failed to update schedule change %s: %w", req.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (repo *GormSessionRepo) ListScheduleChanges(ctx context.Context, filter models.ScheduleChangeFilter) ([]models.ScheduleChangeRequest, error) {
	qb := repo.db.WithContext(ctx).Model(&models.ScheduleChangeRequest{})
	if filter.BookingID != "" {
		qb = qb.Where("original_schedule_id = ?", filter.BookingID)
	}
	if filter.InitiatorID != "" {
		qb = qb.Where("initiator_id = ?", filter.InitiatorID)
	}
	if filter.CounterpartyID != "" {
		qb = qb.Where("counterparty_id = ?", filter.CounterpartyID)
	}
	if len(filter.Statuses) > 0 {
		qb = qb.Where("status IN ?", filter.Statuses)
	}

	out := []models.ScheduleChangeRequest{}
	if err := qb.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list schedule changes: %w", err)
	}
	return out, nil
}

// ApplyScheduleChange runs both version-checked updates in one transaction.
func (repo *GormSessionRepo) ApplyScheduleChange(
	ctx context.Context,
	req *models.ScheduleChangeRequest,
	reqVersion int64,
	booking *models.Booking,
	bookingVersion int64,
) error {
	return repo.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := updateScheduleChange(tx, req, reqVersion, true); err != nil {
			return err
		}
		return updateBooking(tx, booking, bookingVersion)
	})
}
