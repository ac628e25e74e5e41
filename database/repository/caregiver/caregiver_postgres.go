package caregiverRepo

import (
	"context"
	"errors"
	"fmt"

	"carelink/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCaregiverRepo implements CaregiverRepository using GORM.
type GormCaregiverRepo struct {
	db *gorm.DB
}

func NewGormCaregiverRepo(db *gorm.DB) *GormCaregiverRepo {
	return &GormCaregiverRepo{db: db}
}

func (repo *GormCaregiverRepo) Migrate() error {
	return repo.db.AutoMigrate(&models.Caregiver{})
}

func (repo *GormCaregiverRepo) GetByID(ctx context.Context, id string) (*models.Caregiver, error) {
	var caregiver models.Caregiver
	err := repo.db.WithContext(ctx).First(&caregiver, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve caregiver with id %s: %w", id, err)
	}
	return &caregiver, nil
}

func (repo *GormCaregiverRepo) Upsert(ctx context.Context, caregiver *models.Caregiver) error {
	err := repo.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(caregiver).Error
	if err != nil {
		return fmt.Errorf("failed to save caregiver %s: %w", caregiver.ID, err)
	}
	return nil
}

func (repo *GormCaregiverRepo) List(ctx context.Context) ([]models.Caregiver, error) {
	out := []models.Caregiver{}
	if err := repo.db.WithContext(ctx).Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list caregivers: %w", err)
	}
	return out, nil
}
