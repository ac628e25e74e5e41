package caregiverRepo

import (
	"context"
	"errors"

	"carelink/models"
)

var ErrNotFound = errors.New("caregiver not found")

// CaregiverRepository is the rate directory the lifecycle manager prices bookings from.
type CaregiverRepository interface {
	// GetByID retrieves a caregiver by its unique ID.
	GetByID(ctx context.Context, id string) (*models.Caregiver, error)
	// Upsert creates or replaces a caregiver entry.
	Upsert(ctx context.Context, caregiver *models.Caregiver) error
	// List returns all caregivers, active or not.
	List(ctx context.Context) ([]models.Caregiver, error)
}
