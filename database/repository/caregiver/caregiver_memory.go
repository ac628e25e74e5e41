package caregiverRepo

import (
	"context"
	"sort"
	"sync"

	"carelink/models"
)

type MemoryCaregiverRepo struct {
	mu         sync.RWMutex
	caregivers map[string]models.Caregiver
}

// NewMemoryCaregiverRepo returns a directory pre-loaded with the given entries.
func NewMemoryCaregiverRepo(seed ...models.Caregiver) *MemoryCaregiverRepo {
	repo := &MemoryCaregiverRepo{caregivers: make(map[string]models.Caregiver, len(seed))}
	for _, c := range seed {
		repo.caregivers[c.ID] = cloneCaregiver(c)
	}
	return repo
}

func cloneCaregiver(c models.Caregiver) models.Caregiver {
	c.ServiceKinds = append([]models.ServiceKind(nil), c.ServiceKinds...)
	return c
}

func (repo *MemoryCaregiverRepo) GetByID(_ context.Context, id string) (*models.Caregiver, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	c, ok := repo.caregivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = cloneCaregiver(c)
	return &c, nil
}

func (repo *MemoryCaregiverRepo) Upsert(_ context.Context, caregiver *models.Caregiver) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.caregivers[caregiver.ID] = cloneCaregiver(*caregiver)
	return nil
}

func (repo *MemoryCaregiverRepo) List(_ context.Context) ([]models.Caregiver, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	out := make([]models.Caregiver, 0, len(repo.caregivers))
	for _, c := range repo.caregivers {
		out = append(out, cloneCaregiver(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
