package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/example/lifelink/internal/donor/domain"
)

// MemoryRepository provides an in-memory donor store suitable for tests and
// local demos.
type MemoryRepository struct {
	mu     sync.RWMutex
	donors map[uuid.UUID]domain.Donor
}

// NewMemoryRepository constructs an empty memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{donors: make(map[uuid.UUID]domain.Donor)}
}

// CreateDonor stores the donor and returns it.
func (m *MemoryRepository) CreateDonor(_ context.Context, donor domain.Donor) (domain.Donor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.donors[donor.ID] = donor
	return donor, nil
}

// GetDonorByID retrieves a donor.
func (m *MemoryRepository) GetDonorByID(_ context.Context, id uuid.UUID) (domain.Donor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	donor, ok := m.donors[id]
	if !ok {
		return domain.Donor{}, domain.ErrDonorNotFound
	}
	return donor, nil
}

// UpdateDonor replaces the stored donor.
func (m *MemoryRepository) UpdateDonor(_ context.Context, donor domain.Donor) (domain.Donor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.donors[donor.ID]; !ok {
		return domain.Donor{}, domain.ErrDonorNotFound
	}
	m.donors[donor.ID] = donor
	return donor, nil
}

// SetEligibleToDonate writes the derived eligibility flag as a single field
// update, leaving the rest of the record untouched.
func (m *MemoryRepository) SetEligibleToDonate(_ context.Context, id uuid.UUID, eligible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	donor, ok := m.donors[id]
	if !ok {
		return domain.ErrDonorNotFound
	}
	donor.EligibleToDonate = eligible
	m.donors[id] = donor
	return nil
}

// ListDonors returns a snapshot of all donors.
func (m *MemoryRepository) ListDonors(_ context.Context) ([]domain.Donor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	donors := make([]domain.Donor, 0, len(m.donors))
	for _, donor := range m.donors {
		donors = append(donors, donor)
	}
	return donors, nil
}
