package prescription

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps the catalog and prescriptions in process. Stock
// reservation and prescription insert happen under one lock.
type MemoryRepository struct {
	mu            sync.RWMutex
	medications   map[string]Medication
	prescriptions map[uuid.UUID]Prescription
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		medications:   make(map[string]Medication),
		prescriptions: make(map[uuid.UUID]Prescription),
	}
}

func (r *MemoryRepository) ListMedications(_ context.Context, search string) ([]Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(search)
	var result []Medication
	for _, m := range r.medications {
		if needle != "" &&
			!strings.Contains(strings.ToLower(m.Name), needle) &&
			!strings.Contains(strings.ToLower(m.Description), needle) {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *MemoryRepository) GetMedication(_ context.Context, code string) (*Medication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.medications[code]
	if !ok {
		return nil, ErrMedicationNotFound
	}
	return &m, nil
}

func (r *MemoryRepository) UpsertMedication(_ context.Context, m *Medication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.medications[m.Code] = *m
	return nil
}

func (r *MemoryRepository) AdjustStock(_ context.Context, code string, delta int, at time.Time) (*Medication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.medications[code]
	if !ok {
		return nil, ErrMedicationNotFound
	}
	if m.Stock+delta < 0 {
		return nil, ErrInsufficientStock
	}
	m.Stock += delta
	m.UpdatedAt = at
	r.medications[code] = m
	return &m, nil
}

func (r *MemoryRepository) CreatePrescription(_ context.Context, p *Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.medications[p.MedicationCode]
	if !ok {
		return ErrMedicationNotFound
	}
	if m.Stock < p.Quantity {
		return ErrInsufficientStock
	}
	m.Stock -= p.Quantity
	m.UpdatedAt = p.CreatedAt
	r.medications[m.Code] = m
	r.prescriptions[p.ID] = *p
	return nil
}

func (r *MemoryRepository) GetPrescription(_ context.Context, id uuid.UUID) (*Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prescriptions[id]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) ListPrescriptions(_ context.Context, f Filter) ([]Prescription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Prescription
	for _, p := range r.prescriptions {
		if f.PatientID != nil && p.PatientID != *f.PatientID {
			continue
		}
		if f.AppointmentID != nil && p.AppointmentID != *f.AppointmentID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if f.Offset >= len(result) {
		return nil, nil
	}
	result = result[f.Offset:]
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) MarkShipped(_ context.Context, id uuid.UUID, at time.Time) (*Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.prescriptions[id]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	if p.Status != StatusPending {
		return nil, ErrStaleStatus
	}
	p.Status = StatusShipped
	p.ShippedAt = &at
	r.prescriptions[id] = p
	return &p, nil
}
