package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-scheduling/internal/availability"
)

// MemoryRepository is an indexed in-process Repository. It enforces the same
// uniqueness rules as the Postgres schema: one succeeded payment per
// appointment and one confirmed appointment per department slot.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*Appointment
	payments     map[uuid.UUID][]PaymentRecord
	events       []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]*Appointment),
		payments:     make(map[uuid.UUID][]PaymentRecord),
	}
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = a.clone()
	return nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a.clone(), nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f Filter) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Department != "" && a.Department != f.Department {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		result = append(result, *a.clone())
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

func (r *MemoryRepository) UpdateAppointment(_ context.Context, a *Appointment, from AppointmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(a, from)
}

func (r *MemoryRepository) updateLocked(a *Appointment, from AppointmentStatus) error {
	current, ok := r.appointments[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if current.Status != from {
		return ErrStaleStatus
	}
	if a.Status == StatusConfirmed && a.Chosen != nil {
		if other := r.confirmedForSlotLocked(a.Department, *a.Chosen); other != nil && other.ID != a.ID {
			return ErrSlotTaken
		}
	}
	r.appointments[a.ID] = a.clone()
	return nil
}

func (r *MemoryRepository) GetConfirmedAppointmentForSlot(_ context.Context, department string, slot availability.Slot) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a := r.confirmedForSlotLocked(department, slot); a != nil {
		return a.clone(), nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) confirmedForSlotLocked(department string, slot availability.Slot) *Appointment {
	for _, a := range r.appointments {
		if a.Status == StatusConfirmed && a.Department == department && a.Chosen != nil && *a.Chosen == slot {
			return a
		}
	}
	return nil
}

func (r *MemoryRepository) FindConfirmedStartedBefore(_ context.Context, cutoff time.Time) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Appointment
	for _, a := range r.appointments {
		if a.Status == StatusConfirmed && a.StartsAt != nil && a.StartsAt.Before(cutoff) {
			result = append(result, *a.clone())
		}
	}
	return result, nil
}

func (r *MemoryRepository) ConfirmWithPayment(_ context.Context, a *Appointment, p *PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.payments[a.ID] {
		if existing.Status == PaymentSucceeded {
			return ErrDuplicatePayment
		}
	}
	if err := r.updateLocked(a, StatusPending); err != nil {
		return err
	}
	r.payments[a.ID] = append(r.payments[a.ID], *p)
	return nil
}

func (r *MemoryRepository) InsertPayment(_ context.Context, p *PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[p.AppointmentID]; !ok {
		return ErrAppointmentNotFound
	}
	if p.Status == PaymentSucceeded {
		for _, existing := range r.payments[p.AppointmentID] {
			if existing.Status == PaymentSucceeded {
				return ErrDuplicatePayment
			}
		}
	}
	r.payments[p.AppointmentID] = append(r.payments[p.AppointmentID], *p)
	return nil
}

func (r *MemoryRepository) GetSucceededPayment(_ context.Context, appointmentID uuid.UUID) (*PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments[appointmentID] {
		if p.Status == PaymentSucceeded {
			rec := p
			return &rec, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (r *MemoryRepository) ListPayments(_ context.Context, appointmentID uuid.UUID) ([]PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]PaymentRecord(nil), r.payments[appointmentID]...), nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.events...)
}
