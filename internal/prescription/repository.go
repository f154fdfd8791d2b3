package prescription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMedicationNotFound   = errors.New("medication not found")
	ErrPrescriptionNotFound = errors.New("prescription not found")
	// ErrInsufficientStock means the medication has fewer units left than
	// the prescription asks for.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStaleStatus is returned when a conditional update finds the
	// prescription in a different status than expected.
	ErrStaleStatus = errors.New("prescription status changed concurrently")
)

type Repository interface {
	ListMedications(ctx context.Context, search string) ([]Medication, error)
	GetMedication(ctx context.Context, code string) (*Medication, error)
	UpsertMedication(ctx context.Context, m *Medication) error
	// AdjustStock adds delta to the stock of code and returns the new row.
	// The stock never drops below zero.
	AdjustStock(ctx context.Context, code string, delta int, at time.Time) (*Medication, error)

	// CreatePrescription reserves p.Quantity units of the medication and
	// stores p atomically.
	CreatePrescription(ctx context.Context, p *Prescription) error
	GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListPrescriptions(ctx context.Context, f Filter) ([]Prescription, error)
	// MarkShipped moves a pending prescription to shipped.
	MarkShipped(ctx context.Context, id uuid.UUID, at time.Time) (*Prescription, error)
}
