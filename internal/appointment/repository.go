package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-scheduling/internal/availability"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	// ErrStaleStatus is returned when a conditional update finds the row in
	// a different status than the caller read.
	ErrStaleStatus = errors.New("appointment status changed concurrently")
	// ErrDuplicatePayment means a succeeded payment already exists.
	ErrDuplicatePayment = errors.New("appointment already has a succeeded payment")
	// ErrSlotTaken means another confirmed appointment holds the slot.
	ErrSlotTaken = errors.New("slot already has a confirmed appointment")
)

// Repository contains all persistence needed by the scheduling service and
// the payment gate.
type Repository interface {
	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f Filter) ([]Appointment, error)

	// UpdateAppointment writes a only when the stored status still equals from.
	UpdateAppointment(ctx context.Context, a *Appointment, from AppointmentStatus) error

	// For conflict checks
	GetConfirmedAppointmentForSlot(ctx context.Context, department string, slot availability.Slot) (*Appointment, error)

	// Completion worker
	FindConfirmedStartedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	// Payments. ConfirmWithPayment stores p and writes a (now confirmed)
	// atomically, conditional on the stored status being pending.
	ConfirmWithPayment(ctx context.Context, a *Appointment, p *PaymentRecord) error
	InsertPayment(ctx context.Context, p *PaymentRecord) error
	GetSucceededPayment(ctx context.Context, appointmentID uuid.UUID) (*PaymentRecord, error)
	ListPayments(ctx context.Context, appointmentID uuid.UUID) ([]PaymentRecord, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
