package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-scheduling/internal/availability"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusRejected  AppointmentStatus = "rejected"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// MaxCandidates is the most preferred slots a patient may submit.
const MaxCandidates = 3

type Appointment struct {
	ID           uuid.UUID           `json:"id"`
	PatientID    uuid.UUID           `json:"patient_id"`
	Department   string              `json:"department"`
	Candidates   []availability.Slot `json:"candidates"`
	Chosen       *availability.Slot  `json:"chosen,omitempty"`
	StartsAt     *time.Time          `json:"starts_at,omitempty"`
	Status       AppointmentStatus   `json:"status"`
	Notes        string              `json:"notes,omitempty"`
	RejectReason string              `json:"reject_reason,omitempty"`
	CancelledBy  *uuid.UUID          `json:"cancelled_by,omitempty"`
	PaymentID    *uuid.UUID          `json:"payment_id,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	ConfirmedAt  *time.Time          `json:"confirmed_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

// HasCandidate reports whether slot was among the submitted candidates.
func (a *Appointment) HasCandidate(slot availability.Slot) bool {
	for _, c := range a.Candidates {
		if c == slot {
			return true
		}
	}
	return false
}

func (a *Appointment) clone() *Appointment {
	cp := *a
	cp.Candidates = append([]availability.Slot(nil), a.Candidates...)
	if a.Chosen != nil {
		chosen := *a.Chosen
		cp.Chosen = &chosen
	}
	return &cp
}

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentRecord is one terminal event reported by the payment provider.
// Amount is in minor units of Currency.
type PaymentRecord struct {
	ID            uuid.UUID     `json:"id"`
	AppointmentID uuid.UUID     `json:"appointment_id"`
	Provider      string        `json:"provider"`
	ExternalTxnID string        `json:"external_txn_id"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	Status        PaymentStatus `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	PatientID  *uuid.UUID
	Department string
	Status     AppointmentStatus
	Limit      int
	Offset     int
}
