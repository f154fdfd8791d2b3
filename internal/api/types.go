package api

import (
	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/availability"
	"github.com/hackgods/telemedicine-scheduling/internal/prescription"
)

type SubmitAppointmentRequest struct {
	PatientID  string              `json:"patient_id" validate:"omitempty,uuid"`
	Department string              `json:"department" validate:"required"`
	Candidates []availability.Slot `json:"candidates" validate:"required,min=1"`
	Notes      string              `json:"notes" validate:"max=2000"`
}

type ApproveRequest struct {
	Chosen availability.Slot `json:"chosen"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// PaymentRequest is the provider's terminal payment event as relayed by the
// checkout flow.
type PaymentRequest struct {
	Provider      string `json:"provider" validate:"required,max=50"`
	ExternalTxnID string `json:"external_txn_id" validate:"required,max=200"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	Currency      string `json:"currency" validate:"required,len=3"`
	Status        string `json:"status" validate:"omitempty,oneof=succeeded failed"`
	FailureReason string `json:"failure_reason" validate:"max=500"`
}

type PaymentResponse struct {
	Appointment *appointment.Appointment   `json:"appointment,omitempty"`
	Payment     *appointment.PaymentRecord `json:"payment"`
}

type RuleRequest struct {
	Enabled bool                   `json:"enabled"`
	Start   availability.TimeOfDay `json:"start"`
	End     availability.TimeOfDay `json:"end"`
}

type OpenResponse struct {
	Date availability.Date      `json:"date"`
	Time availability.TimeOfDay `json:"time"`
	Open bool                   `json:"open"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
}

type MedicationRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Stock       int    `json:"stock" validate:"gte=0"`
}

type RestockRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// MedicationView is a catalog entry with its stock bucket.
type MedicationView struct {
	prescription.Medication
	Level prescription.StockLevel `json:"level"`
}

type PrescribeRequest struct {
	MedicationCode string `json:"medication_code" validate:"required,max=100"`
	Quantity       int    `json:"quantity" validate:"gt=0"`
	Instructions   string `json:"instructions" validate:"max=1000"`
}

type MessageRequest struct {
	Body string `json:"body" validate:"required"`
}
