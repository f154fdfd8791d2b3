package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Medication is one entry of the clinic's dispensary catalog.
type Medication struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Stock       int       `json:"stock"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type StockLevel string

const (
	StockSufficient StockLevel = "sufficient"
	StockLow        StockLevel = "low"
	StockShort      StockLevel = "short"
)

// Level buckets the remaining stock the way the dispensary screen shows it.
func (m Medication) Level() StockLevel {
	switch {
	case m.Stock > 50:
		return StockSufficient
	case m.Stock > 20:
		return StockLow
	default:
		return StockShort
	}
}

type Status string

const (
	StatusPending Status = "pending"
	StatusShipped Status = "shipped"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusShipped
}

// Prescription is a medication issued to a patient against a consultation.
// It is pending until the dispensary ships it.
type Prescription struct {
	ID             uuid.UUID  `json:"id"`
	AppointmentID  uuid.UUID  `json:"appointment_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	MedicationCode string     `json:"medication_code"`
	Quantity       int        `json:"quantity"`
	Instructions   string     `json:"instructions,omitempty"`
	Status         Status     `json:"status"`
	PrescribedBy   uuid.UUID  `json:"prescribed_by"`
	CreatedAt      time.Time  `json:"created_at"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
}

type Filter struct {
	PatientID     *uuid.UUID
	AppointmentID *uuid.UUID
	Status        Status
	Limit         int
	Offset        int
}

// DefaultMedications is the catalog installed on an empty store.
func DefaultMedications() []Medication {
	return []Medication{
		{Code: "tranexamic-acid", Name: "Tranexamic acid", Description: "Antiplasmin. Reduces skin inflammation.", Stock: 120},
		{Code: "glutathione", Name: "Glutathione", Description: "Antioxidant preparation.", Stock: 85},
		{Code: "tocopherol", Name: "Tocopherol nicotinate", Description: "Vitamin E preparation with antioxidant effect.", Stock: 95},
		{Code: "vitamin-d3", Name: "Vitamin D3", Description: "Supports bone formation.", Stock: 150},
		{Code: "minocycline", Name: "Minocycline", Description: "Tetracycline antibiotic for skin infections such as acne.", Stock: 75},
		{Code: "isotretinoin", Name: "Isotretinoin", Description: "Retinoid for severe acne.", Stock: 40},
		{Code: "dutasteride", Name: "Dutasteride", Description: "5-alpha reductase inhibitor used for androgenetic alopecia.", Stock: 60},
		{Code: "jumihaidokuto", Name: "Jumihaidokuto", Description: "Kampo formula for skin inflammation.", Stock: 80},
		{Code: "bofutsushosan", Name: "Bofutsushosan", Description: "Kampo formula for obesity and constipation.", Stock: 70},
	}
}
