package consultation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-scheduling/internal/auth"
)

// Message is one chat line between the patient and the clinic, scoped to an
// appointment.
type Message struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	SenderID      uuid.UUID `json:"sender_id"`
	SenderRole    auth.Role `json:"sender_role"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
}

// Page selects messages strictly after After, oldest first.
type Page struct {
	After time.Time
	Limit int
}

var ErrDuplicateMessage = errors.New("message already stored")
