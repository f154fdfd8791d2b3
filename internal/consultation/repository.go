package consultation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	InsertMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, appointmentID uuid.UUID, p Page) ([]Message, error)
}
