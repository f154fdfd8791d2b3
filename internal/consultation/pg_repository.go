package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `id, appointment_id, sender_id, sender_role, body, created_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) InsertMessage(ctx context.Context, m *Message) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO consultation_messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.AppointmentID, m.SenderID, m.SenderRole, m.Body, m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *PgRepository) ListMessages(ctx context.Context, appointmentID uuid.UUID, p Page) ([]Message, error) {
	after := p.After
	if after.IsZero() {
		after = time.Unix(0, 0)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM consultation_messages
		WHERE appointment_id = $1
		  AND created_at > $2
		ORDER BY created_at, id
		LIMIT $3
	`, appointmentID, after, p.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.AppointmentID, &m.SenderID, &m.SenderRole, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
