package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/telemedicine-scheduling/internal/availability"
)

const (
	uniqueViolation       = "23505"
	confirmedSlotIndex    = "appointments_confirmed_slot_uq"
	succeededPaymentIndex = "payments_one_success_uq"

	appointmentColumns = `id, patient_id, department, candidates, chosen_date, chosen_minute, starts_at, status, notes, reject_reason, cancelled_by, payment_id, created_at, updated_at, confirmed_at, completed_at`
	paymentColumns     = `id, appointment_id, provider, external_txn_id, amount, currency, status, failure_reason, created_at`
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a            Appointment
		candidates   []byte
		chosenDate   *time.Time
		chosenMinute *int32
	)

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.Department,
		&candidates,
		&chosenDate,
		&chosenMinute,
		&a.StartsAt,
		&a.Status,
		&a.Notes,
		&a.RejectReason,
		&a.CancelledBy,
		&a.PaymentID,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.ConfirmedAt,
		&a.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(candidates, &a.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates of %s: %w", a.ID, err)
	}
	if chosenDate != nil && chosenMinute != nil {
		a.Chosen = &availability.Slot{
			Date: availability.DateOf(*chosenDate),
			Time: availability.TimeOfDay(*chosenMinute),
		}
	}
	return &a, nil
}

func scanPayment(row pgx.Row) (*PaymentRecord, error) {
	var p PaymentRecord
	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.Provider,
		&p.ExternalTxnID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.FailureReason,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// chosenArgs splits the chosen slot into its DATE and minute columns.
func chosenArgs(slot *availability.Slot) (any, any) {
	if slot == nil {
		return nil, nil
	}
	day := time.Date(slot.Date.Year, slot.Date.Month, slot.Date.Day, 0, 0, 0, 0, time.UTC)
	return day, int32(slot.Time)
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case confirmedSlotIndex:
		return ErrSlotTaken
	case succeededPaymentIndex:
		return ErrDuplicatePayment
	}
	return err
}

// Interface methods

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	candidates, err := json.Marshal(a.Candidates)
	if err != nil {
		return fmt.Errorf("encode candidates: %w", err)
	}
	chosenDate, chosenMinute := chosenArgs(a.Chosen)

	_, err = r.pool.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, a.ID, a.PatientID, a.Department, candidates, chosenDate, chosenMinute, a.StartsAt,
		a.Status, a.Notes, a.RejectReason, a.CancelledBy, a.PaymentID,
		a.CreatedAt, a.UpdatedAt, a.ConfirmedAt, a.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f Filter) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.Department != "" {
		args = append(args, f.Department)
		where = append(where, fmt.Sprintf("department = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	return r.queryAppointments(ctx, query, args...)
}

func (r *PgRepository) queryAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment, from AppointmentStatus) error {
	return updateAppointment(ctx, r.pool, a, from)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateAppointment(ctx context.Context, db execer, a *Appointment, from AppointmentStatus) error {
	chosenDate, chosenMinute := chosenArgs(a.Chosen)

	tag, err := db.Exec(ctx, `
		UPDATE appointments
		SET chosen_date = $3,
		    chosen_minute = $4,
		    starts_at = $5,
		    status = $6,
		    reject_reason = $7,
		    cancelled_by = $8,
		    payment_id = $9,
		    updated_at = $10,
		    confirmed_at = $11,
		    completed_at = $12
		WHERE id = $1
		  AND status = $2
	`, a.ID, from, chosenDate, chosenMinute, a.StartsAt, a.Status, a.RejectReason,
		a.CancelledBy, a.PaymentID, a.UpdatedAt, a.ConfirmedAt, a.CompletedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *PgRepository) GetConfirmedAppointmentForSlot(ctx context.Context, department string, slot availability.Slot) (*Appointment, error) {
	chosenDate, chosenMinute := chosenArgs(&slot)
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE department = $1
		  AND chosen_date = $2
		  AND chosen_minute = $3
		  AND status = 'confirmed'
	`, department, chosenDate, chosenMinute)
	return scanAppointment(row)
}

func (r *PgRepository) FindConfirmedStartedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND starts_at IS NOT NULL
		  AND starts_at < $1
	`, cutoff)
}

func (r *PgRepository) ConfirmWithPayment(ctx context.Context, a *Appointment, p *PaymentRecord) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertPayment(ctx, tx, p); err != nil {
		return err
	}
	if err := updateAppointment(ctx, tx, a, StatusPending); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (r *PgRepository) InsertPayment(ctx context.Context, p *PaymentRecord) error {
	return insertPayment(ctx, r.pool, p)
}

func insertPayment(ctx context.Context, db execer, p *PaymentRecord) error {
	_, err := db.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.AppointmentID, p.Provider, p.ExternalTxnID, p.Amount, p.Currency,
		p.Status, p.FailureReason, p.CreatedAt)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetSucceededPayment(ctx context.Context, appointmentID uuid.UUID) (*PaymentRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1 AND status = 'succeeded'
	`, appointmentID)
	return scanPayment(row)
}

func (r *PgRepository) ListPayments(ctx context.Context, appointmentID uuid.UUID) ([]PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1
		ORDER BY created_at
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
