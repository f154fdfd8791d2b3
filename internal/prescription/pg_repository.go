package prescription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	medicationColumns   = `code, name, description, stock, updated_at`
	prescriptionColumns = `id, appointment_id, patient_id, medication_code, quantity, instructions, status, prescribed_by, created_at, shipped_at`
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.Code, &m.Name, &m.Description, &m.Stock, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMedicationNotFound
		}
		return nil, err
	}
	return &m, nil
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.PatientID,
		&p.MedicationCode,
		&p.Quantity,
		&p.Instructions,
		&p.Status,
		&p.PrescribedBy,
		&p.CreatedAt,
		&p.ShippedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) ListMedications(ctx context.Context, search string) ([]Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medications`
	var args []any
	if search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		query += ` WHERE LOWER(name) LIKE $1 OR LOWER(description) LIKE $1`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetMedication(ctx context.Context, code string) (*Medication, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+medicationColumns+`
		FROM medications
		WHERE code = $1
	`, code)
	return scanMedication(row)
}

func (r *PgRepository) UpsertMedication(ctx context.Context, m *Medication) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO medications (`+medicationColumns+`)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    stock = EXCLUDED.stock,
		    updated_at = EXCLUDED.updated_at
	`, m.Code, m.Name, m.Description, m.Stock, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert medication: %w", err)
	}
	return nil
}

func (r *PgRepository) AdjustStock(ctx context.Context, code string, delta int, at time.Time) (*Medication, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE medications
		SET stock = stock + $2,
		    updated_at = $3
		WHERE code = $1
		  AND stock + $2 >= 0
		RETURNING `+medicationColumns, code, delta, at)
	m, err := scanMedication(row)
	if errors.Is(err, ErrMedicationNotFound) {
		return nil, r.missingOrShort(ctx, code)
	}
	return m, err
}

// missingOrShort tells apart a conditional update that matched nothing
// because the medication does not exist from one that would go negative.
func (r *PgRepository) missingOrShort(ctx context.Context, code string) error {
	if _, err := r.GetMedication(ctx, code); err != nil {
		return err
	}
	return ErrInsufficientStock
}

func (r *PgRepository) CreatePrescription(ctx context.Context, p *Prescription) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE medications
		SET stock = stock - $2,
		    updated_at = $3
		WHERE code = $1
		  AND stock >= $2
	`, p.MedicationCode, p.Quantity, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrShort(ctx, p.MedicationCode)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO prescriptions (`+prescriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.AppointmentID, p.PatientID, p.MedicationCode, p.Quantity, p.Instructions,
		p.Status, p.PrescribedBy, p.CreatedAt, p.ShippedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PgRepository) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE id = $1
	`, id)
	return scanPrescription(row)
}

func (r *PgRepository) ListPrescriptions(ctx context.Context, f Filter) ([]Prescription, error) {
	var (
		where []string
		args  []any
	)
	if f.PatientID != nil {
		args = append(args, *f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if f.AppointmentID != nil {
		args = append(args, *f.AppointmentID)
		where = append(where, fmt.Sprintf("appointment_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + prescriptionColumns + ` FROM prescriptions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (r *PgRepository) MarkShipped(ctx context.Context, id uuid.UUID, at time.Time) (*Prescription, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE prescriptions
		SET status = 'shipped',
		    shipped_at = $2
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+prescriptionColumns, id, at)
	p, err := scanPrescription(row)
	if errors.Is(err, ErrPrescriptionNotFound) {
		if _, getErr := r.GetPrescription(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleStatus
	}
	return p, err
}
