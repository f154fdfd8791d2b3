// Package prescription runs the clinic dispensary: a medication catalog
// with stock levels, and prescriptions issued against a consultation that
// staff later ship to the patient.
package prescription

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxQuantity      = 1000
)

var codePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// AppointmentReader loads an appointment on behalf of actor, enforcing
// the same visibility rules as the scheduling service.
type AppointmentReader interface {
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*appointment.Appointment, error)
}

type Service struct {
	repo         Repository
	appointments AppointmentReader
	now          func() time.Time
	logger       zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, appointments AppointmentReader, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		appointments: appointments,
		now:          time.Now,
		logger:       logger.With().Str("component", "dispensary").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SeedCatalog installs DefaultMedications when the catalog is empty and
// reports whether anything was written.
func (s *Service) SeedCatalog(ctx context.Context) (bool, error) {
	existing, err := s.repo.ListMedications(ctx, "")
	if err != nil {
		return false, apperr.Dependency("list medications", err)
	}
	if len(existing) > 0 {
		return false, nil
	}
	now := s.now()
	for _, m := range DefaultMedications() {
		m.UpdatedAt = now
		if err := s.repo.UpsertMedication(ctx, &m); err != nil {
			return false, apperr.Dependency("seed medication", err)
		}
	}
	s.logger.Info().Msg("default medication catalog installed")
	return true, nil
}

// ListMedications returns catalog entries whose name or description
// contains search, case-insensitively. An empty search returns everything.
func (s *Service) ListMedications(ctx context.Context, search string) ([]Medication, error) {
	list, err := s.repo.ListMedications(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, apperr.Dependency("list medications", err)
	}
	return list, nil
}

// SaveMedication creates or replaces a catalog entry.
func (s *Service) SaveMedication(ctx context.Context, actor auth.Actor, m Medication) (*Medication, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only staff may edit the medication catalog")
	}
	m.Code = strings.TrimSpace(m.Code)
	m.Name = strings.TrimSpace(m.Name)
	switch {
	case !codePattern.MatchString(m.Code):
		return nil, apperr.Validation("medication code %q must be lowercase letters, digits and dashes", m.Code)
	case m.Name == "":
		return nil, apperr.Validation("medication name is required")
	case m.Stock < 0:
		return nil, apperr.Validation("stock cannot be negative")
	}

	m.UpdatedAt = s.now()
	if err := s.repo.UpsertMedication(ctx, &m); err != nil {
		return nil, apperr.Dependency("save medication", err)
	}
	s.logger.Info().Str("code", m.Code).Int("stock", m.Stock).Msg("medication saved")
	return &m, nil
}

// Restock adds delta units (negative to write off) to a medication.
func (s *Service) Restock(ctx context.Context, actor auth.Actor, code string, delta int) (*Medication, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only staff may change stock")
	}
	if delta == 0 {
		return nil, apperr.Validation("delta must not be zero")
	}

	m, err := s.repo.AdjustStock(ctx, code, delta, s.now())
	switch {
	case errors.Is(err, ErrMedicationNotFound):
		return nil, apperr.NotFound("medication %q not found", code)
	case errors.Is(err, ErrInsufficientStock):
		return nil, apperr.New(apperr.KindConflict, "stock of %s cannot drop below zero", code)
	case err != nil:
		return nil, apperr.Dependency("adjust stock", err)
	}

	ev := s.logger.Info()
	if m.Level() == StockShort {
		ev = s.logger.Warn()
	}
	ev.Str("code", code).Int("delta", delta).Int("stock", m.Stock).Str("level", string(m.Level())).Msg("stock adjusted")
	return m, nil
}

type PrescribeRequest struct {
	MedicationCode string
	Quantity       int
	Instructions   string
}

// Prescribe issues a medication to the patient of a confirmed or completed
// appointment and reserves the stock for it.
func (s *Service) Prescribe(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, req PrescribeRequest) (*Prescription, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only staff may prescribe")
	}
	if req.Quantity <= 0 || req.Quantity > maxQuantity {
		return nil, apperr.Validation("quantity must be between 1 and %d", maxQuantity)
	}

	appt, err := s.appointments.Get(ctx, actor, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusConfirmed && appt.Status != appointment.StatusCompleted {
		return nil, apperr.New(apperr.KindInvalidState, "prescriptions need a confirmed or completed consultation").
			WithAppointment(appt.ID, string(appt.Status))
	}

	p := &Prescription{
		ID:             uuid.New(),
		AppointmentID:  appt.ID,
		PatientID:      appt.PatientID,
		MedicationCode: strings.TrimSpace(req.MedicationCode),
		Quantity:       req.Quantity,
		Instructions:   strings.TrimSpace(req.Instructions),
		Status:         StatusPending,
		PrescribedBy:   actor.ID,
		CreatedAt:      s.now(),
	}
	err = s.repo.CreatePrescription(ctx, p)
	switch {
	case errors.Is(err, ErrMedicationNotFound):
		return nil, apperr.Validation("unknown medication %q", p.MedicationCode)
	case errors.Is(err, ErrInsufficientStock):
		return nil, apperr.New(apperr.KindConflict, "not enough %s in stock for %d units", p.MedicationCode, p.Quantity).
			WithAppointment(appt.ID, string(appt.Status))
	case err != nil:
		return nil, apperr.Dependency("create prescription", err)
	}

	s.logger.Info().
		Str("prescription_id", p.ID.String()).
		Str("appointment_id", appt.ID.String()).
		Str("medication", p.MedicationCode).
		Int("quantity", p.Quantity).
		Msg("prescription issued")
	return p, nil
}

// Ship marks a pending prescription as sent to the patient.
func (s *Service) Ship(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Prescription, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only staff may ship prescriptions")
	}

	p, err := s.repo.MarkShipped(ctx, id, s.now())
	switch {
	case errors.Is(err, ErrPrescriptionNotFound):
		return nil, apperr.NotFound("prescription %s not found", id)
	case errors.Is(err, ErrStaleStatus):
		return nil, apperr.New(apperr.KindInvalidState, "prescription %s is already shipped", id)
	case err != nil:
		return nil, apperr.Dependency("ship prescription", err)
	}

	s.logger.Info().Str("prescription_id", id.String()).Msg("prescription shipped")
	return p, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Prescription, error) {
	p, err := s.repo.GetPrescription(ctx, id)
	if errors.Is(err, ErrPrescriptionNotFound) {
		return nil, apperr.NotFound("prescription %s not found", id)
	}
	if err != nil {
		return nil, apperr.Dependency("load prescription", err)
	}
	if !actor.IsStaff() && p.PatientID != actor.ID {
		return nil, apperr.Forbidden("prescription belongs to another patient")
	}
	return p, nil
}

// List returns prescriptions matching f. Patients only ever see their own.
func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter) ([]Prescription, error) {
	if !actor.IsStaff() {
		id := actor.ID
		f.PatientID = &id
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown prescription status %q", f.Status)
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	list, err := s.repo.ListPrescriptions(ctx, f)
	if err != nil {
		return nil, apperr.Dependency("list prescriptions", err)
	}
	return list, nil
}
