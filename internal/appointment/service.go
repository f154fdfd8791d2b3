package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
	"github.com/hackgods/telemedicine-scheduling/internal/availability"
	"github.com/hackgods/telemedicine-scheduling/internal/config"
	"github.com/hackgods/telemedicine-scheduling/internal/lock"
)

const (
	EventAppointmentSubmitted = "APPOINTMENT_SUBMITTED"
	EventAppointmentApproved  = "APPOINTMENT_APPROVED"
	EventAppointmentRejected  = "APPOINTMENT_REJECTED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventPaymentFailed        = "PAYMENT_FAILED"

	defaultListLimit = 20
	maxListLimit     = 100
)

// SlotChecker answers whether a consultation may start at a slot.
type SlotChecker interface {
	IsOpen(ctx context.Context, d availability.Date, t availability.TimeOfDay) (bool, error)
}

// EventPublisher fans lifecycle events out to other processes.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, appointmentID uuid.UUID, payload []byte) error
}

type Service struct {
	repo        Repository
	slots       SlotChecker
	locker      lock.Locker
	publisher   EventPublisher
	departments map[string]config.Department
	cfg         config.Config
	now         func() time.Time
	logger      zerolog.Logger
}

type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher enables event fan-out in addition to the event log.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(repo Repository, slots SlotChecker, locker lock.Locker, cfg config.Config, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		slots:       slots,
		locker:      locker,
		departments: make(map[string]config.Department, len(cfg.Departments)),
		cfg:         cfg,
		now:         time.Now,
		logger:      logger.With().Str("component", "scheduling").Logger(),
	}
	if s.cfg.Location == nil {
		s.cfg.Location = time.UTC
	}
	for _, d := range cfg.Departments {
		s.departments[d.Code] = d
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Department returns the catalog entry for code.
func (s *Service) Department(code string) (config.Department, bool) {
	d, ok := s.departments[code]
	return d, ok
}

// SubmitRequest is a patient's booking request.
type SubmitRequest struct {
	PatientID  uuid.UUID
	Department string
	Candidates []availability.Slot
	Notes      string
}

// SubmitRequest creates a pending appointment from the patient's preferred
// slots. Candidates must be distinct and none may lie in the past.
func (s *Service) SubmitRequest(ctx context.Context, actor auth.Actor, req SubmitRequest) (*Appointment, error) {
	patientID := req.PatientID
	switch {
	case actor.Role == auth.RolePatient && patientID == uuid.Nil:
		patientID = actor.ID
	case actor.Role == auth.RolePatient && patientID != actor.ID:
		return nil, apperr.Forbidden("patients may only book for themselves")
	case actor.IsStaff() && patientID == uuid.Nil:
		return nil, apperr.Validation("patient_id is required")
	}

	if _, ok := s.departments[req.Department]; !ok {
		return nil, apperr.Validation("unknown department %q", req.Department)
	}

	if len(req.Candidates) > MaxCandidates {
		return nil, apperr.Validation("at most %d candidates may be submitted, got %d", MaxCandidates, len(req.Candidates))
	}
	seen := make(map[availability.Slot]bool, len(req.Candidates))
	for _, c := range req.Candidates {
		if c.Date.IsZero() {
			return nil, apperr.Validation("candidate date is required")
		}
		if c.Time >= availability.EndOfDay {
			return nil, apperr.Validation("candidate time %s is not a valid start time", c.Time)
		}
		if seen[c] {
			return nil, apperr.Validation("candidate %s submitted twice", c)
		}
		seen[c] = true
	}
	if len(seen) < s.cfg.RequiredCandidates {
		return nil, apperr.Validation("%d distinct candidates required, got %d", s.cfg.RequiredCandidates, len(seen))
	}

	now := s.now()
	today := availability.DateOf(now.In(s.cfg.Location))
	for _, c := range req.Candidates {
		if c.Date.Before(today) {
			return nil, apperr.Validation("candidate %s is in the past", c)
		}
	}

	appt := &Appointment{
		ID:         uuid.New(),
		PatientID:  patientID,
		Department: req.Department,
		Candidates: append([]availability.Slot(nil), req.Candidates...),
		Status:     StatusPending,
		Notes:      req.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		return nil, apperr.Dependency("create appointment", err)
	}

	s.logEvent(ctx, appt.ID, EventAppointmentSubmitted, map[string]any{
		"patient_id": patientID.String(),
		"department": appt.Department,
		"candidates": appt.Candidates,
	})
	return appt, nil
}

// Approve picks one of the submitted candidates. The appointment stays
// pending until the payment gate confirms it; approving again before payment
// replaces the chosen slot.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, id uuid.UUID, chosen availability.Slot) (*Appointment, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only staff may approve appointments")
	}

	var updated *Appointment
	err := s.withAppointmentLock(ctx, id, func(lockCtx context.Context) error {
		appt, err := s.load(lockCtx, id)
		if err != nil {
			return err
		}
		if appt.Status != StatusPending {
			return invalidState(appt, "only pending appointments can be approved")
		}
		if !appt.HasCandidate(chosen) {
			return apperr.New(apperr.KindInvalidSlot, "%s is not one of the submitted candidates", chosen).
				WithAppointment(appt.ID, string(appt.Status))
		}

		if err := s.checkSlotOpen(lockCtx, appt, chosen); err != nil {
			return err
		}

		return s.withSlotLock(lockCtx, appt.Department, chosen, func(slotCtx context.Context) error {
			if err := s.checkSlotFree(slotCtx, appt, chosen); err != nil {
				return err
			}

			startsAt := chosen.Start(s.cfg.Location)
			appt.Chosen = &chosen
			appt.StartsAt = &startsAt
			appt.UpdatedAt = s.now()
			if err := s.repo.UpdateAppointment(slotCtx, appt, StatusPending); err != nil {
				return s.mapWriteError(appt, err)
			}
			updated = appt
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentApproved, map[string]any{
		"chosen":      updated.Chosen.String(),
		"approved_by": actor.ID.String(),
	})
	return updated, nil
}

// Reject moves a pending appointment to rejected.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Appointment, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only staff may reject appointments")
	}

	updated, err := s.transition(ctx, id, StatusRejected, func(appt *Appointment) error {
		if appt.Status != StatusPending {
			return invalidState(appt, "only pending appointments can be rejected")
		}
		appt.RejectReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentRejected, map[string]any{"reason": reason})
	return updated, nil
}

// Cancel is allowed for the patient or staff while the appointment is pending
// or confirmed and its chosen start has not been reached.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	updated, err := s.transition(ctx, id, StatusCancelled, func(appt *Appointment) error {
		if err := authorize(actor, appt); err != nil {
			return err
		}
		if appt.Status != StatusPending && appt.Status != StatusConfirmed {
			return invalidState(appt, "appointment can no longer be cancelled")
		}
		if appt.StartsAt != nil && !s.now().Before(*appt.StartsAt) {
			return invalidState(appt, "session has already started")
		}
		by := actor.ID
		appt.CancelledBy = &by
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"cancelled_by": actor.ID.String(),
		"role":         string(actor.Role),
	})
	return updated, nil
}

// Get returns one appointment, visible to its patient and to staff.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// List returns appointments matching f. Patients only ever see their own.
func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter) ([]Appointment, error) {
	if !actor.IsStaff() {
		id := actor.ID
		f.PatientID = &id
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", f.Status)
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

	list, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, apperr.Dependency("list appointments", err)
	}
	return list, nil
}

// CompleteElapsed is intended to be called by the worker periodically. It
// moves confirmed appointments whose session has ended to completed and
// reports how many were moved.
func (s *Service) CompleteElapsed(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.repo.FindConfirmedStartedBefore(ctx, now.Add(-s.cfg.SessionDuration))
	if err != nil {
		return 0, apperr.Dependency("find elapsed appointments", err)
	}

	completed := 0
	for _, c := range candidates {
		_, err := s.transition(ctx, c.ID, StatusCompleted, func(appt *Appointment) error {
			if appt.Status != StatusConfirmed {
				return invalidState(appt, "no longer confirmed")
			}
			at := s.now()
			appt.CompletedAt = &at
			return nil
		})
		if err != nil {
			if errors.Is(err, apperr.ErrInvalidState) {
				continue
			}
			s.logger.Error().Err(err).Str("appointment_id", c.ID.String()).Msg("failed to complete appointment")
			continue
		}
		completed++
		s.logEvent(ctx, c.ID, EventAppointmentCompleted, map[string]any{"reason": "worker"})
	}
	return completed, nil
}

// transition runs check under the appointment lock, then moves the
// appointment to `to` with a status-conditional write.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus, check func(*Appointment) error) (*Appointment, error) {
	var updated *Appointment
	err := s.withAppointmentLock(ctx, id, func(lockCtx context.Context) error {
		appt, err := s.load(lockCtx, id)
		if err != nil {
			return err
		}
		if err := check(appt); err != nil {
			return err
		}
		from := appt.Status
		if !from.CanTransitionTo(to) {
			return invalidState(appt, fmt.Sprintf("cannot move from %s to %s", from, to))
		}

		appt.Status = to
		appt.UpdatedAt = s.now()
		if err := s.repo.UpdateAppointment(lockCtx, appt, from); err != nil {
			appt.Status = from
			return s.mapWriteError(appt, err)
		}
		updated = appt
		return nil
	})
	return updated, err
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, apperr.NotFound("appointment %s not found", id).WithAppointment(id, "")
	}
	if err != nil {
		return nil, apperr.Dependency("load appointment", err)
	}
	return appt, nil
}

// checkSlotOpen fails with InvalidSlot when slot is outside the clinic's
// open window for that date.
func (s *Service) checkSlotOpen(ctx context.Context, appt *Appointment, slot availability.Slot) error {
	open, err := s.slots.IsOpen(ctx, slot.Date, slot.Time)
	if err != nil {
		return apperr.Dependency("check availability", err)
	}
	if !open {
		return apperr.New(apperr.KindInvalidSlot, "clinic is closed at %s", slot).
			WithAppointment(appt.ID, string(appt.Status))
	}
	return nil
}

// checkSlotFree fails with a conflict when another appointment of the same
// department is already confirmed for slot.
func (s *Service) checkSlotFree(ctx context.Context, appt *Appointment, slot availability.Slot) error {
	existing, err := s.repo.GetConfirmedAppointmentForSlot(ctx, appt.Department, slot)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return apperr.Dependency("check confirmed appointment", err)
	}
	if existing != nil && existing.ID != appt.ID {
		return apperr.New(apperr.KindConflict, "%s %s is already booked", appt.Department, slot).
			WithAppointment(appt.ID, string(appt.Status))
	}
	return nil
}

func (s *Service) mapWriteError(appt *Appointment, err error) error {
	switch {
	case errors.Is(err, ErrStaleStatus):
		return invalidState(appt, "appointment changed concurrently")
	case errors.Is(err, ErrSlotTaken):
		return apperr.New(apperr.KindConflict, "slot already booked").WithAppointment(appt.ID, string(appt.Status))
	case errors.Is(err, ErrDuplicatePayment):
		return apperr.New(apperr.KindAlreadyPaid, "payment already recorded").WithAppointment(appt.ID, string(appt.Status))
	case errors.Is(err, ErrAppointmentNotFound):
		return apperr.NotFound("appointment %s not found", appt.ID).WithAppointment(appt.ID, "")
	}
	return apperr.Dependency("save appointment", err)
}

func (s *Service) withAppointmentLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	return s.withLock(ctx, lock.AppointmentKey(id), fn)
}

// withSlotLock serializes conflict decisions for one department slot, the
// shared resource that must never be double-booked.
func (s *Service) withSlotLock(ctx context.Context, department string, slot availability.Slot, fn func(ctx context.Context) error) error {
	return s.withLock(ctx, lock.SlotKey(department, slot.String()), fn)
}

func (s *Service) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	err := s.locker.WithLock(ctx, key, fn)
	if errors.Is(err, lock.ErrNotAcquired) {
		return apperr.New(apperr.KindBusy, "%s is being modified, please retry shortly", key)
	}
	if err != nil && apperr.KindOf(err) == "" {
		return apperr.Dependency("lock "+key, err)
	}
	return err
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Str("appointment_id", appointmentID.String()).Msg("failed to insert event log")
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, eventType, appointmentID, data); err != nil {
			s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
		}
	}

	s.logger.Info().Str("event", eventType).Str("appointment_id", appointmentID.String()).Msg("appointment event")
}

func invalidState(appt *Appointment, msg string) error {
	return apperr.New(apperr.KindInvalidState, "%s", msg).WithAppointment(appt.ID, string(appt.Status))
}

// authorize lets staff through and restricts patients to their own records.
func authorize(actor auth.Actor, appt *Appointment) error {
	if actor.IsStaff() || (actor.Role == auth.RolePatient && actor.ID == appt.PatientID) {
		return nil
	}
	return apperr.Forbidden("appointment belongs to another patient").WithAppointment(appt.ID, string(appt.Status))
}
