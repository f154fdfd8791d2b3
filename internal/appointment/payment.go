package appointment

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
)

// PaymentEvent is the terminal event received from the payment provider.
type PaymentEvent struct {
	Provider      string
	ExternalTxnID string
	Amount        int64
	Currency      string
}

// PaymentGate confirms approved appointments once the provider reports a
// successful payment of exactly the department fee.
type PaymentGate struct {
	svc *Service
}

func NewPaymentGate(svc *Service) *PaymentGate {
	return &PaymentGate{svc: svc}
}

// RecordPayment stores a succeeded payment and moves the appointment from
// pending to confirmed. At most one succeeded payment exists per appointment.
func (g *PaymentGate) RecordPayment(ctx context.Context, actor auth.Actor, id uuid.UUID, ev PaymentEvent) (*Appointment, *PaymentRecord, error) {
	if strings.TrimSpace(ev.ExternalTxnID) == "" {
		return nil, nil, apperr.Validation("external transaction id is required")
	}

	s := g.svc
	var (
		updated *Appointment
		record  *PaymentRecord
	)
	err := s.withAppointmentLock(ctx, id, func(lockCtx context.Context) error {
		appt, err := s.load(lockCtx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, appt); err != nil {
			return err
		}

		dept := s.departments[appt.Department]
		if ev.Amount != dept.Fee {
			return apperr.New(apperr.KindAmountMismatch, "amount %d does not match %s fee %d", ev.Amount, dept.Code, dept.Fee).
				WithAppointment(appt.ID, string(appt.Status))
		}
		if !strings.EqualFold(ev.Currency, dept.Currency) {
			return apperr.Validation("currency %q does not match %s", ev.Currency, dept.Currency).
				WithAppointment(appt.ID, string(appt.Status))
		}

		_, err = s.repo.GetSucceededPayment(lockCtx, appt.ID)
		switch {
		case err == nil:
			return apperr.New(apperr.KindAlreadyPaid, "appointment is already paid").
				WithAppointment(appt.ID, string(appt.Status))
		case !errors.Is(err, ErrPaymentNotFound):
			return apperr.Dependency("load payment", err)
		}

		if appt.Status != StatusPending || appt.Chosen == nil {
			return invalidState(appt, "payment requires an approved pending appointment")
		}

		return s.withSlotLock(lockCtx, appt.Department, *appt.Chosen, func(slotCtx context.Context) error {
			if err := s.checkSlotOpen(slotCtx, appt, *appt.Chosen); err != nil {
				return err
			}
			if err := s.checkSlotFree(slotCtx, appt, *appt.Chosen); err != nil {
				return err
			}

			now := s.now()
			rec := &PaymentRecord{
				ID:            uuid.New(),
				AppointmentID: appt.ID,
				Provider:      ev.Provider,
				ExternalTxnID: ev.ExternalTxnID,
				Amount:        ev.Amount,
				Currency:      dept.Currency,
				Status:        PaymentSucceeded,
				CreatedAt:     now,
			}

			appt.Status = StatusConfirmed
			appt.PaymentID = &rec.ID
			appt.ConfirmedAt = &now
			appt.UpdatedAt = now
			if err := s.repo.ConfirmWithPayment(slotCtx, appt, rec); err != nil {
				appt.Status = StatusPending
				return s.mapWriteError(appt, err)
			}
			updated, record = appt, rec
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentConfirmed, map[string]any{
		"payment_id":      record.ID.String(),
		"external_txn_id": record.ExternalTxnID,
		"amount":          record.Amount,
		"currency":        record.Currency,
	})
	return updated, record, nil
}

// RecordFailure stores a failed payment attempt. The appointment is left
// untouched so the patient can retry.
func (g *PaymentGate) RecordFailure(ctx context.Context, actor auth.Actor, id uuid.UUID, ev PaymentEvent, reason string) (*PaymentRecord, error) {
	s := g.svc
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, appt); err != nil {
		return nil, err
	}

	rec := &PaymentRecord{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		Provider:      ev.Provider,
		ExternalTxnID: ev.ExternalTxnID,
		Amount:        ev.Amount,
		Currency:      strings.ToUpper(ev.Currency),
		Status:        PaymentFailed,
		FailureReason: reason,
		CreatedAt:     s.now(),
	}
	if err := s.repo.InsertPayment(ctx, rec); err != nil {
		return nil, apperr.Dependency("insert payment", err)
	}

	s.logEvent(ctx, appt.ID, EventPaymentFailed, map[string]any{
		"external_txn_id": rec.ExternalTxnID,
		"reason":          reason,
	})
	return rec, nil
}

func (g *PaymentGate) ListPayments(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]PaymentRecord, error) {
	if _, err := g.svc.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	list, err := g.svc.repo.ListPayments(ctx, id)
	if err != nil {
		return nil, apperr.Dependency("list payments", err)
	}
	return list, nil
}
