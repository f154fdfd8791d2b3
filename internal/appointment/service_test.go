package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
	"github.com/hackgods/telemedicine-scheduling/internal/availability"
)

func TestBookingLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, f.patient.ID, appt.PatientID)
	assert.Nil(t, appt.Chosen)

	chosen := slot(t, "2024-06-04", "14:00")
	approved := f.approve(t, appt.ID, chosen)
	assert.Equal(t, StatusPending, approved.Status)
	require.NotNil(t, approved.Chosen)
	assert.Equal(t, chosen, *approved.Chosen)
	require.NotNil(t, approved.StartsAt)
	assert.True(t, approved.StartsAt.Equal(time.Date(2024, 6, 4, 14, 0, 0, 0, jst)))

	confirmed, rec, err := f.gate.RecordPayment(ctx, f.patient, appt.ID, PaymentEvent{
		Provider:      "paypal",
		ExternalTxnID: "PAY-1",
		Amount:        2200,
		Currency:      "JPY",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.PaymentID)
	assert.Equal(t, rec.ID, *confirmed.PaymentID)
	assert.Equal(t, PaymentSucceeded, rec.Status)

	var types []string
	for _, ev := range f.repo.Events() {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{EventAppointmentSubmitted, EventAppointmentApproved, EventAppointmentConfirmed}, types)
}

func TestSubmitRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	valid := scenarioCandidates(t)
	tests := []struct {
		name  string
		actor auth.Actor
		req   SubmitRequest
		kind  apperr.Kind
	}{
		{
			name:  "too few candidates",
			actor: f.patient,
			req:   SubmitRequest{Department: "dermatology", Candidates: valid[:2]},
			kind:  apperr.KindValidation,
		},
		{
			name:  "duplicate candidates",
			actor: f.patient,
			req:   SubmitRequest{Department: "dermatology", Candidates: []availability.Slot{valid[0], valid[0], valid[1]}},
			kind:  apperr.KindValidation,
		},
		{
			name:  "too many candidates",
			actor: f.patient,
			req:   SubmitRequest{Department: "dermatology", Candidates: append(append([]availability.Slot{}, valid...), slot(t, "2024-06-06", "09:00"))},
			kind:  apperr.KindValidation,
		},
		{
			name:  "candidate in the past",
			actor: f.patient,
			req:   SubmitRequest{Department: "dermatology", Candidates: []availability.Slot{slot(t, "2024-05-31", "10:00"), valid[1], valid[2]}},
			kind:  apperr.KindValidation,
		},
		{
			name:  "candidate at end of day",
			actor: f.patient,
			req:   SubmitRequest{Department: "dermatology", Candidates: []availability.Slot{slot(t, "2024-06-03", "24:00"), valid[1], valid[2]}},
			kind:  apperr.KindValidation,
		},
		{
			name:  "unknown department",
			actor: f.patient,
			req:   SubmitRequest{Department: "cardiology", Candidates: valid},
			kind:  apperr.KindValidation,
		},
		{
			name:  "patient booking for someone else",
			actor: f.patient,
			req:   SubmitRequest{PatientID: uuid.New(), Department: "dermatology", Candidates: valid},
			kind:  apperr.KindForbidden,
		},
		{
			name:  "staff without patient id",
			actor: f.staff,
			req:   SubmitRequest{Department: "dermatology", Candidates: valid},
			kind:  apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appt, err := f.svc.SubmitRequest(ctx, tt.actor, tt.req)
			require.Error(t, err)
			assert.Nil(t, appt)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	list, err := f.svc.List(ctx, f.staff, Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmitRequestAcceptsToday(t *testing.T) {
	f := newFixture(t)

	candidates := []availability.Slot{
		slot(t, "2024-06-01", "08:00"),
		slot(t, "2024-06-03", "10:00"),
		slot(t, "2024-06-04", "10:00"),
	}
	appt := f.submit(t, f.patient, "music-therapy", candidates)
	assert.Len(t, appt.Candidates, 3)
}

func TestStaffSubmitsOnBehalfOfPatient(t *testing.T) {
	f := newFixture(t)
	patientID := uuid.New()

	appt, err := f.svc.SubmitRequest(context.Background(), f.staff, SubmitRequest{
		PatientID:  patientID,
		Department: "dermatology",
		Candidates: scenarioCandidates(t),
	})
	require.NoError(t, err)
	assert.Equal(t, patientID, appt.PatientID)
}

func TestApproveRejectsSlotOutsideCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))

	_, err := f.svc.Approve(ctx, f.staff, appt.ID, slot(t, "2024-06-06", "10:00"))
	require.ErrorIs(t, err, apperr.ErrInvalidSlot)

	stored, err := f.svc.Get(ctx, f.staff, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Nil(t, stored.Chosen)
}

func TestApproveRequiresOpenSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	candidates := []availability.Slot{
		slot(t, "2024-06-04", "17:00"),
		slot(t, "2024-06-08", "10:00"),
		slot(t, "2024-06-05", "10:00"),
	}
	appt := f.submit(t, f.patient, "dermatology", candidates)

	// End of the window is exclusive.
	_, err := f.svc.Approve(ctx, f.staff, appt.ID, candidates[0])
	assert.ErrorIs(t, err, apperr.ErrInvalidSlot)

	// Saturday is closed by default.
	_, err = f.svc.Approve(ctx, f.staff, appt.ID, candidates[1])
	assert.ErrorIs(t, err, apperr.ErrInvalidSlot)

	wed, err := availability.ParseDate("2024-06-05")
	require.NoError(t, err)
	require.NoError(t, f.avail.SetOverride(ctx, availability.Override{Date: wed, Enabled: false}))

	_, err = f.svc.Approve(ctx, f.staff, appt.ID, candidates[2])
	assert.ErrorIs(t, err, apperr.ErrInvalidSlot)

	require.NoError(t, f.avail.RemoveOverride(ctx, wed))
	approved := f.approve(t, appt.ID, candidates[2])
	assert.Equal(t, candidates[2], *approved.Chosen)
}

func TestApproveRequiresStaff(t *testing.T) {
	f := newFixture(t)
	appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))

	_, err := f.svc.Approve(context.Background(), f.patient, appt.ID, appt.Candidates[0])
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestApproveUnknownAppointment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Approve(context.Background(), f.staff, uuid.New(), slot(t, "2024-06-04", "10:00"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApproveAgainReplacesChosenSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))

	f.approve(t, appt.ID, appt.Candidates[0])
	second := f.approve(t, appt.ID, appt.Candidates[1])
	assert.Equal(t, appt.Candidates[1], *second.Chosen)
}

func TestApproveConflictsWithConfirmedAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shared := slot(t, "2024-06-04", "14:00")

	first := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))
	f.approve(t, first.ID, shared)
	f.pay(t, f.patient, first.ID, 2200)

	other := auth.Patient(uuid.New())
	second := f.submit(t, other, "dermatology", scenarioCandidates(t))
	_, err := f.svc.Approve(ctx, f.staff, second.ID, shared)
	require.ErrorIs(t, err, apperr.ErrConflict)

	// A different department is a different resource.
	third := f.submit(t, other, "music-therapy", scenarioCandidates(t))
	approved := f.approve(t, third.ID, shared)
	assert.Equal(t, shared, *approved.Chosen)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))

	_, err := f.svc.Reject(ctx, f.patient, appt.ID, "nope")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	rejected, err := f.svc.Reject(ctx, f.staff, appt.ID, "fully booked that week")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, "fully booked that week", rejected.RejectReason)

	_, err = f.svc.Reject(ctx, f.staff, appt.ID, "again")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.svc.Approve(ctx, f.staff, appt.ID, appt.Candidates[0])
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending by patient", func(t *testing.T) {
		f := newFixture(t)
		appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))

		cancelled, err := f.svc.Cancel(ctx, f.patient, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancelledBy)
		assert.Equal(t, f.patient.ID, *cancelled.CancelledBy)
	})

	t.Run("other patient is forbidden", func(t *testing.T) {
		f := newFixture(t)
		appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))

		_, err := f.svc.Cancel(ctx, auth.Patient(uuid.New()), appt.ID)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})

	t.Run("confirmed before start by staff", func(t *testing.T) {
		f := newFixture(t)
		appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))
		f.approve(t, appt.ID, appt.Candidates[1])
		f.pay(t, f.patient, appt.ID, 2200)

		cancelled, err := f.svc.Cancel(ctx, f.staff, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, cancelled.Status)
	})

	t.Run("confirmed after start", func(t *testing.T) {
		f := newFixture(t)
		appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))
		f.approve(t, appt.ID, slot(t, "2024-06-04", "14:00"))
		f.pay(t, f.patient, appt.ID, 2200)

		f.clock.Set(time.Date(2024, 6, 4, 14, 0, 0, 0, jst))
		_, err := f.svc.Cancel(ctx, f.patient, appt.ID)
		assert.ErrorIs(t, err, apperr.ErrInvalidState)
	})

	t.Run("completed", func(t *testing.T) {
		f := newFixture(t)
		appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))
		f.approve(t, appt.ID, slot(t, "2024-06-04", "14:00"))
		f.pay(t, f.patient, appt.ID, 2200)

		f.clock.Set(time.Date(2024, 6, 4, 15, 0, 0, 0, jst))
		n, err := f.svc.CompleteElapsed(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		_, err = f.svc.Cancel(ctx, f.patient, appt.ID)
		require.ErrorIs(t, err, apperr.ErrInvalidState)

		stored, err := f.svc.Get(ctx, f.staff, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, stored.Status)
	})
}

func TestCompleteElapsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))
	f.approve(t, appt.ID, slot(t, "2024-06-04", "14:00"))
	f.pay(t, f.patient, appt.ID, 2200)

	pending := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))

	// Session is still running.
	f.clock.Set(time.Date(2024, 6, 4, 14, 20, 0, 0, jst))
	n, err := f.svc.CompleteElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.clock.Set(time.Date(2024, 6, 4, 14, 31, 0, 0, jst))
	n, err = f.svc.CompleteElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done, err := f.svc.Get(ctx, f.staff, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)

	untouched, err := f.svc.Get(ctx, f.staff, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, untouched.Status)

	n, err = f.svc.CompleteElapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGetAndListVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine := f.submit(t, f.patient, "dermatology", scenarioCandidates(t))
	other := auth.Patient(uuid.New())
	theirs := f.submit(t, other, "music-therapy", scenarioCandidates(t))

	_, err := f.svc.Get(ctx, f.patient, theirs.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	got, err := f.svc.Get(ctx, f.patient, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	list, err := f.svc.List(ctx, f.patient, Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	all, err := f.svc.List(ctx, f.staff, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	music, err := f.svc.List(ctx, f.staff, Filter{Department: "music-therapy"})
	require.NoError(t, err)
	require.Len(t, music, 1)
	assert.Equal(t, theirs.ID, music[0].ID)

	_, err = f.svc.List(ctx, f.staff, Filter{Status: "expired"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestConcurrentApprovalsNeverDoubleBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shared := slot(t, "2024-06-04", "14:00")

	const n = 8
	ids := make([]uuid.UUID, n)
	patients := make([]auth.Actor, n)
	for i := range ids {
		patients[i] = auth.Patient(uuid.New())
		appt := f.submit(t, patients[i], "dermatology", scenarioCandidates(t))
		f.approve(t, appt.ID, shared)
		ids[i] = appt.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := f.gate.RecordPayment(ctx, patients[i], ids[i], PaymentEvent{
				Provider:      "paypal",
				ExternalTxnID: uuid.NewString(),
				Amount:        2200,
				Currency:      "JPY",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case apperr.KindOf(err) == apperr.KindConflict:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicts)

	confirmed, err := f.svc.List(ctx, f.staff, Filter{Status: StatusConfirmed})
	require.NoError(t, err)
	assert.Len(t, confirmed, 1)
}
