package prescription

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
)

type fakeAppointments struct {
	byID map[uuid.UUID]*appointment.Appointment
}

func (f *fakeAppointments) Get(_ context.Context, actor auth.Actor, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	if !actor.IsStaff() && actor.ID != a.PatientID {
		return nil, apperr.Forbidden("appointment belongs to another patient")
	}
	return a, nil
}

type fixture struct {
	svc          *Service
	appointments *fakeAppointments
	staff        auth.Actor
	patient      auth.Actor
	now          time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2024, 6, 4, 15, 0, 0, 0, time.UTC)
	appts := &fakeAppointments{byID: make(map[uuid.UUID]*appointment.Appointment)}
	svc := NewService(NewMemoryRepository(), appts, zerolog.Nop(), WithClock(func() time.Time { return now }))

	seeded, err := svc.SeedCatalog(context.Background())
	require.NoError(t, err)
	require.True(t, seeded)

	return &fixture{
		svc:          svc,
		appointments: appts,
		staff:        auth.Staff(uuid.New()),
		patient:      auth.Patient(uuid.New()),
		now:          now,
	}
}

func (f *fixture) appointment(status appointment.AppointmentStatus) *appointment.Appointment {
	a := &appointment.Appointment{ID: uuid.New(), PatientID: f.patient.ID, Department: "dermatology", Status: status}
	f.appointments.byID[a.ID] = a
	return a
}

func TestSeedCatalogOnlyOnce(t *testing.T) {
	f := newFixture(t)

	seeded, err := f.svc.SeedCatalog(context.Background())
	require.NoError(t, err)
	assert.False(t, seeded)

	meds, err := f.svc.ListMedications(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, meds, len(DefaultMedications()))
}

func TestListMedicationsSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	meds, err := f.svc.ListMedications(ctx, "ACNE")
	require.NoError(t, err)
	var codes []string
	for _, m := range meds {
		codes = append(codes, m.Code)
	}
	assert.ElementsMatch(t, []string{"minocycline", "isotretinoin"}, codes)

	meds, err = f.svc.ListMedications(ctx, "kampo")
	require.NoError(t, err)
	assert.Len(t, meds, 2)
}

func TestStockLevel(t *testing.T) {
	tests := []struct {
		stock int
		want  StockLevel
	}{
		{stock: 120, want: StockSufficient},
		{stock: 51, want: StockSufficient},
		{stock: 50, want: StockLow},
		{stock: 21, want: StockLow},
		{stock: 20, want: StockShort},
		{stock: 0, want: StockShort},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Medication{Stock: tt.stock}.Level(), "stock %d", tt.stock)
	}
}

func TestPrescribeReservesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.appointment(appointment.StatusCompleted)

	p, err := f.svc.Prescribe(ctx, f.staff, appt.ID, PrescribeRequest{MedicationCode: "isotretinoin", Quantity: 30, Instructions: " once daily "})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, f.patient.ID, p.PatientID)
	assert.Equal(t, f.staff.ID, p.PrescribedBy)
	assert.Equal(t, "once daily", p.Instructions)

	meds, err := f.svc.ListMedications(ctx, "retinoid")
	require.NoError(t, err)
	require.Len(t, meds, 1)
	assert.Equal(t, 10, meds[0].Stock)
	assert.Equal(t, StockShort, meds[0].Level())

	_, err = f.svc.Prescribe(ctx, f.staff, appt.ID, PrescribeRequest{MedicationCode: "isotretinoin", Quantity: 11})
	require.ErrorIs(t, err, apperr.ErrConflict)

	meds, err = f.svc.ListMedications(ctx, "retinoid")
	require.NoError(t, err)
	assert.Equal(t, 10, meds[0].Stock)
}

func TestPrescribeRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	confirmed := f.appointment(appointment.StatusConfirmed)
	pending := f.appointment(appointment.StatusPending)

	tests := []struct {
		name  string
		actor auth.Actor
		id    uuid.UUID
		req   PrescribeRequest
		kind  apperr.Kind
	}{
		{name: "patient cannot prescribe", actor: f.patient, id: confirmed.ID, req: PrescribeRequest{MedicationCode: "vitamin-d3", Quantity: 1}, kind: apperr.KindForbidden},
		{name: "zero quantity", actor: f.staff, id: confirmed.ID, req: PrescribeRequest{MedicationCode: "vitamin-d3"}, kind: apperr.KindValidation},
		{name: "unknown medication", actor: f.staff, id: confirmed.ID, req: PrescribeRequest{MedicationCode: "aspirin", Quantity: 1}, kind: apperr.KindValidation},
		{name: "unknown appointment", actor: f.staff, id: uuid.New(), req: PrescribeRequest{MedicationCode: "vitamin-d3", Quantity: 1}, kind: apperr.KindNotFound},
		{name: "consultation not confirmed", actor: f.staff, id: pending.ID, req: PrescribeRequest{MedicationCode: "vitamin-d3", Quantity: 1}, kind: apperr.KindInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.svc.Prescribe(ctx, tt.actor, tt.id, tt.req)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}

	meds, err := f.svc.ListMedications(ctx, "bone")
	require.NoError(t, err)
	assert.Equal(t, 150, meds[0].Stock)
}

func TestShip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.appointment(appointment.StatusConfirmed)

	p, err := f.svc.Prescribe(ctx, f.staff, appt.ID, PrescribeRequest{MedicationCode: "glutathione", Quantity: 2})
	require.NoError(t, err)

	_, err = f.svc.Ship(ctx, f.patient, p.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	shipped, err := f.svc.Ship(ctx, f.staff, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, shipped.Status)
	require.NotNil(t, shipped.ShippedAt)
	assert.True(t, shipped.ShippedAt.Equal(f.now))

	_, err = f.svc.Ship(ctx, f.staff, p.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.svc.Ship(ctx, f.staff, uuid.New())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListAndGetVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.appointment(appointment.StatusCompleted)

	other := auth.Patient(uuid.New())
	theirs := &appointment.Appointment{ID: uuid.New(), PatientID: other.ID, Status: appointment.StatusCompleted}
	f.appointments.byID[theirs.ID] = theirs

	p1, err := f.svc.Prescribe(ctx, f.staff, mine.ID, PrescribeRequest{MedicationCode: "vitamin-d3", Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.Prescribe(ctx, f.staff, theirs.ID, PrescribeRequest{MedicationCode: "vitamin-d3", Quantity: 1})
	require.NoError(t, err)
	_, err = f.svc.Ship(ctx, f.staff, p1.ID)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, f.patient, Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p1.ID, list[0].ID)

	all, err := f.svc.List(ctx, f.staff, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := f.svc.List(ctx, f.staff, Filter{Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, other.ID, pending[0].PatientID)

	_, err = f.svc.List(ctx, f.staff, Filter{Status: "lost"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Get(ctx, other, p1.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	got, err := f.svc.Get(ctx, f.patient, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
}

func TestCatalogEditing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveMedication(ctx, f.patient, Medication{Code: "zinc", Name: "Zinc", Stock: 10})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.SaveMedication(ctx, f.staff, Medication{Code: "Zinc Oxide", Name: "Zinc", Stock: 10})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.SaveMedication(ctx, f.staff, Medication{Code: "zinc", Name: "Zinc", Stock: -1})
	require.ErrorIs(t, err, apperr.ErrValidation)

	m, err := f.svc.SaveMedication(ctx, f.staff, Medication{Code: "zinc", Name: " Zinc ", Description: "Mineral supplement.", Stock: 10})
	require.NoError(t, err)
	assert.Equal(t, "Zinc", m.Name)

	m, err = f.svc.Restock(ctx, f.staff, "zinc", 45)
	require.NoError(t, err)
	assert.Equal(t, 55, m.Stock)

	_, err = f.svc.Restock(ctx, f.staff, "zinc", -56)
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Restock(ctx, f.staff, "zinc", 0)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Restock(ctx, f.staff, "iron", 5)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentPrescriptionsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.appointment(appointment.StatusCompleted)

	// isotretinoin starts with 40 units; 8 requests of 7 can fill at most 5.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		soldOut int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Prescribe(ctx, f.staff, appt.ID, PrescribeRequest{MedicationCode: "isotretinoin", Quantity: 7})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.KindOf(err) == apperr.KindConflict:
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 3, soldOut)

	meds, err := f.svc.ListMedications(ctx, "retinoid")
	require.NoError(t, err)
	assert.Equal(t, 5, meds[0].Stock)
}
