package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemedicine-scheduling/internal/auth"
	"github.com/hackgods/telemedicine-scheduling/internal/availability"
	"github.com/hackgods/telemedicine-scheduling/internal/config"
	"github.com/hackgods/telemedicine-scheduling/internal/lock"
)

var jst = time.FixedZone("JST", 9*60*60)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	svc     *Service
	gate    *PaymentGate
	repo    *MemoryRepository
	avail   *availability.Store
	clock   *fakeClock
	staff   auth.Actor
	patient auth.Actor
}

func testConfig() config.Config {
	return config.Config{
		Location:           jst,
		RequiredCandidates: 3,
		SessionDuration:    30 * time.Minute,
		JoinWindowBefore:   10 * time.Minute,
		Departments: []config.Department{
			{Code: "dermatology", Name: "Cosmetic Dermatology", Fee: 2200, Currency: "JPY"},
			{Code: "music-therapy", Name: "Music Therapy", Fee: 11000, Currency: "JPY"},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zerolog.Nop()
	avail := availability.NewStore(availability.NewMemoryRepository(), logger)
	_, err := avail.SeedDefaults(context.Background())
	require.NoError(t, err)

	clock := &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, jst)}
	repo := NewMemoryRepository()
	svc := NewService(repo, avail, lock.NewLocalLocker(), testConfig(), logger, WithClock(clock.Now))

	return &fixture{
		svc:     svc,
		gate:    NewPaymentGate(svc),
		repo:    repo,
		avail:   avail,
		clock:   clock,
		staff:   auth.Staff(uuid.New()),
		patient: auth.Patient(uuid.New()),
	}
}

func slot(t *testing.T, date, tod string) availability.Slot {
	t.Helper()
	d, err := availability.ParseDate(date)
	require.NoError(t, err)
	tm, err := availability.ParseTimeOfDay(tod)
	require.NoError(t, err)
	return availability.Slot{Date: d, Time: tm}
}

func scenarioCandidates(t *testing.T) []availability.Slot {
	return []availability.Slot{
		slot(t, "2024-06-03", "10:00"),
		slot(t, "2024-06-04", "14:00"),
		slot(t, "2024-06-05", "11:00"),
	}
}

func (f *fixture) submit(t *testing.T, patient auth.Actor, dept string, candidates []availability.Slot) *Appointment {
	t.Helper()
	appt, err := f.svc.SubmitRequest(context.Background(), patient, SubmitRequest{
		Department: dept,
		Candidates: candidates,
	})
	require.NoError(t, err)
	return appt
}

func (f *fixture) approve(t *testing.T, id uuid.UUID, s availability.Slot) *Appointment {
	t.Helper()
	appt, err := f.svc.Approve(context.Background(), f.staff, id, s)
	require.NoError(t, err)
	return appt
}

func (f *fixture) pay(t *testing.T, actor auth.Actor, id uuid.UUID, amount int64) *Appointment {
	t.Helper()
	appt, _, err := f.gate.RecordPayment(context.Background(), actor, id, PaymentEvent{
		Provider:      "paypal",
		ExternalTxnID: "txn-" + uuid.NewString(),
		Amount:        amount,
		Currency:      "JPY",
	})
	require.NoError(t, err)
	return appt
}
