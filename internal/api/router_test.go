package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
	"github.com/hackgods/telemedicine-scheduling/internal/availability"
	"github.com/hackgods/telemedicine-scheduling/internal/config"
	"github.com/hackgods/telemedicine-scheduling/internal/consultation"
	"github.com/hackgods/telemedicine-scheduling/internal/lock"
	"github.com/hackgods/telemedicine-scheduling/internal/prescription"
	"github.com/hackgods/telemedicine-scheduling/internal/session"
	"github.com/hackgods/telemedicine-scheduling/internal/video"
)

var jst = time.FixedZone("JST", 9*60*60)

type testServer struct {
	handler      http.Handler
	tokens       *auth.TokenManager
	now          time.Time
	patient      auth.Actor
	staff        auth.Actor
	patientToken string
	staffToken   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()

	ts := &testServer{
		tokens:  auth.NewTokenManager("test-secret", "test", time.Hour),
		now:     time.Date(2024, 6, 1, 9, 0, 0, 0, jst),
		patient: auth.Patient(uuid.New()),
		staff:   auth.Staff(uuid.New()),
	}
	clock := func() time.Time { return ts.now }

	cfg := config.Config{
		Location:           jst,
		RequiredCandidates: 3,
		SessionDuration:    30 * time.Minute,
		JoinWindowBefore:   10 * time.Minute,
		Departments: []config.Department{
			{Code: "dermatology", Name: "Cosmetic Dermatology", Fee: 2200, Currency: "JPY"},
			{Code: "music-therapy", Name: "Music Therapy", Fee: 11000, Currency: "JPY"},
		},
	}

	avail := availability.NewStore(availability.NewMemoryRepository(), logger)
	_, err := avail.SeedDefaults(context.Background())
	require.NoError(t, err)

	svc := appointment.NewService(appointment.NewMemoryRepository(), avail, lock.NewLocalLocker(), cfg, logger, appointment.WithClock(clock))
	dispensary := prescription.NewService(prescription.NewMemoryRepository(), svc, logger, prescription.WithClock(clock))
	_, err = dispensary.SeedCatalog(context.Background())
	require.NoError(t, err)
	ts.handler = NewRouter(RouterConfig{
		Service:       svc,
		Payments:      appointment.NewPaymentGate(svc),
		Sessions:      session.NewHandoff(svc, video.NewMockIssuer(time.Hour), cfg.JoinWindowBefore, cfg.SessionDuration, logger, session.WithClock(clock)),
		Availability:  avail,
		Prescriptions: dispensary,
		Consultations: consultation.NewService(consultation.NewMemoryRepository(), svc, logger, consultation.WithClock(clock)),
		Tokens:        ts.tokens,
		Departments:   cfg.Departments,
		Location:      jst,
		Now:           clock,
		Env:           "test",
		Logger:        logger,
	})

	ts.patientToken, err = ts.tokens.Issue(ts.patient)
	require.NoError(t, err)
	ts.staffToken, err = ts.tokens.Issue(ts.staff)
	require.NoError(t, err)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var scenarioCandidates = []map[string]string{
	{"date": "2024-06-03", "time": "10:00"},
	{"date": "2024-06-04", "time": "14:00"},
	{"date": "2024-06-05", "time": "11:00"},
}

func (ts *testServer) submit(t *testing.T) appointment.Appointment {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/appointments", ts.patientToken, map[string]any{
		"department": "dermatology",
		"candidates": scenarioCandidates,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[appointment.Appointment](t, rec)
}

func TestHealthAndDepartmentsArePublic(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = ts.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decodeBody[ReadinessResponse](t, rec)
	assert.Equal(t, "disabled", ready.Dependencies["postgres"])

	rec = ts.do(t, http.MethodGet, "/departments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deps := decodeBody[ListResponse[config.Department]](t, rec)
	require.Len(t, deps.Items, 2)
	assert.Equal(t, int64(2200), deps.Items[0].Fee)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/appointments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/appointments", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBookingFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.submit(t)
	assert.Equal(t, appointment.StatusPending, appt.Status)
	base := "/appointments/" + appt.ID.String()

	// Patients cannot approve.
	rec := ts.do(t, http.MethodPost, base+"/approve", ts.patientToken, map[string]any{"chosen": scenarioCandidates[1]})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/approve", ts.staffToken, map[string]any{
		"chosen": map[string]string{"date": "2024-06-06", "time": "10:00"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errBody := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_slot", errBody.Error)
	require.NotNil(t, errBody.AppointmentID)
	assert.Equal(t, appt.ID, *errBody.AppointmentID)
	assert.Equal(t, "pending", errBody.Status)

	rec = ts.do(t, http.MethodPost, base+"/approve", ts.staffToken, map[string]any{"chosen": scenarioCandidates[1]})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	payment := map[string]any{"provider": "paypal", "external_txn_id": "PAY-1", "amount": 1000, "currency": "JPY"}
	rec = ts.do(t, http.MethodPost, base+"/payments", ts.patientToken, payment)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "amount_mismatch", decodeBody[ErrorResponse](t, rec).Error)

	payment["amount"] = 2200
	rec = ts.do(t, http.MethodPost, base+"/payments", ts.patientToken, payment)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	paid := decodeBody[PaymentResponse](t, rec)
	assert.Equal(t, appointment.StatusConfirmed, paid.Appointment.Status)

	payment["external_txn_id"] = "PAY-2"
	rec = ts.do(t, http.MethodPost, base+"/payments", ts.patientToken, payment)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_paid", decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, base+"/payments", ts.staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[ListResponse[appointment.PaymentRecord]](t, rec).Items, 1)

	// 30 minutes before start is too early.
	ts.now = time.Date(2024, 6, 4, 13, 30, 0, 0, jst)
	rec = ts.do(t, http.MethodPost, base+"/session", ts.patientToken, nil)
	assert.Equal(t, http.StatusTooEarly, rec.Code)
	assert.Equal(t, "too_early", decodeBody[ErrorResponse](t, rec).Error)

	ts.now = time.Date(2024, 6, 4, 13, 55, 0, 0, jst)
	rec = ts.do(t, http.MethodPost, base+"/session", ts.patientToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sess := decodeBody[session.Session](t, rec)
	assert.Equal(t, session.RoomName(appt.ID), sess.Credential.Room)
}

func TestSubmitValidationOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/appointments", ts.patientToken, map[string]any{
		"department": "dermatology",
		"candidates": scenarioCandidates[:2],
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPost, "/appointments", ts.patientToken, map[string]any{
		"candidates": scenarioCandidates,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointments", ts.patientToken, map[string]any{
		"department": "dermatology",
		"candidates": []map[string]string{{"date": "2024-06-03", "time": "25:00"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/appointments", ts.patientToken, map[string]any{
		"department": "dermatology",
		"candidates": scenarioCandidates,
		"unexpected": true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAndVisibilityOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.submit(t)
	base := "/appointments/" + appt.ID.String()

	otherToken, err := ts.tokens.Issue(auth.Patient(uuid.New()))
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, base, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointments", otherToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[ListResponse[appointment.Appointment]](t, rec).Items)

	rec = ts.do(t, http.MethodPost, base+"/cancel", ts.patientToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointment.StatusCancelled, decodeBody[appointment.Appointment](t, rec).Status)

	rec = ts.do(t, http.MethodPost, base+"/cancel", ts.patientToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decodeBody[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/appointments/not-a-uuid", ts.staffToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), ts.staffToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/availability/open?date=2024-06-04&time=09:00", ts.patientToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[OpenResponse](t, rec).Open)

	rec = ts.do(t, http.MethodGet, "/availability/open?date=2024-06-04&time=17:00", ts.patientToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[OpenResponse](t, rec).Open)

	rec = ts.do(t, http.MethodGet, "/availability/open?date=2024-06-04&time=9am", ts.patientToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	override := map[string]any{"enabled": true, "start": "10:00", "end": "12:00"}
	rec = ts.do(t, http.MethodPut, "/availability/overrides/2024-06-08", ts.patientToken, override)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, "/availability/overrides/2024-06-08", ts.staffToken, override)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/availability/window?date=2024-06-08", ts.patientToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	win := decodeBody[availability.Window](t, rec)
	assert.Equal(t, availability.SourceOverride, win.Source)
	assert.True(t, win.Enabled)

	rec = ts.do(t, http.MethodGet, "/availability/overrides?from=2024-06-01&to=2024-06-30", ts.staffToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[ListResponse[availability.Override]](t, rec).Items, 1)

	rec = ts.do(t, http.MethodDelete, "/availability/overrides/2024-06-08", ts.staffToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/availability/overrides/2024-06-08", ts.staffToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/availability/weekly/saturday", ts.staffToken, map[string]any{"enabled": true, "start": "09:00", "end": "13:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPut, "/availability/weekly/6", ts.staffToken, map[string]any{"enabled": true, "start": "13:00", "end": "09:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/availability/weekly", ts.patientToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rules := decodeBody[ListResponse[availability.WeeklyRule]](t, rec)
	require.Len(t, rules.Items, 7)
	for _, r := range rules.Items {
		if r.Weekday == time.Saturday {
			assert.True(t, r.Enabled)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	for raw, want := range map[string]time.Weekday{"0": time.Sunday, "2": time.Tuesday, "Friday": time.Friday, "sat": time.Saturday} {
		got, err := parseWeekday(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := parseWeekday("7")
	assert.Error(t, err)
	_, err = parseWeekday("someday")
	assert.Error(t, err)
}
