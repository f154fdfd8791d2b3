package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
	"github.com/hackgods/telemedicine-scheduling/internal/availability"
	"github.com/hackgods/telemedicine-scheduling/internal/config"
	"github.com/hackgods/telemedicine-scheduling/internal/consultation"
	"github.com/hackgods/telemedicine-scheduling/internal/prescription"
	"github.com/hackgods/telemedicine-scheduling/internal/session"
)

const (
	maxBodyBytes         = 1 << 20
	defaultOverrideRange = 30
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type handlers struct {
	appointments  *appointment.Service
	payments      *appointment.PaymentGate
	sessions      *session.Handoff
	availability  *availability.Store
	prescriptions *prescription.Service
	consultations *consultation.Service
	departments   []config.Department
	location      *time.Location
	now           func() time.Time
}

// decode reads a JSON body into dst and runs struct validation on it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("could not parse JSON: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Validation("field %s failed %q validation", fe.Field(), fe.Tag())
		}
		return apperr.Validation("%v", err)
	}
	return nil
}

func actorFrom(r *http.Request) auth.Actor {
	actor, _ := auth.FromContext(r.Context())
	return actor
}

func requireStaff(r *http.Request) error {
	if !actorFrom(r).IsStaff() {
		return apperr.Forbidden("staff only")
	}
	return nil
}

func idParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("id must be a valid UUID")
	}
	return id, nil
}

func (h *handlers) listDepartments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ListResponse[config.Department]{Items: h.departments})
}

// Appointments

func (h *handlers) submitAppointment(w http.ResponseWriter, r *http.Request) {
	var req SubmitAppointmentRequest
	if err := decode(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	var patientID uuid.UUID
	if req.PatientID != "" {
		patientID = uuid.MustParse(req.PatientID)
	}

	appt, err := h.appointments.SubmitRequest(r.Context(), actorFrom(r), appointment.SubmitRequest{
		PatientID:  patientID,
		Department: req.Department,
		Candidates: req.Candidates,
		Notes:      req.Notes,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := appointment.Filter{
		Department: q.Get("department"),
		Status:     appointment.AppointmentStatus(q.Get("status")),
	}

	if raw := q.Get("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeAppError(w, r, apperr.Validation("patient_id must be a valid UUID"))
			return
		}
		f.PatientID = &id
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeAppError(w, r, apperr.Validation("%s must be an integer", key))
			return
		}
		*dst = n
	}

	list, err := h.appointments.List(r.Context(), actorFrom(r), f)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if list == nil {
		list = []appointment.Appointment{}
	}
	writeJSON(w, http.StatusOK, ListResponse[appointment.Appointment]{Items: list})
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	appt, err := h.appointments.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) approveAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var req ApproveRequest
	if err := decode(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if req.Chosen.Date.IsZero() {
		writeAppError(w, r, apperr.Validation("chosen slot is required"))
		return
	}

	appt, err := h.appointments.Approve(r.Context(), actorFrom(r), id, req.Chosen)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) rejectAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var req RejectRequest
	if err := decode(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	appt, err := h.appointments.Reject(r.Context(), actorFrom(r), id, req.Reason)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	appt, err := h.appointments.Cancel(r.Context(), actorFrom(r), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Payments

func (h *handlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var req PaymentRequest
	if err := decode(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	ev := appointment.PaymentEvent{
		Provider:      req.Provider,
		ExternalTxnID: req.ExternalTxnID,
		Amount:        req.Amount,
		Currency:      req.Currency,
	}

	if req.Status == string(appointment.PaymentFailed) {
		rec, err := h.payments.RecordFailure(r.Context(), actorFrom(r), id, ev, req.FailureReason)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, PaymentResponse{Payment: rec})
		return
	}

	appt, rec, err := h.payments.RecordPayment(r.Context(), actorFrom(r), id, ev)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PaymentResponse{Appointment: appt, Payment: rec})
}

func (h *handlers) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	list, err := h.payments.ListPayments(r.Context(), actorFrom(r), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if list == nil {
		list = []appointment.PaymentRecord{}
	}
	writeJSON(w, http.StatusOK, ListResponse[appointment.PaymentRecord]{Items: list})
}

// Session

func (h *handlers) joinSession(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	sess, err := h.sessions.GetSessionCredentials(r.Context(), actorFrom(r), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Availability

func (h *handlers) listWeeklyRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.availability.WeeklyRules(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if rules == nil {
		rules = []availability.WeeklyRule{}
	}
	writeJSON(w, http.StatusOK, ListResponse[availability.WeeklyRule]{Items: rules})
}

func (h *handlers) putWeeklyRule(w http.ResponseWriter, r *http.Request) {
	if err := requireStaff(r); err != nil {
		writeAppError(w, r, err)
		return
	}
	wd, err := parseWeekday(chi.URLParam(r, "weekday"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var req RuleRequest
	if err := decode(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	rule := availability.WeeklyRule{Weekday: wd, Enabled: req.Enabled, Start: req.Start, End: req.End}
	if err := h.availability.SetWeeklyRule(r.Context(), rule); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *handlers) listOverrides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := availability.DateOf(h.now().In(h.location))
	if raw := q.Get("from"); raw != "" {
		d, err := availability.ParseDate(raw)
		if err != nil {
			writeAppError(w, r, apperr.Validation("%v", err))
			return
		}
		from = d
	}
	to := from.AddDays(defaultOverrideRange)
	if raw := q.Get("to"); raw != "" {
		d, err := availability.ParseDate(raw)
		if err != nil {
			writeAppError(w, r, apperr.Validation("%v", err))
			return
		}
		to = d
	}

	list, err := h.availability.Overrides(r.Context(), from, to)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if list == nil {
		list = []availability.Override{}
	}
	writeJSON(w, http.StatusOK, ListResponse[availability.Override]{Items: list})
}

func (h *handlers) putOverride(w http.ResponseWriter, r *http.Request) {
	if err := requireStaff(r); err != nil {
		writeAppError(w, r, err)
		return
	}
	d, err := availability.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeAppError(w, r, apperr.Validation("%v", err))
		return
	}
	var req RuleRequest
	if err := decode(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}

	o := availability.Override{Date: d, Enabled: req.Enabled, Start: req.Start, End: req.End}
	if err := h.availability.SetOverride(r.Context(), o); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handlers) deleteOverride(w http.ResponseWriter, r *http.Request) {
	if err := requireStaff(r); err != nil {
		writeAppError(w, r, err)
		return
	}
	d, err := availability.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeAppError(w, r, apperr.Validation("%v", err))
		return
	}

	if err := h.availability.RemoveOverride(r.Context(), d); err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) isOpen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := availability.ParseDate(q.Get("date"))
	if err != nil {
		writeAppError(w, r, apperr.Validation("%v", err))
		return
	}
	t, err := availability.ParseTimeOfDay(q.Get("time"))
	if err != nil {
		writeAppError(w, r, apperr.Validation("%v", err))
		return
	}

	open, err := h.availability.IsOpen(r.Context(), d, t)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OpenResponse{Date: d, Time: t, Open: open})
}

func (h *handlers) window(w http.ResponseWriter, r *http.Request) {
	d, err := availability.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeAppError(w, r, apperr.Validation("%v", err))
		return
	}

	win, err := h.availability.Window(r.Context(), d)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

// parseWeekday accepts 0-6 with Sunday as 0, or an English day name.
func parseWeekday(raw string) (time.Weekday, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 || n > 6 {
			return 0, apperr.Validation("weekday %d out of range", n)
		}
		return time.Weekday(n), nil
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(raw, wd.String()) || strings.EqualFold(raw, wd.String()[:3]) {
			return wd, nil
		}
	}
	return 0, apperr.Validation("unknown weekday %q", raw)
}
