package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
	"github.com/hackgods/telemedicine-scheduling/internal/consultation"
	"github.com/hackgods/telemedicine-scheduling/internal/prescription"
)

// Medications

func (h *handlers) listMedications(w http.ResponseWriter, r *http.Request) {
	meds, err := h.prescriptions.ListMedications(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	views := make([]MedicationView, 0, len(meds))
	for _, m := range meds {
		views = append(views, MedicationView{Medication: m, Level: m.Level()})
	}
	writeJSON(w, http.StatusOK, ListResponse[MedicationView]{Items: views})
}

func (h *handlers) putMedication(w http.ResponseWriter, r *http.Request) {
	var req MedicationRequest
	if err := decode(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	m, err := h.prescriptions.SaveMedication(r.Context(), actorFrom(r), prescription.Medication{
		Code:        chi.URLParam(r, "code"),
		Name:        req.Name,
		Description: req.Description,
		Stock:       req.Stock,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MedicationView{Medication: *m, Level: m.Level()})
}

func (h *handlers) restockMedication(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if err := decode(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	m, err := h.prescriptions.Restock(r.Context(), actorFrom(r), chi.URLParam(r, "code"), req.Delta)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MedicationView{Medication: *m, Level: m.Level()})
}

// Prescriptions

func (h *handlers) prescribe(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var req PrescribeRequest
	if err := decode(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	p, err := h.prescriptions.Prescribe(r.Context(), actorFrom(r), id, prescription.PrescribeRequest{
		MedicationCode: req.MedicationCode,
		Quantity:       req.Quantity,
		Instructions:   req.Instructions,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) listPrescriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := prescription.Filter{Status: prescription.Status(q.Get("status"))}

	for key, dst := range map[string]**uuid.UUID{"patient_id": &f.PatientID, "appointment_id": &f.AppointmentID} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			writeAppError(w, r, apperr.Validation("%s must be a valid UUID", key))
			return
		}
		*dst = &id
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

	list, err := h.prescriptions.List(r.Context(), actorFrom(r), f)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if list == nil {
		list = []prescription.Prescription{}
	}
	writeJSON(w, http.StatusOK, ListResponse[prescription.Prescription]{Items: list})
}

func (h *handlers) getPrescription(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	p, err := h.prescriptions.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) shipPrescription(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	p, err := h.prescriptions.Ship(r.Context(), actorFrom(r), id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Messages

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	var req MessageRequest
	if err := decode(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	m, err := h.consultations.Send(r.Context(), actorFrom(r), id, req.Body)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// listMessages accepts ?after=<RFC3339 timestamp> to poll for new messages.
func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	var page consultation.Page
	q := r.URL.Query()
	if raw := q.Get("after"); raw != "" {
		after, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeAppError(w, r, apperr.Validation("after must be an RFC3339 timestamp"))
			return
		}
		page.After = after
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeAppError(w, r, apperr.Validation("limit must be an integer"))
			return
		}
		page.Limit = n
	}

	list, err := h.consultations.List(r.Context(), actorFrom(r), id, page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if list == nil {
		list = []consultation.Message{}
	}
	writeJSON(w, http.StatusOK, ListResponse[consultation.Message]{Items: list})
}
