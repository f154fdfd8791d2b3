package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
)

type ErrorResponse struct {
	Error         string     `json:"error"`
	Details       string     `json:"details,omitempty"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Status        string     `json:"status,omitempty"`
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:     http.StatusBadRequest,
	apperr.KindUnauthorized:   http.StatusUnauthorized,
	apperr.KindForbidden:      http.StatusForbidden,
	apperr.KindNotFound:       http.StatusNotFound,
	apperr.KindInvalidState:   http.StatusConflict,
	apperr.KindConflict:       http.StatusConflict,
	apperr.KindAlreadyPaid:    http.StatusConflict,
	apperr.KindNotConfirmed:   http.StatusConflict,
	apperr.KindBusy:           http.StatusConflict,
	apperr.KindInvalidSlot:    http.StatusUnprocessableEntity,
	apperr.KindAmountMismatch: http.StatusUnprocessableEntity,
	apperr.KindTooEarly:       http.StatusTooEarly,
	apperr.KindTooLate:        http.StatusGone,
	apperr.KindDependency:     http.StatusServiceUnavailable,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeAppError renders err with the status mapped from its kind. Errors
// outside the taxonomy become a 500 without details.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	status, ok := kindStatus[ae.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	resp := ErrorResponse{Error: string(ae.Kind), Details: ae.Message, Status: ae.Status}
	if ae.AppointmentID != uuid.Nil {
		id := ae.AppointmentID
		resp.AppointmentID = &id
	}

	if ae.Kind == apperr.KindDependency {
		log.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("dependency failure")
	}
	if ae.Kind == apperr.KindBusy {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}
