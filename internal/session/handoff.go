// Package session hands a confirmed appointment over to the video provider
// once its join window has opened.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
	"github.com/hackgods/telemedicine-scheduling/internal/video"
)

var roomNamespace = uuid.MustParse("6f1c0d3e-8a52-4c1b-9d8e-2b7f5a4e9c10")

// RoomName derives the consultation room for an appointment. The same
// appointment always maps to the same room.
func RoomName(appointmentID uuid.UUID) string {
	return "consult-" + uuid.NewSHA1(roomNamespace, appointmentID[:]).String()
}

// AppointmentReader loads an appointment on behalf of an actor, enforcing
// visibility.
type AppointmentReader interface {
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*appointment.Appointment, error)
}

// Session is the join information returned to a participant.
type Session struct {
	AppointmentID uuid.UUID         `json:"appointment_id"`
	StartsAt      time.Time         `json:"starts_at"`
	EndsAt        time.Time         `json:"ends_at"`
	Credential    *video.Credential `json:"credential"`
}

type Handoff struct {
	appointments AppointmentReader
	issuer       video.CredentialIssuer
	joinBefore   time.Duration
	duration     time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

type Option func(*Handoff)

func WithClock(now func() time.Time) Option {
	return func(h *Handoff) { h.now = now }
}

func NewHandoff(appointments AppointmentReader, issuer video.CredentialIssuer, joinBefore, duration time.Duration, logger zerolog.Logger, opts ...Option) *Handoff {
	h := &Handoff{
		appointments: appointments,
		issuer:       issuer,
		joinBefore:   joinBefore,
		duration:     duration,
		now:          time.Now,
		logger:       logger.With().Str("component", "session").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// GetSessionCredentials issues a join credential for the appointment's room.
// The window runs from joinBefore ahead of the start until the session ends.
func (h *Handoff) GetSessionCredentials(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Session, error) {
	appt, err := h.appointments.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != appointment.StatusConfirmed || appt.StartsAt == nil {
		return nil, apperr.New(apperr.KindNotConfirmed, "appointment is not confirmed").
			WithAppointment(appt.ID, string(appt.Status))
	}

	start := *appt.StartsAt
	end := start.Add(h.duration)
	opens := start.Add(-h.joinBefore)
	now := h.now()
	if now.Before(opens) {
		return nil, apperr.New(apperr.KindTooEarly, "session opens at %s", opens.Format(time.RFC3339)).
			WithAppointment(appt.ID, string(appt.Status))
	}
	if !now.Before(end) {
		return nil, apperr.New(apperr.KindTooLate, "session ended at %s", end.Format(time.RFC3339)).
			WithAppointment(appt.ID, string(appt.Status))
	}

	room := RoomName(appt.ID)
	cred, err := h.issuer.IssueJoinCredential(ctx, room, actor.Identity())
	if err != nil {
		h.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to issue join credential")
		return nil, apperr.Dependency("issue join credential", err)
	}

	h.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("room", room).
		Str("identity", cred.Identity).
		Str("provider", cred.Provider).
		Msg("session credential issued")

	return &Session{
		AppointmentID: appt.ID,
		StartsAt:      start,
		EndsAt:        end,
		Credential:    cred,
	}, nil
}
