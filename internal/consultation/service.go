// Package consultation stores the chat thread between a patient and the
// clinic for one appointment.
package consultation

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
)

const (
	EventMessageSent = "MESSAGE_SENT"

	MaxBodyLength    = 2000
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// AppointmentReader loads an appointment on behalf of actor, enforcing
// the same visibility rules as the scheduling service.
type AppointmentReader interface {
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*appointment.Appointment, error)
}

// Publisher fans new messages out so connected clients can refresh.
type Publisher interface {
	Publish(ctx context.Context, eventType string, appointmentID uuid.UUID, payload []byte) error
}

type Service struct {
	repo         Repository
	appointments AppointmentReader
	publisher    Publisher
	now          func() time.Time
	logger       zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(repo Repository, appointments AppointmentReader, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		appointments: appointments,
		now:          time.Now,
		logger:       logger.With().Str("component", "consultation").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send appends a message to the appointment's thread. Rejected and
// cancelled appointments are closed for chat.
func (s *Service) Send(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation("message body is required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, apperr.Validation("message body exceeds %d characters", MaxBodyLength)
	}

	appt, err := s.appointments.Get(ctx, actor, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == appointment.StatusRejected || appt.Status == appointment.StatusCancelled {
		return nil, apperr.New(apperr.KindInvalidState, "chat is closed for %s appointments", appt.Status).
			WithAppointment(appt.ID, string(appt.Status))
	}

	m := &Message{
		ID:            uuid.New(),
		AppointmentID: appt.ID,
		SenderID:      actor.ID,
		SenderRole:    actor.Role,
		Body:          body,
		CreatedAt:     s.now(),
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, apperr.Dependency("store message", err)
	}

	if s.publisher != nil {
		payload, err := json.Marshal(m)
		if err == nil {
			err = s.publisher.Publish(ctx, EventMessageSent, appt.ID, payload)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to publish message")
		}
	}

	s.logger.Debug().
		Str("appointment_id", appt.ID.String()).
		Str("sender_role", string(actor.Role)).
		Msg("message sent")
	return m, nil
}

// List returns the thread oldest first. Pass the last seen CreatedAt as
// p.After to poll for new messages.
func (s *Service) List(ctx context.Context, actor auth.Actor, appointmentID uuid.UUID, p Page) ([]Message, error) {
	if _, err := s.appointments.Get(ctx, actor, appointmentID); err != nil {
		return nil, err
	}
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}

	list, err := s.repo.ListMessages(ctx, appointmentID, p)
	if err != nil {
		return nil, apperr.Dependency("list messages", err)
	}
	return list, nil
}
