package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is the JSON envelope published for every appointment event.
type Message struct {
	EventType     string          `json:"event_type"`
	AppointmentID uuid.UUID       `json:"appointment_id"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	PublishedAt   time.Time       `json:"published_at"`
}

// Publisher fans appointment lifecycle events out over Redis pub/sub.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, eventType string, appointmentID uuid.UUID, payload []byte) error {
	msg := Message{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe returns decoded events from the channel until ctx is done.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan Message, error) {
	sub := p.client.Subscribe(ctx, p.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", p.channel, err)
	}

	out := make(chan Message, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
