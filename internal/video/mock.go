package video

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const ProviderMock = "mock"

// MockIssuer returns opaque tokens for local development.
type MockIssuer struct {
	ttl time.Duration
	now func() time.Time
}

func NewMockIssuer(ttl time.Duration) *MockIssuer {
	return &MockIssuer{ttl: ttl, now: time.Now}
}

func (m *MockIssuer) IssueJoinCredential(_ context.Context, room, identity string) (*Credential, error) {
	if room == "" || identity == "" {
		return nil, errors.New("room and identity are required")
	}
	return &Credential{
		Token:     "mock-" + uuid.NewString(),
		Room:      room,
		Identity:  identity,
		ExpiresAt: m.now().Add(m.ttl),
		Provider:  ProviderMock,
	}, nil
}
