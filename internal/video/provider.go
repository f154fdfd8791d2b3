// Package video issues join credentials for the consultation room of an
// appointment. The real adapter mints Twilio Video access tokens; a mock is
// used in development when no credentials are configured.
package video

import (
	"context"
	"time"
)

// Credential is what a participant needs to join a room.
type Credential struct {
	Token     string    `json:"token"`
	Room      string    `json:"room"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
	Provider  string    `json:"provider"`
}

// CredentialIssuer mints a credential that grants identity access to room.
type CredentialIssuer interface {
	IssueJoinCredential(ctx context.Context, room, identity string) (*Credential, error)
}
