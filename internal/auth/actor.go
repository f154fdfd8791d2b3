// Package auth carries the caller identity through every operation instead
// of relying on ambient login state.
package auth

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleStaff   Role = "staff"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleStaff
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff
}

// Identity is the participant name handed to the video provider.
func (a Actor) Identity() string {
	return string(a.Role) + ":" + a.ID.String()
}

func Patient(id uuid.UUID) Actor { return Actor{ID: id, Role: RolePatient} }
func Staff(id uuid.UUID) Actor   { return Actor{ID: id, Role: RoleStaff} }

type contextKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}
