package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid access token")

// Claims is the bearer token payload. Subject holds the actor id.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 bearer tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *TokenManager) Issue(a Actor) (string, error) {
	if !a.Role.Valid() {
		return "", fmt.Errorf("issue token: unknown role %q", a.Role)
	}
	now := m.now()
	claims := Claims{
		Role: a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *TokenManager) Verify(raw string) (Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return Actor{ID: id, Role: claims.Role}, nil
}
