package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ProviderTwilio = "twilio"

	twilioContentType = "twilio-fpa;v=1"
)

// TwilioIssuer signs Twilio access tokens locally with an API key pair. No
// network call is made; Twilio creates the room on first join.
type TwilioIssuer struct {
	accountSID string
	apiKey     string
	apiSecret  []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewTwilioIssuer(accountSID, apiKey, apiSecret string, ttl time.Duration) *TwilioIssuer {
	return &TwilioIssuer{
		accountSID: accountSID,
		apiKey:     apiKey,
		apiSecret:  []byte(apiSecret),
		ttl:        ttl,
		now:        time.Now,
	}
}

type videoGrant struct {
	Room string `json:"room"`
}

type twilioGrants struct {
	Identity string     `json:"identity"`
	Video    videoGrant `json:"video"`
}

type twilioClaims struct {
	Grants twilioGrants `json:"grants"`
	jwt.RegisteredClaims
}

func (t *TwilioIssuer) IssueJoinCredential(_ context.Context, room, identity string) (*Credential, error) {
	if t.accountSID == "" || t.apiKey == "" || len(t.apiSecret) == 0 {
		return nil, errors.New("twilio credentials are not configured")
	}
	if room == "" || identity == "" {
		return nil, errors.New("room and identity are required")
	}

	now := t.now()
	expires := now.Add(t.ttl)
	claims := twilioClaims{
		Grants: twilioGrants{
			Identity: identity,
			Video:    videoGrant{Room: room},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("%s-%d", t.apiKey, now.Unix()),
			Issuer:    t.apiKey,
			Subject:   t.accountSID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["cty"] = twilioContentType

	signed, err := token.SignedString(t.apiSecret)
	if err != nil {
		return nil, fmt.Errorf("sign twilio token: %w", err)
	}

	return &Credential{
		Token:     signed,
		Room:      room,
		Identity:  identity,
		ExpiresAt: expires,
		Provider:  ProviderTwilio,
	}, nil
}
