package video

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-scheduling/internal/config"
)

// NewIssuer picks the credential issuer for cfg. Without Twilio credentials
// the mock is used outside production; in production the missing
// configuration surfaces as an error on every issue call.
func NewIssuer(cfg config.Config, logger zerolog.Logger) CredentialIssuer {
	if !cfg.VideoConfigured() {
		if cfg.Env == "prod" {
			logger.Warn().Msg("video provider not configured, session handoff will fail")
			return &FallbackIssuer{logger: logger}
		}
		logger.Info().Msg("video provider not configured, using mock issuer")
		return NewMockIssuer(cfg.VideoTokenTTL)
	}

	fallback := &FallbackIssuer{
		primary: NewTwilioIssuer(cfg.TwilioAccountSID, cfg.TwilioAPIKey, cfg.TwilioAPISecret, cfg.VideoTokenTTL),
		logger:  logger,
	}
	if cfg.VideoAllowMockFallback {
		fallback.fallback = NewMockIssuer(cfg.VideoTokenTTL)
	}
	return fallback
}

// FallbackIssuer wraps a primary issuer with an optional mock fallback.
type FallbackIssuer struct {
	primary  CredentialIssuer
	fallback CredentialIssuer
	logger   zerolog.Logger
}

func (f *FallbackIssuer) IssueJoinCredential(ctx context.Context, room, identity string) (*Credential, error) {
	if f.primary == nil {
		if f.fallback != nil {
			return f.fallback.IssueJoinCredential(ctx, room, identity)
		}
		return nil, errors.New("video provider not configured")
	}

	cred, err := f.primary.IssueJoinCredential(ctx, room, identity)
	if err != nil && f.fallback != nil {
		f.logger.Warn().Err(err).Str("room", room).Msg("video provider failed, using fallback")
		return f.fallback.IssueJoinCredential(ctx, room, identity)
	}
	return cred, err
}
