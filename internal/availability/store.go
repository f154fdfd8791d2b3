// Package availability resolves the clinic's opening hours: a recurring rule
// per weekday, overridden by at most one rule per calendar date.
package availability

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/telemedicine-scheduling/internal/apperr"
)

// Store is the read/write face of the availability rules.
type Store struct {
	repo   Repository
	logger zerolog.Logger
}

func NewStore(repo Repository, logger zerolog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger.With().Str("component", "availability").Logger(),
	}
}

// Window resolves the availability of d: the date override when one exists,
// otherwise the weekly rule for d's weekday. A weekday with no rule is closed.
func (s *Store) Window(ctx context.Context, d Date) (Window, error) {
	o, err := s.repo.GetOverride(ctx, d)
	switch {
	case err == nil:
		return Window{Date: d, Enabled: o.Enabled, Start: o.Start, End: o.End, Source: SourceOverride}, nil
	case !errors.Is(err, ErrOverrideNotFound):
		return Window{}, apperr.Dependency("load date override", err)
	}

	rule, err := s.repo.GetWeeklyRule(ctx, d.Weekday())
	switch {
	case err == nil:
		return Window{Date: d, Enabled: rule.Enabled, Start: rule.Start, End: rule.End, Source: SourceWeekly}, nil
	case errors.Is(err, ErrRuleNotFound):
		return Window{Date: d, Source: SourceNone}, nil
	default:
		return Window{}, apperr.Dependency("load weekly rule", err)
	}
}

// IsOpen reports whether a consultation may start at t on d.
func (s *Store) IsOpen(ctx context.Context, d Date, t TimeOfDay) (bool, error) {
	w, err := s.Window(ctx, d)
	if err != nil {
		return false, err
	}
	return w.Contains(t), nil
}

func (s *Store) WeeklyRules(ctx context.Context) ([]WeeklyRule, error) {
	rules, err := s.repo.ListWeeklyRules(ctx)
	if err != nil {
		return nil, apperr.Dependency("list weekly rules", err)
	}
	return rules, nil
}

func (s *Store) SetWeeklyRule(ctx context.Context, r WeeklyRule) error {
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return apperr.Validation("weekday %d out of range", r.Weekday)
	}
	if err := validRange(r.Enabled, r.Start, r.End); err != nil {
		return apperr.Validation("%s: %v", r.Weekday, err)
	}
	if err := s.repo.UpsertWeeklyRule(ctx, r); err != nil {
		return apperr.Dependency("save weekly rule", err)
	}
	s.logger.Info().
		Str("weekday", r.Weekday.String()).
		Bool("enabled", r.Enabled).
		Stringer("start", r.Start).
		Stringer("end", r.End).
		Msg("weekly rule saved")
	return nil
}

func (s *Store) Overrides(ctx context.Context, from, to Date) ([]Override, error) {
	if to.Before(from) {
		return nil, apperr.Validation("range end %s before start %s", to, from)
	}
	list, err := s.repo.ListOverrides(ctx, from, to)
	if err != nil {
		return nil, apperr.Dependency("list overrides", err)
	}
	return list, nil
}

// SetOverride creates or replaces the override for o.Date.
func (s *Store) SetOverride(ctx context.Context, o Override) error {
	if o.Date.IsZero() {
		return apperr.Validation("override date is required")
	}
	if err := validRange(o.Enabled, o.Start, o.End); err != nil {
		return apperr.Validation("%s: %v", o.Date, err)
	}
	if err := s.repo.UpsertOverride(ctx, o); err != nil {
		return apperr.Dependency("save override", err)
	}
	s.logger.Info().
		Stringer("date", o.Date).
		Bool("enabled", o.Enabled).
		Msg("date override saved")
	return nil
}

func (s *Store) RemoveOverride(ctx context.Context, d Date) error {
	err := s.repo.DeleteOverride(ctx, d)
	if errors.Is(err, ErrOverrideNotFound) {
		return apperr.NotFound("no override for %s", d)
	}
	if err != nil {
		return apperr.Dependency("delete override", err)
	}
	return nil
}

// SeedDefaults installs DefaultWeeklyRules when no weekly rule exists yet.
// It reports whether anything was written.
func (s *Store) SeedDefaults(ctx context.Context) (bool, error) {
	existing, err := s.repo.ListWeeklyRules(ctx)
	if err != nil {
		return false, apperr.Dependency("list weekly rules", err)
	}
	if len(existing) > 0 {
		return false, nil
	}
	for _, r := range DefaultWeeklyRules() {
		if err := s.repo.UpsertWeeklyRule(ctx, r); err != nil {
			return false, apperr.Dependency("seed weekly rule", err)
		}
	}
	s.logger.Info().Msg("default weekly rules installed")
	return true, nil
}
