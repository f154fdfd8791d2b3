package availability

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRuleNotFound     = errors.New("weekly rule not found")
	ErrOverrideNotFound = errors.New("date override not found")
)

// Repository persists weekly rules and date overrides. Overrides are keyed
// by date, so upserting the same date replaces the previous override.
type Repository interface {
	ListWeeklyRules(ctx context.Context) ([]WeeklyRule, error)
	GetWeeklyRule(ctx context.Context, wd time.Weekday) (*WeeklyRule, error)
	UpsertWeeklyRule(ctx context.Context, r WeeklyRule) error

	GetOverride(ctx context.Context, d Date) (*Override, error)
	ListOverrides(ctx context.Context, from, to Date) ([]Override, error)
	UpsertOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, d Date) error
}
