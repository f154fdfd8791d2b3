package availability

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepository struct {
	mu        sync.RWMutex
	weekly    map[time.Weekday]WeeklyRule
	overrides map[Date]Override
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		weekly:    make(map[time.Weekday]WeeklyRule),
		overrides: make(map[Date]Override),
	}
}

func (r *MemoryRepository) ListWeeklyRules(_ context.Context) ([]WeeklyRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]WeeklyRule, 0, len(r.weekly))
	for _, rule := range r.weekly {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Weekday < rules[j].Weekday })
	return rules, nil
}

func (r *MemoryRepository) GetWeeklyRule(_ context.Context, wd time.Weekday) (*WeeklyRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rule, ok := r.weekly[wd]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return &rule, nil
}

func (r *MemoryRepository) UpsertWeeklyRule(_ context.Context, rule WeeklyRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weekly[rule.Weekday] = rule
	return nil
}

func (r *MemoryRepository) GetOverride(_ context.Context, d Date) (*Override, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.overrides[d]
	if !ok {
		return nil, ErrOverrideNotFound
	}
	return &o, nil
}

func (r *MemoryRepository) ListOverrides(_ context.Context, from, to Date) ([]Override, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Override
	for d, o := range r.overrides {
		if d.Before(from) || to.Before(d) {
			continue
		}
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (r *MemoryRepository) UpsertOverride(_ context.Context, o Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[o.Date] = o
	return nil
}

func (r *MemoryRepository) DeleteOverride(_ context.Context, d Date) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.overrides[d]; !ok {
		return ErrOverrideNotFound
	}
	delete(r.overrides, d)
	return nil
}
