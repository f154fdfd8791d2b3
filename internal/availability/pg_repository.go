package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanWeeklyRule(row pgx.Row) (*WeeklyRule, error) {
	var (
		r          WeeklyRule
		wd         int
		start, end int
	)
	if err := row.Scan(&wd, &r.Enabled, &start, &end); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	r.Weekday = time.Weekday(wd)
	r.Start = TimeOfDay(start)
	r.End = TimeOfDay(end)
	return &r, nil
}

func scanOverride(row pgx.Row) (*Override, error) {
	var (
		o          Override
		day        time.Time
		start, end int
	)
	if err := row.Scan(&day, &o.Enabled, &start, &end); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOverrideNotFound
		}
		return nil, err
	}
	o.Date = DateOf(day)
	o.Start = TimeOfDay(start)
	o.End = TimeOfDay(end)
	return &o, nil
}

// pgDate converts d to a UTC midnight so the DATE column keeps the same day.
func pgDate(d Date) time.Time {
	return d.midnight(time.UTC)
}

func (r *PgRepository) ListWeeklyRules(ctx context.Context) ([]WeeklyRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, enabled, start_minute, end_minute
		FROM availability_weekly
		ORDER BY weekday
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WeeklyRule
	for rows.Next() {
		rule, err := scanWeeklyRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetWeeklyRule(ctx context.Context, wd time.Weekday) (*WeeklyRule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT weekday, enabled, start_minute, end_minute
		FROM availability_weekly
		WHERE weekday = $1
	`, int(wd))
	return scanWeeklyRule(row)
}

func (r *PgRepository) UpsertWeeklyRule(ctx context.Context, rule WeeklyRule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_weekly (weekday, enabled, start_minute, end_minute, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (weekday) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    start_minute = EXCLUDED.start_minute,
		    end_minute = EXCLUDED.end_minute,
		    updated_at = now()
	`, int(rule.Weekday), rule.Enabled, int(rule.Start), int(rule.End))
	if err != nil {
		return fmt.Errorf("upsert weekly rule: %w", err)
	}
	return nil
}

func (r *PgRepository) GetOverride(ctx context.Context, d Date) (*Override, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT day, enabled, start_minute, end_minute
		FROM availability_overrides
		WHERE day = $1
	`, pgDate(d))
	return scanOverride(row)
}

func (r *PgRepository) ListOverrides(ctx context.Context, from, to Date) ([]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day, enabled, start_minute, end_minute
		FROM availability_overrides
		WHERE day BETWEEN $1 AND $2
		ORDER BY day
	`, pgDate(from), pgDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpsertOverride(ctx context.Context, o Override) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_overrides (day, enabled, start_minute, end_minute, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (day) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    start_minute = EXCLUDED.start_minute,
		    end_minute = EXCLUDED.end_minute,
		    updated_at = now()
	`, pgDate(o.Date), o.Enabled, int(o.Start), int(o.End))
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteOverride(ctx context.Context, d Date) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability_overrides WHERE day = $1`, pgDate(d))
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOverrideNotFound
	}
	return nil
}
