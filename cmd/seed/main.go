package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/telemedicine-scheduling/internal/app"
	"github.com/hackgods/telemedicine-scheduling/internal/appointment"
	"github.com/hackgods/telemedicine-scheduling/internal/auth"
	"github.com/hackgods/telemedicine-scheduling/internal/availability"
	"github.com/hackgods/telemedicine-scheduling/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "seed",
		Short:        "Seed clinic availability and demo appointments",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(closuresCmd())
	rootCmd.AddCommand(appointmentsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withApp loads config, requires the postgres store and runs fn.
func withApp(fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Env, "seed")
	if cfg.StoreBackend != config.BackendPostgres {
		return fmt.Errorf("seeding needs STORE_BACKEND=postgres, got %q", cfg.StoreBackend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Install the default weekly opening hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			reset, _ := cmd.Flags().GetBool("reset")
			return withApp(func(ctx context.Context, a *app.App) error {
				if !reset {
					// app.New already installed defaults when none existed.
					a.Logger.Info().Msg("weekly rules present")
					return nil
				}
				for _, r := range availability.DefaultWeeklyRules() {
					if err := a.Availability.SetWeeklyRule(ctx, r); err != nil {
						return err
					}
				}
				a.Logger.Info().Msg("weekly rules reset to defaults")
				return nil
			})
		},
	}
	cmd.Flags().Bool("reset", false, "Overwrite existing weekly rules with the defaults")
	return cmd
}

func closuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "closures DATE...",
		Short: "Close the clinic on the given YYYY-MM-DD dates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dates := make([]availability.Date, 0, len(args))
			for _, raw := range args {
				d, err := availability.ParseDate(raw)
				if err != nil {
					return err
				}
				dates = append(dates, d)
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				for _, d := range dates {
					if err := a.Availability.SetOverride(ctx, availability.Override{Date: d, Enabled: false}); err != nil {
						return err
					}
				}
				a.Logger.Info().Int("count", len(dates)).Msg("closures seeded")
				return nil
			})
		},
	}
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Create pending appointments for fake patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			days, _ := cmd.Flags().GetInt("days")
			if count <= 0 || days < 3 {
				return fmt.Errorf("--count must be > 0 and --days >= 3")
			}
			return withApp(func(ctx context.Context, a *app.App) error {
				return seedAppointments(ctx, a, count, days)
			})
		},
	}
	cmd.Flags().Int("count", 50, "Number of appointments to create")
	cmd.Flags().Int("days", 21, "Spread candidate slots over this many days from tomorrow")
	return cmd
}

func seedAppointments(ctx context.Context, a *app.App, count, days int) error {
	staff := auth.Staff(uuid.New())
	today := availability.DateOf(time.Now().In(a.Config.Location))
	departments := a.Config.Departments

	created := 0
	for i := 0; i < count; i++ {
		dept := departments[gofakeit.Number(0, len(departments)-1)]
		candidates, err := openCandidates(ctx, a.Availability, today, days, a.Config.RequiredCandidates)
		if err != nil {
			return err
		}
		if candidates == nil {
			a.Logger.Warn().Msg("not enough open slots in range, stopping")
			break
		}

		_, err = a.Appointments.SubmitRequest(ctx, staff, appointment.SubmitRequest{
			PatientID:  uuid.New(),
			Department: dept.Code,
			Candidates: candidates,
			Notes:      fmt.Sprintf("Seeded request for %s <%s>", gofakeit.Name(), gofakeit.Email()),
		})
		if err != nil {
			return err
		}
		created++
		if created%25 == 0 {
			logProgress(a.Logger, created, count)
		}
	}

	a.Logger.Info().Int("created", created).Msg("appointments seeded")
	return nil
}

// openCandidates picks n distinct open half-hour slots, or nil after too
// many misses.
func openCandidates(ctx context.Context, store *availability.Store, today availability.Date, days, n int) ([]availability.Slot, error) {
	seen := make(map[availability.Slot]bool, n)
	out := make([]availability.Slot, 0, n)
	for attempts := 0; len(out) < n; attempts++ {
		if attempts > 200 {
			return nil, nil
		}
		s := availability.Slot{
			Date: today.AddDays(gofakeit.Number(1, days)),
			Time: availability.TimeOfDay(gofakeit.Number(0, 47) * 30),
		}
		if seen[s] {
			continue
		}
		open, err := store.IsOpen(ctx, s.Date, s.Time)
		if err != nil {
			return nil, err
		}
		if open {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}

func logProgress(logger zerolog.Logger, done, total int) {
	logger.Info().Int("done", done).Int("total", total).Msg("seeding appointments")
}
