package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/booker"
	"github.com/example/teesched/internal/booking"
	"github.com/example/teesched/internal/config"
	"github.com/example/teesched/internal/db"
	"github.com/example/teesched/internal/history"
	"github.com/example/teesched/internal/logger"
	"github.com/example/teesched/internal/portal"
	"github.com/example/teesched/internal/recurring"
	"github.com/example/teesched/internal/roster"
)

func newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Manage one-off booking requests (non-UI)",
	}
	cmd.AddCommand(newRequestAddCmd())
	cmd.AddCommand(newRequestListCmd())
	cmd.AddCommand(newRequestRmCmd())
	cmd.AddCommand(newRequestTriggerCmd())
	return cmd
}

func parseClockFlag(flag, v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s (want HH:MM)", flag)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func newRequestAddCmd() *cobra.Command {
	var (
		targetDate string
		earliest   string
		latest     string
	)

	c := &cobra.Command{
		Use:   "add",
		Short: "Add a one-off request for a target date",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := db.Migrate(cfg.DatabaseURL); err != nil {
				return err
			}

			date, err := time.ParseInLocation("2006-01-02", targetDate, cfg.Location)
			if err != nil {
				return fmt.Errorf("invalid --date (want YYYY-MM-DD)")
			}
			earliestMin, err := parseClockFlag("earliest", earliest)
			if err != nil {
				return err
			}
			latestMin, err := parseClockFlag("latest", latest)
			if err != nil {
				return err
			}

			q := booking.Request{
				TargetDate:   date,
				EarliestMin:  earliestMin,
				LatestMin:    latestMin,
				Kind:         booking.KindOneOff,
				WindowOpenAt: booking.WindowOpen(date, cfg.BookAheadDays, cfg.ReleaseClock, cfg.Location),
			}
			id, err := booking.NewRepo(d).Create(ctx, q)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "created request id=%d date=%s window_open=%s\n",
				id, date.Format("2006-01-02"), q.WindowOpenAt.Format(time.RFC3339))
			return nil
		},
	}

	c.Flags().StringVar(&targetDate, "date", "", "target date YYYY-MM-DD")
	c.Flags().StringVar(&earliest, "earliest", "07:50", "earliest acceptable time HH:MM")
	c.Flags().StringVar(&latest, "latest", "13:00", "latest acceptable time HH:MM")
	_ = c.MarkFlagRequired("date")
	return c
}

func newRequestListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List booking requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			qs, err := booking.NewRepo(d).List(ctx)
			if err != nil {
				return err
			}
			for _, q := range qs {
				fmt.Fprintf(os.Stdout, "id=%d date=%s kind=%s status=%s attempts=%d window_open=%s\n",
					q.ID, q.TargetDate.Format("2006-01-02"), q.Kind, q.Status,
					q.Attempts, q.WindowOpenAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newRequestRmCmd() *cobra.Command {
	var id int64
	c := &cobra.Command{
		Use:   "rm",
		Short: "Delete a booking request",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := booking.NewRepo(d).Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "deleted request id=%d\n", id)
			return nil
		},
	}
	c.Flags().Int64Var(&id, "id", 0, "request id")
	_ = c.MarkFlagRequired("id")
	return c
}

// newRequestTriggerCmd runs one attempt in the foreground, ignoring the
// window and cooldown. Useful when the portal is misbehaving and an operator
// wants to watch an attempt live.
func newRequestTriggerCmd() *cobra.Command {
	var (
		id    int64
		debug bool
	)
	c := &cobra.Command{
		Use:   "trigger",
		Short: "Run a booking attempt for a request right now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log, err := logger.New(debug)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx := context.Background()
			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			requestRepo := booking.NewRepo(d)
			q, err := requestRepo.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if q.Status == booking.StatusBooked {
				return fmt.Errorf("request %d is already booked", id)
			}
			if won, err := requestRepo.ClaimImmediate(ctx, id); err != nil {
				return err
			} else if !won {
				return fmt.Errorf("request %d is not claimable", id)
			}
			q.Attempts++

			client, err := portal.New(cfg.PortalBaseURL,
				portal.Credentials{Username: cfg.PortalUsername, Password: cfg.PortalPassword},
				portal.NewPGSessionStore(d), log.Named("portal"))
			if err != nil {
				return err
			}
			b := &booker.Booker{
				Portal:    client,
				Requests:  requestRepo,
				History:   history.NewRepo(d),
				Roster:    roster.NewRepo(d),
				Marks:     recurring.NewSettingsRepo(d),
				Log:       log.Named("booker"),
				MinRoster: cfg.MinRoster,
			}
			res, _ := b.TryAttempt(ctx, q)
			fmt.Fprintf(os.Stdout, "outcome=%s chosen_time=%s booked=%t message=%q\n",
				res.Outcome, res.ChosenTime, res.Booked, res.Message)
			return nil
		},
	}
	c.Flags().Int64Var(&id, "id", 0, "request id")
	c.Flags().BoolVar(&debug, "debug", false, "verbose logging")
	_ = c.MarkFlagRequired("id")
	return c
}
