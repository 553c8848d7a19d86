package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/teesched/internal/auth"
	"github.com/example/teesched/internal/booker"
	"github.com/example/teesched/internal/booking"
	"github.com/example/teesched/internal/config"
	"github.com/example/teesched/internal/db"
	"github.com/example/teesched/internal/history"
	"github.com/example/teesched/internal/logger"
	"github.com/example/teesched/internal/metrics"
	"github.com/example/teesched/internal/portal"
	"github.com/example/teesched/internal/recurring"
	"github.com/example/teesched/internal/roster"
	"github.com/example/teesched/internal/scheduler"
	"github.com/example/teesched/internal/web"
)

func newServerCmd() *cobra.Command {
	var (
		migrateUp bool
		debug     bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the JSON API, the request scheduler and the recurring orchestrator",
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

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			if migrateUp {
				if err := db.Migrate(cfg.DatabaseURL); err != nil {
					return err
				}
			}

			settingsRepo := recurring.NewSettingsRepo(d)
			if err := settingsRepo.EnsureDefaults(ctx, recurring.Settings{
				Enabled:        false,
				EarliestMin:    cfg.RecurEarliest,
				LatestMin:      cfg.RecurLatest,
				MaxOutstanding: cfg.MaxOutstanding,
			}); err != nil {
				return err
			}

			m := metrics.New("teesched", prometheus.DefaultRegisterer)

			client, err := portal.New(cfg.PortalBaseURL,
				portal.Credentials{Username: cfg.PortalUsername, Password: cfg.PortalPassword},
				portal.NewPGSessionStore(d), log.Named("portal"))
			if err != nil {
				return err
			}

			requestRepo := booking.NewRepo(d)
			historyRepo := history.NewRepo(d)
			rosterRepo := roster.NewRepo(d)
			authStore := auth.NewStore(d, cfg.SessionHashKey, cfg.SessionBlockKey)

			b := &booker.Booker{
				Portal:    client,
				Requests:  requestRepo,
				History:   historyRepo,
				Roster:    rosterRepo,
				Marks:     settingsRepo,
				Metrics:   m,
				Log:       log.Named("booker"),
				MinRoster: cfg.MinRoster,
			}

			sched := &scheduler.Scheduler{
				Requests: requestRepo,
				Booker:   b,
				Log:      log.Named("scheduler"),
				Tick:     cfg.SchedTick,
				Cooldown: 5 * time.Minute,
			}
			go sched.Run(ctx)

			orch := &recurring.Orchestrator{
				Requests:      requestRepo,
				History:       historyRepo,
				Settings:      settingsRepo,
				Booker:        b,
				Portal:        client,
				Metrics:       m,
				Log:           log.Named("recurring"),
				Weekdays:      cfg.RecurWeekdays,
				AheadDays:     cfg.BookAheadDays,
				ReleaseMinute: cfg.ReleaseClock,
				Loc:           cfg.Location,
				SweepInterval: cfg.SweepInterval,
				Prewarm:       cfg.Prewarm,
			}
			go orch.Run(ctx)

			ws := &web.Server{
				Auth:     authStore,
				Requests: requestRepo,
				History:  historyRepo,
				Roster:   rosterRepo,
				Settings: settingsRepo,
				Trigger: func(ctx context.Context, req booking.Request) {
					if _, ran := b.TryAttempt(ctx, req); !ran {
						log.Info("manual trigger skipped, attempt in flight",
							zap.Int64("request", req.ID))
					}
				},
				Log:           log.Named("web"),
				Loc:           cfg.Location,
				Weekdays:      cfg.RecurWeekdays,
				AheadDays:     cfg.BookAheadDays,
				ReleaseMinute: cfg.ReleaseClock,
			}
			return web.Start(ctx, cfg.HTTPAddr, ws.Routes(), log)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().BoolVar(&debug, "debug", false, "verbose logging")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
