package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mcuplan/bus"
	"mcuplan/internal/scheduler"
	"mcuplan/internal/server"
	"mcuplan/internal/settings"
	"mcuplan/internal/store"
	"mcuplan/services/catalog"
	"mcuplan/services/config"
	"mcuplan/services/monitor"
	"mcuplan/services/validate"
	"mcuplan/x/logx"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port   int
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Starts the HTTP API and the background services: the catalog directory
watcher, the scheduled remote catalog refresh and the monitor that
revalidates stored configurations when the catalog changes.

Settings come from MCUPLAN_* environment variables (and an optional .env);
flags override them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settings.Load()
			if cmd.Flags().Changed("port") {
				s.Port = port
			}
			if cmd.Flags().Changed("db") {
				s.DatabasePath = dbPath
			}
			if a.catalogDir != "" {
				s.CatalogDir = a.catalogDir
			}
			if a.logLevel == "" {
				a.log = logx.New(logx.Config{Level: s.LogLevel, Pretty: a.pretty || s.DevMode, Out: a.logOut})
			}
			if err := s.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, s)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP port")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path")
	return cmd
}

func (a *app) serve(ctx context.Context, s *settings.Settings) error {
	log := a.log

	cat, err := a.loadCatalog(s.CatalogDir)
	if err != nil {
		return err
	}

	db, err := store.Open(s.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	log.Info().Str("path", db.Path()).Msg("Database ready")

	b := bus.New(64)
	val := validate.New(cat, log)
	configs := config.New(config.Deps{
		Catalog:    cat,
		Validator:  val,
		Selections: store.NewSelectionRepo(db, log),
		Configs:    store.NewConfigRepo(db, log),
		Conn:       b.NewConnection("config"),
		Log:        log,
	})
	mon := monitor.New(configs, cat, s.Heartbeat, log)
	srv := server.New(server.Config{
		Port:      s.Port,
		Log:       log,
		DevMode:   s.DevMode,
		Bus:       b,
		Catalog:   cat,
		Validator: val,
		Configs:   configs,
	})

	// Publish the stored reports once so the monitor and streams start warm.
	if _, err := configs.Revalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial revalidation failed")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return mon.Run(gctx, b.NewConnection("monitor")) })

	if s.CatalogDir != "" {
		w := catalog.NewWatcher(s.CatalogDir, cat, b.NewConnection("catalog_watcher"), log)
		g.Go(func() error { return w.Run(gctx) })
	}

	if s.CatalogURL != "" {
		conn := b.NewConnection("catalog_remote")
		job := &catalog.RefreshJob{
			Remote:  catalog.NewRemote(s.CatalogURL, s.FetchTimeout, log),
			Catalog: cat,
			After: func(_ context.Context, u catalog.Updated) {
				conn.Publish(b.NewMessage(catalog.TopicUpdated, u, false))
			},
		}
		sched := scheduler.New(log)
		if err := sched.AddJob(s.CatalogRefresh, job); err != nil {
			return err
		}
		sched.Start()
		log.Info().Strs("jobs", sched.Jobs()).Msg("Background jobs scheduled")
		g.Go(func() error {
			if err := sched.RunNow(job.Name()); err != nil {
				log.Warn().Err(err).Msg("Initial catalog refresh failed")
			}
			<-gctx.Done()
			sched.Stop()
			return nil
		})
	}

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info().Msg("Stopped")
	return err
}
