package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"alterego/core"
	"alterego/core/validation"
	"alterego/credits"
	"alterego/db"
	"alterego/favorites"
	"alterego/history"
	"alterego/imagegen"
	"alterego/logging"
	"alterego/metrics"
	"alterego/orchestrator"
	"alterego/shutdown"
	"alterego/styles"
	"alterego/webui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// cleanupInterval is how often old activity records are pruned.
const cleanupInterval = 24 * time.Hour

type serveOptions struct {
	host      string
	port      int
	memory    bool
	skipCheck bool
	version   string
}

func newServeCmd(version string) *cobra.Command {
	opts := serveOptions{version: version}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the generation service and its web API",
		Long: `Starts the AlterEgo service: the generation orchestrator, the JSON API,
the websocket snapshot stream and the Prometheus endpoint.

Configuration comes from the environment (and the --env-file). Startup
checks run first and abort the start when one fails.`,
		Example: `  # Start on the configured PORT
  alterego serve

  # Throwaway session without touching the database
  alterego serve --memory --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = opts.port
			}
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}

			logger, err := serviceLogger(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Sync()

			if !opts.skipCheck {
				res := validation.StartupChecks(cfg, nil, validation.Options{Memory: opts.memory}).
					WithOutput(cmd.OutOrStdout()).
					Run(cmd.Context())
				if !res.Success {
					return errors.Join(res.Errors()...)
				}
			}
			return runServe(cmd.Context(), cfg, opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "Interface to bind (default all)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", core.DefaultPort, "Port to listen on (overrides PORT)")
	cmd.Flags().BoolVar(&opts.memory, "memory", false, "Keep credits, history and favorites in memory only")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-checks", false, "Skip startup checks")
	return cmd
}

func runServe(ctx context.Context, cfg *core.Config, opts serveOptions, logger *logging.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("provider", cfg.Provider),
		zap.String("data_dir", cfg.DataDir),
		zap.String("db_path", cfg.DBPath),
		zap.Int("port", cfg.Port),
		zap.Bool("memory", opts.memory),
		zap.Bool("watermark", cfg.Watermark),
		zap.Bool("auth_enabled", cfg.APIToken != ""),
		zap.Bool("dev_mode", cfg.DevMode),
	)

	mgr := shutdown.NewManager(logger,
		shutdown.WithParent(ctx),
		shutdown.WithTimeout(cfg.ShutdownTimeout))
	mgr.Start()
	// releases whatever was registered when startup fails partway
	defer mgr.Shutdown(context.Background())

	st, err := openStorage(cfg, opts.memory, true, logger)
	if err != nil {
		return err
	}
	if st.writer != nil {
		mgr.Register("activity-writer", shutdown.PriorityWriters, st.writer.Shutdown)
	}
	if st.database != nil {
		mgr.Register("database", shutdown.PriorityStorage, func(context.Context) error {
			return st.database.Close()
		})
		if cfg.RetentionDays > 0 {
			st.database.StartCleanupScheduler(mgr.Context(), db.CleanupSchedulerConfig{
				RetentionDays: cfg.RetentionDays,
				Interval:      cleanupInterval,
				OnCleanup: func(res db.CleanupResult, err error) {
					if err != nil && !errors.Is(err, context.Canceled) {
						logger.Warn("Activity cleanup failed", zap.Error(err))
						return
					}
					logger.Debug("Activity cleanup finished",
						zap.Int64("deleted", res.EventsDeleted),
						zap.Duration("duration", res.Duration))
				},
			})
		}
	}
	mgr.Register("staged-files", shutdown.PriorityFiles,
		shutdown.RemoveStagedFiles(logger, "", imagegen.StagedFilePattern))
	mgr.Register("logger", shutdown.PriorityLogs, shutdown.FlushLogger(logger))

	catalog, err := styles.LoadCatalog(cfg.StylesFile)
	if err != nil {
		return err
	}

	gen, err := imagegen.NewGeneratorFromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create transformer: %w", err)
	}

	m := metrics.New(metrics.StoreConfig{
		TaskHistoryCapacity: 100,
		Version:             opts.version,
		Provider:            gen.ProviderName(),
	})

	ledger := credits.NewLedger(ctx, st.store, logger, credits.Config{StartingCredits: cfg.StartingCredits})
	orch, err := orchestrator.New(orchestrator.Config{
		Catalog:     catalog,
		Transformer: gen,
		Ledger:      ledger,
		History:     history.New(ctx, st.store, logger),
		Favorites:   favorites.New(ctx, st.store, logger),
		Provider:    gen.ProviderName(),
		Logger:      logger,
		Metrics:     m,
		Recorder:    st.recorder(),
		Tracker:     mgr.Tracker(),
	})
	if err != nil {
		return err
	}
	mgr.Register("orchestrator", shutdown.PriorityOrchestrator, orch.Shutdown)
	mgr.Register("transformer", shutdown.PriorityOrchestrator, func(context.Context) error {
		return gen.Close()
	})

	scfg := webui.DefaultServerConfig()
	scfg.Host = opts.host
	scfg.Port = cfg.Port
	scfg.APIToken = cfg.APIToken
	scfg.TransformAPIKey = cfg.BackendAPIKey
	scfg.RateLimitRPS = cfg.RateLimitRPS
	scfg.RateLimitBurst = cfg.RateLimitBurst
	scfg.MaxUploadBytes = cfg.MaxUploadBytes
	scfg.Version = opts.version
	scfg.Provider = gen.ProviderName()

	server, err := webui.NewServer(scfg, webui.Deps{
		Orchestrator: orch,
		Activity:     st.activity(),
		Metrics:      m,
		Backend:      gen,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	mgr.Register("http", shutdown.PriorityHTTP, server.Shutdown)

	logger.Info("AlterEgo ready",
		zap.String("addr", server.Addr()),
		zap.Int("balance", ledger.Balance()),
		zap.Bool("unlimited", ledger.IsUnlimited()),
		zap.Strings("shutdown_order", mgr.RegisteredHandlers()))

	g, gctx := errgroup.WithContext(mgr.Context())
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return mgr.Shutdown(context.Background())
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Goodbye!")
	return nil
}
