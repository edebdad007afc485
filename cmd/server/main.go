/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the job-ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (CONFIG_PATH / env / defaults), apply flag overrides
  2. Build the zap logger
  3. Open the record store (connect before serving)
  4. Create the billing Service and API handler
  5. Start server with graceful shutdown (close store on the way out)

COMMAND-LINE FLAGS:
  --config  YAML config file (overrides CONFIG_PATH)
  --port    HTTP server port
  --db      SQLite database path; ":memory:" for a throwaway database
  --driver  Record store driver: sqlite or memory

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Close the record store
  4. Exit

EXAMPLES:
  # Run with file database
  ./server --db=./data/records.db

  # Run with in-memory store
  ./server --driver=memory

SEE ALSO:
  - config/config.go: Configuration sources and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/job-ledger/api"
	"github.com/warp/job-ledger/billing"
	memstore "github.com/warp/job-ledger/billing/store"
	"github.com/warp/job-ledger/config"
	"github.com/warp/job-ledger/logging"
	"github.com/warp/job-ledger/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		port       int
		dbPath     string
		driver     string
	)

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve the job billing ledger API",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg *config.Config
				err error
			)
			if configPath != "" {
				cfg, err = config.LoadFrom(configPath, true)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("db") {
				cfg.Database.Path = dbPath
			}
			if cmd.Flags().Changed("driver") {
				cfg.Database.Driver = driver
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: validate: %w", err)
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().IntVar(&port, "port", 5000, "HTTP server port")
	cmd.Flags().StringVar(&dbPath, "db", "records.db", "SQLite database path")
	cmd.Flags().StringVar(&driver, "driver", config.DriverSQLite, "record store driver (sqlite, memory)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Log)
	defer logger.Sync()

	// Initialize store
	store, err := openStore(cfg.Database)
	if err != nil {
		logger.Error("failed to initialize record store", zap.Error(err))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close record store", zap.Error(err))
		}
	}()

	svc := billing.NewService(store,
		billing.WithLogger(logger.Named("billing")),
		billing.WithMaxRetries(cfg.Ledger.MaxCommitRetries),
		billing.WithRetryHook(api.CommitRetries.Inc),
	)
	handler := api.NewHandler(svc, logger.Named("api"))
	if p, ok := store.(api.Pinger); ok {
		handler.Store = p
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler, cfg.CORS),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("driver", cfg.Database.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-serveErr:
		if ok {
			logger.Error("server failed", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("server stopped")
	return nil
}

func openStore(cfg config.DatabaseConfig) (billing.RecordStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memstore.NewMemory(), nil
	case config.DriverSQLite:
		return sqlite.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
