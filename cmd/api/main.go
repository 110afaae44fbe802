package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/kasbon/pkg/auth"
	"github.com/mcclellann/kasbon/pkg/config"
	"github.com/mcclellann/kasbon/pkg/ledger"
	"github.com/mcclellann/kasbon/pkg/metrics"
	"github.com/mcclellann/kasbon/pkg/migrate"
	"github.com/mcclellann/kasbon/pkg/models"
	"github.com/mcclellann/kasbon/pkg/persist"
	"github.com/mcclellann/kasbon/pkg/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	Version = "0.4.0"
	appName = "kasbon"

	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	envFile    string
	addr       string
	dbPath     string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var f cliFlags

	cmd := &cobra.Command{
		Use:          appName,
		Short:        "Employee loan ledger service",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "Optional .env file")
	cmd.PersistentFlags().StringVar(&f.dbPath, "db", "", "SQLite database path")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
	serveCmd.Flags().StringVar(&f.addr, "addr", "", "Listen address")

	cmd.AddCommand(serveCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Normalize the stored state to the current schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return migrateStored(cmd.Context(), cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (schema %d)\n", appName, Version, models.CurrentVersion)
		},
	})
	return cmd
}

// loadConfig layers flags over the file and environment, then sets up
// logging.
func loadConfig(f cliFlags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath, f.envFile)
	if err != nil {
		return nil, err
	}
	if f.addr != "" {
		cfg.HTTP.Addr = f.addr
	}
	if f.dbPath != "" {
		cfg.Store.Path = f.dbPath
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()
	if cfg.Auth.JWTSecret == config.DevJWTSecret {
		logger.Warn("Using the built-in JWT secret; set KASBON_JWT_SECRET in production")
	}

	db, err := store.NewSQLiteStore(cfg.Store.Path, cfg.Store.ConfigID)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	defer db.Close()

	authSvc := auth.NewService(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err := authSvc.EnsureDefault(ctx); err != nil {
		return fmt.Errorf("failed to seed credentials: %w", err)
	}

	var cache store.Storage
	if cfg.Cache.Path != "" {
		cache = store.NewFileCache(cfg.Cache.Path)
	}
	var remote store.Storage = db
	if cfg.Remote.URL != "" {
		remote = store.NewHTTPStore(cfg.Remote.URL, nil).WithToken(cfg.Remote.Token)
		defer remote.Close()
	}

	m := metrics.New()
	saver := persist.NewSaver(
		persist.WithCache(cache),
		persist.WithRemote(remote),
		persist.WithDebounce(cfg.Persist.Debounce),
		persist.WithLogger(logger),
		persist.WithMetrics(m),
	)

	initial := bootstrap(ctx, cache, remote, logger)
	dispatcher := ledger.NewDispatcher(ledger.NewLedger(), initial, saver)
	saver.MarkLoaded()

	server := NewServer(dispatcher, authSvc, m, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", slog.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.Any("error", err))
		}
		if err := saver.Close(shutdownCtx); err != nil {
			logger.Error("Failed to flush state on shutdown", slog.Any("error", err))
		}
		return nil
	})
	return g.Wait()
}

// bootstrap starts from the local cache, then prefers the remote copy when
// it has one. Any load failure falls back to what is already in hand.
func bootstrap(ctx context.Context, cache, remote store.Storage, logger *slog.Logger) models.State {
	state := models.InitialState()
	if cache != nil {
		switch cached, err := store.LoadState(ctx, cache); {
		case err == nil:
			state = cached
		case !errors.Is(err, store.ErrNotFound):
			logger.Warn("Failed to read local cache", slog.Any("error", err))
		}
	}

	if remote == nil {
		return state
	}
	loaded, err := store.LoadState(ctx, remote)
	switch {
	case err == nil:
		logger.Info("Loaded state from remote store",
			slog.Int("borrowers", len(loaded.Borrowers)),
			slog.Int("transactions", len(loaded.Transactions)))
		return loaded
	case errors.Is(err, store.ErrNotFound):
		logger.Info("Remote store is empty, starting from local state")
	default:
		logger.Warn("Remote store unavailable, using local state", slog.Any("error", err))
	}
	return state
}

// migrateStored rewrites the stored snapshot in normalized form.
func migrateStored(ctx context.Context, cfg *config.Config) error {
	db, err := store.NewSQLiteStore(cfg.Store.Path, cfg.Store.ConfigID)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	defer db.Close()

	raw, err := db.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("Nothing stored, nothing to migrate")
		return nil
	}
	if err != nil {
		return err
	}
	if saved, err := db.UpdatedAt(ctx); err == nil {
		slog.Info("Found stored state", slog.String("config_id", cfg.Store.ConfigID), slog.Time("updated_at", saved))
	}
	st, err := migrate.Migrate(raw)
	if err != nil {
		return err
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := db.Save(ctx, data); err != nil {
		return err
	}
	slog.Info("State migrated",
		slog.Int("version", st.Config.Version),
		slog.Int("borrowers", len(st.Borrowers)),
		slog.Int("transactions", len(st.Transactions)),
		slog.Any("months", st.Config.AvailableMonths))
	return nil
}
