package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/statusrelay/internal/command"
	"github.com/hazz-dev/statusrelay/internal/config"
	"github.com/hazz-dev/statusrelay/internal/fetcher"
	"github.com/hazz-dev/statusrelay/internal/registry"
	"github.com/hazz-dev/statusrelay/internal/server"
	"github.com/hazz-dev/statusrelay/internal/storage"
	"github.com/hazz-dev/statusrelay/internal/telegram"
	"github.com/hazz-dev/statusrelay/internal/telemetry"
	"github.com/hazz-dev/statusrelay/internal/version"
)

var (
	cfgFile string
	envFile string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "statusrelay",
		Short:        "Relay remote health reports to Telegram",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(historyCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "statusrelay %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

// loadConfig reads the env file and the config file. Without an explicit
// --config, a missing file falls back to environment variables.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	explicit := false
	if f := cmd.Flag("config"); f != nil {
		explicit = f.Changed
	}
	cfg, err := config.LoadOrEnv(cfgFile, explicit)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newDispatcher registers the chat commands.
func newDispatcher(reg *registry.Registry, f fetcher.Fetcher, logger *slog.Logger) *command.Dispatcher {
	d := command.NewDispatcher(logger)
	d.Register("start", command.NewStartHandler(reg.Names(), logger))
	d.Register("health", command.NewHealthHandler(reg, f, logger))
	return d
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Telegram bot and admin API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load config
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateTelegram(); err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	logger.Info("config loaded", "endpoints", len(cfg.Endpoints))

	// 2. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 3. Telemetry
	tel, err := telemetry.Setup(ctx, telemetry.Config{
		Metrics: cfg.Telemetry.Metrics,
		Traces:  cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()

	// 4. Registry, fetcher and commands
	reg, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("building registry: %w", err)
	}
	f := fetcher.Instrument(
		fetcher.NewHTTP(cfg.Fetch.Timeout.Duration, fetcher.WithLogger(logger)),
		tel.Tracer(),
		tel.Metrics,
	)
	disp := newDispatcher(reg, f, logger)
	disp.SetObserver(tel.Metrics)

	// 5. Invocation log (optional)
	opts := []server.Option{server.WithLogger(logger)}
	if cfg.Storage.Path != "" {
		db, err := storage.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
		disp.SetInvocationLog(db)
		opts = append(opts, server.WithStore(db))
	}
	if h := tel.MetricsHandler(); h != nil {
		opts = append(opts, server.WithMetrics(h))
	}

	// 6. Connect the bot
	api, err := telegram.Connect(cfg.Telegram.Token)
	if err != nil {
		return err
	}
	disp.SetUsername(api.Self.UserName)
	bot := telegram.New(api, disp, cfg.Telegram.PollTimeout.Duration, logger)
	logger.Info("authorized", "bot", api.Self.UserName, "commands", disp.Commands())

	// 7. Start admin API in background (optional)
	var httpServer *http.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Address != "" {
		httpServer = &http.Server{
			Addr:    cfg.Server.Address,
			Handler: server.New(reg, f, opts...).Router(),
		}
		go func() {
			logger.Info("listening", "address", cfg.Server.Address)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	// 8. Run the bot until a signal or server error
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	botDone := make(chan error, 1)
	go func() { botDone <- bot.Run(runCtx) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server: %w", err)
	case err := <-botDone:
		botDone <- err
		logger.Warn("update channel closed")
	}

	// 9. Graceful shutdown
	cancelRun()
	if err := <-botDone; err != nil && runErr == nil {
		runErr = fmt.Errorf("telegram bot: %w", err)
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return runErr
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [target]",
		Short: "Fetch and print the health of all or one endpoint",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("building registry: %w", err)
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	f := fetcher.NewHTTP(cfg.Fetch.Timeout.Duration, fetcher.WithLogger(logger))

	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	return runChecks(cmd.Context(), cmd.OutOrStdout(), reg, f, target)
}

func historyCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "history",
		Short: "Print recent command invocations from the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Storage.Path == "" {
				return errors.New("storage is disabled (storage.path is empty)")
			}

			db, err := storage.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			return executeHistory(cmd, db, limit)
		},
	}
	c.Flags().IntVar(&limit, "limit", 20, "number of invocations to show")
	return c
}
