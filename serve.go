package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sudankdk/runbox/internal/api"
	"github.com/sudankdk/runbox/internal/config"
	"github.com/sudankdk/runbox/internal/docker"
	"github.com/sudankdk/runbox/internal/executor"
	"github.com/sudankdk/runbox/internal/languages"
	"github.com/sudankdk/runbox/internal/limiter"
	"github.com/sudankdk/runbox/internal/logger"
	"github.com/sudankdk/runbox/internal/model"
	"github.com/sudankdk/runbox/internal/sandbox"
	"github.com/sudankdk/runbox/internal/staging"
)

const shutdownTimeout = 30 * time.Second

var (
	addrFlag string
	pullFlag bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the execution HTTP server",
	Long: `Start the HTTP server accepting POST /execute submissions.

Examples:
  runbox serve
  runbox serve --addr :8080 --pull
  RUNBOX_EXECUTION_TIMEOUT=10s runbox serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "Address to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&pullFlag, "pull", false, "Pull missing language images before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	langs, err := languages.Load(cfg.Languages.File)
	if err != nil {
		return fmt.Errorf("loading languages: %w", err)
	}

	memory, err := cfg.MemoryBytes()
	if err != nil {
		return err
	}
	fileSize, err := cfg.FileSizeBytes()
	if err != nil {
		return err
	}
	outputLimit, err := cfg.OutputLimitBytes()
	if err != nil {
		return err
	}
	bodyLimit, err := cfg.BodyLimitBytes()
	if err != nil {
		return err
	}

	dc, err := docker.New(docker.Options{
		Host:    cfg.Docker.Host,
		WorkDir: cfg.Execution.WorkDir,
		Sandbox: sandbox.NewConfig(memory, cfg.Sandbox.CPUs, cfg.Sandbox.PidsLimit, fileSize),
		Logger:  log,
	})
	if err != nil {
		return err
	}
	defer dc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if pullFlag || cfg.Docker.PullImages {
		log.Info("ensuring language images", zap.Strings("images", langs.Images()))
		if err := dc.EnsureImages(ctx, langs.Images()); err != nil {
			return fmt.Errorf("pulling images: %w", err)
		}
	}

	stager, err := staging.New(cfg.Execution.StagingDir, cfg.Execution.WorkDir, dc)
	if err != nil {
		return err
	}

	exec := executor.NewExecutor(executor.Options{
		Languages: langs,
		Engine:    dc,
		Stager:    stager,
		Gate:      executor.NewGate(cfg.Execution.MaxConcurrent, cfg.Execution.QueueTimeout),
		Limits: model.Limits{
			Timeout:     cfg.Execution.Timeout,
			OutputBytes: outputLimit,
		},
		ProvisionTimeout: cfg.Execution.ProvisionTimeout,
		StageTimeout:     cfg.Execution.StageTimeout,
		CleanupTimeout:   cfg.Execution.CleanupTimeout,
		Logger:           log,
	})

	if cfg.Docker.ReapInterval > 0 {
		go dc.RunReaper(ctx, cfg.Docker.ReapInterval, cfg.Docker.ReapMaxAge)
	}

	rl := limiter.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	rl.StartCleanup(ctx, 5*time.Minute)

	srv := api.NewServer(api.Options{
		Executor:     exec,
		Languages:    langs,
		Limiter:      rl,
		BodyLimit:    int(bodyLimit),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.StartServer(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
