package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aluga-erp/aluga/cmd/aluga/cli"
	"github.com/aluga-erp/aluga/internal/app"
	audithttp "github.com/aluga-erp/aluga/internal/audit/http"
	"github.com/aluga-erp/aluga/internal/observability"
	settlementhttp "github.com/aluga-erp/aluga/internal/settlement/http"
	"github.com/aluga-erp/aluga/jobs"
)

const usage = `usage: aluga [command]

commands:
  serve                                   run the HTTP API (default)
  recalculate -contract ID -period YYYY-MM [-actor ID] [-json]
  jobs trigger <task> [args...]           enqueue settlement:recalculate or ownership:integrity
  jobs stats                              print queue statistics
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	case "recalculate":
		os.Exit(recalculate(ctx, cfg, logger, args))
	case "jobs":
		os.Exit(jobsCommand(ctx, cfg, args))
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	infra, err := app.OpenInfra(ctx, cfg)
	if err != nil {
		return err
	}
	defer infra.Close(logger)

	metrics := observability.NewMetrics()
	services, err := app.NewServices(cfg, infra, logger, metrics)
	if err != nil {
		return err
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SettlementHandler: settlementhttp.NewHandler(logger, services.Settlement, jobClient),
		AuditHandler:      audithttp.NewHandler(logger, services.History),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Database:          infra.Pool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func recalculate(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("recalculate", flag.ContinueOnError)
	contractID := fs.Int64("contract", 0, "contract id")
	period := fs.String("period", "", "period as YYYY-MM")
	actorID := fs.Int64("actor", 0, "actor id recorded in the history")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return cli.ExitError
	}

	infra, err := app.OpenInfra(ctx, cfg)
	if err != nil {
		logger.Error("open infra", slog.Any("error", err))
		return cli.ExitError
	}
	defer infra.Close(logger)

	services, err := app.NewServices(cfg, infra, logger, nil)
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		return cli.ExitError
	}
	settle, err := cli.NewSettleCLI(services.Settlement)
	if err != nil {
		logger.Error("settle cli", slog.Any("error", err))
		return cli.ExitError
	}
	return settle.RecalculateCommand(ctx, cli.RecalculateOptions{
		ContractID: *contractID,
		Period:     *period,
		ActorID:    *actorID,
		JSONOutput: *asJSON,
	})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
	jc, err := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jc.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprint(os.Stderr, usage)
			return 2
		}
		info, err := jc.Trigger(ctx, args[1], args[2:]...)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jc.InspectQueues(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		for _, s := range stats {
			_, _ = fmt.Fprintf(os.Stdout, "%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
		}
	default:
		_, _ = fmt.Fprint(os.Stderr, usage)
		return 2
	}
	return 0
}
