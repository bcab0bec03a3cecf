package main

import (
	"context"
	"encoding/json"
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
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-access/cmd/accessd/cli"
	"github.com/odyssey-erp/odyssey-access/internal/app"
	"github.com/odyssey-erp/odyssey-access/jobs"
)

const usage = `usage: accessd [serve|migrate|bootstrap|jobs] [flags]

  serve                          run the HTTP API (default)
  migrate                        apply database migrations
  bootstrap --email ADDR         seed the first administrator and print its credentials
  jobs trigger expire [--at T]   enqueue an expiry sweep
  jobs stats                     print queue statistics
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var code int
	switch cmd {
	case "serve":
		code = serve(ctx, cfg, logger)
	case "migrate":
		code = migrate(ctx, cfg, logger)
	case "bootstrap":
		code = bootstrap(ctx, cfg, logger, args)
	case "jobs":
		code = jobsCommand(ctx, cfg, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	rt, err := app.OpenRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", slog.Any("error", err))
		return 1
	}
	defer rt.Close()

	if rt.Pool != nil {
		if err := rt.Migrate(ctx, cfg, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			return 1
		}
	}

	services := app.BuildServices(rt.Deps)

	queueOpt := app.RedisOptions(cfg).AsynqOpt()
	inspector := asynq.NewInspector(queueOpt)
	queue := jobs.NewClient(queueOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger).WithEnqueuer(queue, services.Guard(cfg))

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      services.Router(cfg, rt.Deps.Metrics, jobHandler),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.AppStore), slog.String("issuer", cfg.TokenIssuer))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server", slog.Any("error", err))
		return 1
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func migrate(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	rt, err := app.OpenRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", slog.Any("error", err))
		return 1
	}
	defer rt.Close()
	if err := rt.Migrate(ctx, cfg, logger); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return 1
	}
	return 0
}

func bootstrap(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	opts := cli.BootstrapOptions{}
	fs.StringVar(&opts.Email, "email", "", "administrator email")
	fs.StringVar(&opts.StructureName, "structure", "Root", "root structure name")
	fs.StringVar(&opts.StructureType, "structure-type", "ORG", "root structure type")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	rt, err := app.OpenRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("open runtime", slog.Any("error", err))
		return 1
	}
	defer rt.Close()
	if rt.Pool != nil {
		if err := rt.Migrate(ctx, cfg, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			return 1
		}
	}
	return cli.BootstrapCommand(ctx, app.BuildServices(rt.Deps), opts)
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	jc := cli.NewJobsCLI(app.RedisOptions(cfg).AsynqOpt())
	defer func() { _ = jc.Close() }()

	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		atRaw := fs.String("at", "", "evaluation instant (RFC3339), defaults to the worker clock")
		if len(args) < 2 {
			fmt.Fprint(os.Stderr, usage)
			return 2
		}
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		var at time.Time
		if *atRaw != "" {
			parsed, err := time.Parse(time.RFC3339, *atRaw)
			if err != nil {
				fmt.Fprintf(os.Stderr, "jobs trigger: invalid --at %q\n", *atRaw)
				return 2
			}
			at = parsed
		}
		info, err := jc.Trigger(ctx, args[1], at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jc.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs stats: %v\n", err)
			return 1
		}
		_ = json.NewEncoder(os.Stdout).Encode(stats)
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	return 0
}
