// Command scheduler is the distask scheduler's single binary, run in one
// of two modes selected by its first argument:
//
//	scheduler http      runs the task submission API
//	scheduler executor  runs the Listener/Sweeper/WorkQueue supervisor
//
// Both modes share the same configuration file and PostgreSQL Store
// adapter; a deployment typically runs one "http" process behind a load
// balancer and N "executor" processes for horizontal scale-out.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/distask/scheduler/pkg/infrastructure/config"
	"github.com/distask/scheduler/pkg/infrastructure/logging"
	"github.com/distask/scheduler/pkg/infrastructure/metrics"
	"github.com/distask/scheduler/pkg/scheduler/executor"
	"github.com/distask/scheduler/pkg/scheduler/handlers"
	"github.com/distask/scheduler/pkg/scheduler/httpapi"
	"github.com/distask/scheduler/pkg/scheduler/store/postgres"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: scheduler <http|executor> [-config path]")
		os.Exit(1)
	}

	mode := os.Args[1]
	fs := flag.NewFlagSet(mode, flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	migrationsPath := fs.String("migrations", "file://migrations", "migrations source URL")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel, err := logging.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}

	logFormat := logging.TextFormat
	if cfg.Logging.Format == "json" {
		logFormat = logging.JSONFormat
	}

	output, err := resolveLogOutput(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up log output: %v\n", err)
		os.Exit(1)
	}

	logging.InitGlobalLogger(&logging.Config{
		Level:  logLevel,
		Format: logFormat,
		Output: output,
	})
	log := logging.GetGlobalLogger().WithComponent(mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := postgres.MigrateToLatest(cfg.Database.ConnString(), *migrationsPath); err != nil {
		log.Error("migration failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	st, err := postgres.New(ctx, postgres.FromAppConfig(cfg.Database), log)
	if err != nil {
		log.Error("failed to connect to database", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer st.Close()

	// The default registry already carries the Go and process collectors,
	// and it is the one promhttp.Handler() serves on /metrics.
	m := metrics.New(prometheus.DefaultRegisterer)

	switch mode {
	case "http":
		runHTTP(ctx, cfg.Server, cfg.HTTP, st, log, m)
	case "executor":
		runExecutor(ctx, cfg.Server, st, log, m)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q: expected http or executor\n", mode)
		os.Exit(1)
	}
}

func runHTTP(ctx context.Context, server config.ServerConfig, httpCfg config.HTTPConfig, st *postgres.Store, log *logging.Logger, m *metrics.Metrics) {
	srv := httpapi.New(httpapi.Config{
		ChannelName:       server.TasksChannelName,
		MaxSecondsToSleep: server.MaxSecondsToSleep,
	}, st, log)
	srv.SetMetrics(m)

	addr := fmt.Sprintf(":%d", httpCfg.ListenPort)
	httpServer := &http.Server{Addr: addr, Handler: srv.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("http server listening", map[string]interface{}{"addr": addr})
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("http server failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func runExecutor(ctx context.Context, server config.ServerConfig, st *postgres.Store, log *logging.Logger, m *metrics.Metrics) {
	reg := handlers.DefaultRegistry(server.BarURL)

	sv := executor.New(server, st, reg, log)
	sv.SetMetrics(m)

	log.Info("executor supervisor starting")
	if err := sv.Run(ctx); err != nil {
		log.Error("executor supervisor exited with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func resolveLogOutput(cfg config.LoggingConfig) (io.Writer, error) {
	switch cfg.Output {
	case "file":
		return logging.CreateFileOutput(cfg.File)
	case "both":
		return logging.CreateCombinedOutput(cfg.File)
	default:
		return os.Stdout, nil
	}
}
