// Command drover drives workflows against remote pages behind a
// disguised browsing pattern.
//
// Usage:
//
//	drover -config drover.yaml             # serve the HTTP API
//	drover -config drover.yaml -run 3      # run workflow 3 once, print JSON
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

	"github.com/hazyhaar/drover/action"
	"github.com/hazyhaar/drover/api"
	"github.com/hazyhaar/drover/browser"
	"github.com/hazyhaar/drover/cloak"
	"github.com/hazyhaar/drover/export"
	"github.com/hazyhaar/drover/store"
	"github.com/hazyhaar/drover/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to drover.yaml config file")
	runID := flag.Int64("run", 0, "run one workflow by id and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *runID); err != nil {
		logger.Error("drover: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, runID int64) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	policy := cloak.NewPolicy(cloak.Config{
		Store:      st,
		UserAgents: cfg.Cloak.UserAgents,
		Proxies:    cfg.Cloak.Proxies,
		Delay:      cfg.Cloak.Delay,
		Logger:     logger,
	})
	if err := policy.Load(ctx); err != nil {
		return err
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:  cfg.Browser.Remote,
		Headful:    cfg.Browser.Headful,
		NavTimeout: cfg.Browser.NavTimeout,
		Logger:     logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	exec := action.NewExecutor(action.Config{
		Browser: mgr,
		Policy:  policy,
		Logger:  logger,
	})
	engine := workflow.New(st, exec, logger)
	exporter := export.New(cfg.ExportDir, logger)

	if runID > 0 {
		return runOnce(ctx, st, engine, exporter, runID)
	}
	return serve(ctx, logger, cfg.Listen, api.New(api.Config{
		Store:    st,
		Engine:   engine,
		Policy:   policy,
		Exporter: exporter,
		Logger:   logger,
	}))
}

// runOnce executes one workflow, records it, exports it, and prints the
// run document to stdout.
func runOnce(ctx context.Context, st *store.Store, engine *workflow.Engine, exporter *export.Exporter, workflowID int64) error {
	started := time.Now()
	results, err := engine.Run(ctx, workflowID)
	if err != nil {
		return err
	}

	id, err := st.SaveRun(ctx, workflowID, started, results)
	if err != nil {
		return err
	}
	run, err := st.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if _, err := exporter.Export(run); err != nil && !errors.Is(err, export.ErrEmptyRun) {
		return err
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
	return nil
}

func serve(ctx context.Context, logger *slog.Logger, addr string, svc *api.Service) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("drover: serving", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("drover: stopped")
	return nil
}
