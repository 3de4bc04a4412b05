package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/crm-notify/internal/app"
	"github.com/nhle/crm-notify/internal/credential"
	"github.com/nhle/crm-notify/internal/gateway"
	"github.com/nhle/crm-notify/internal/inbox"
	"github.com/nhle/crm-notify/internal/logger"
	"github.com/nhle/crm-notify/internal/metrics"
	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/session"
	appsync "github.com/nhle/crm-notify/internal/sync"
	"github.com/nhle/crm-notify/internal/tracing"
)

const serviceName = "crm-notify"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}

	configPath := pflag.StringP("config", "c", model.DefaultConfigPath(), "path to the configuration file")
	pflag.Parse()

	switch pflag.Arg(0) {
	case "", "inbox":
	case "logout":
		if err := credential.Delete(credential.APITokenKey); err != nil {
			return fmt.Errorf("removing stored token: %w", err)
		}
		fmt.Println("Signed out.")
		return nil
	default:
		return fmt.Errorf("unknown command %q (want inbox or logout)", pflag.Arg(0))
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Tracing.Endpoint, log)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg.Metrics.Addr, log)
		defer stop()
	}

	sess, err := session.Resolve(cfg, nil)
	if err != nil {
		return err
	}

	client := gateway.NewClient(cfg.API.BaseURL, sess.Token, gateway.ClientOptions{
		Timeout:     cfg.Timeout(),
		MaxFailures: cfg.Breaker.MaxFailures,
		Cooldown:    time.Duration(cfg.Breaker.CooldownSec) * time.Second,
		Logger:      log,
	})
	gw := gateway.New(client)

	store := inbox.NewStore(gw, inbox.NewSelection(), inbox.StoreOptions{
		PageSize: cfg.Sync.PageSize,
		Logger:   log,
	})
	filters := inbox.NewFilterController(store)

	host, _ := os.Hostname()
	notices := app.NewNotices()
	exec := inbox.NewExecutor(store, filters, gw, notices.ExecutorOptions(inbox.ExecutorOptions{
		Device: host,
		Logger: log,
	}))

	sched := appsync.New(store, appsync.Options{
		Interval:         cfg.PollInterval(),
		FocusMinInterval: cfg.FocusMinInterval(),
		Gate:             sess,
		Logger:           log,
	})
	sched.Start(ctx)
	defer sched.Stop()

	root := app.New(ctx, app.Deps{
		Session:   sess,
		Store:     store,
		Filters:   filters,
		Executor:  exec,
		Scheduler: sched,
		Notices:   notices,
		UserID:    cfg.API.UserID,
		SaveToken: func(token string) error {
			return credential.Set(credential.APITokenKey, token)
		},
		Logger: log,
	})

	log.Info("starting inbox",
		zap.String("api", cfg.API.BaseURL),
		zap.Bool("signed_in", !sess.IsAuthenticationPending()),
	)

	p := tea.NewProgram(root,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return fmt.Errorf("running UI: %w", err)
	}
	return nil
}

// serveMetrics exposes the client collectors on addr until the returned
// function is called.
func serveMetrics(addr string, log *zap.Logger) func() {
	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
