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

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/crm-notify/internal/devserver"
	"github.com/nhle/crm-notify/internal/logger"
	"github.com/nhle/crm-notify/internal/store"
)

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

	addr := pflag.String("addr", ":8080", "listen address")
	dbPath := pflag.String("db", "notifications.db", "sqlite database path (:memory: for a throwaway store)")
	seedPath := pflag.String("seed", "", "JSON file of notifications to load on start")
	prefix := pflag.String("prefix", "/api", "path prefix in front of /notifications")
	level := pflag.String("log-level", "info", "log level")
	pflag.Parse()

	log, err := logger.New(*level, "")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, err := store.NewSQLiteStore(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if *seedPath != "" {
		n, err := devserver.Seed(context.Background(), st, *seedPath)
		if err != nil {
			return err
		}
		log.Info("seeded notifications", zap.Int("count", n), zap.String("file", *seedPath))
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           devserver.New(st, devserver.Options{PathPrefix: *prefix, Logger: log}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("could not listen", zap.String("addr", *addr), zap.Error(err))
		}
	}()
	log.Info("notification backend running", zap.String("addr", *addr), zap.String("db", *dbPath))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received terminate, graceful shutdown", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	log.Info("server stopped")
	return nil
}
