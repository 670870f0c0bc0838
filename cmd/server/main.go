// Command server exposes the attendance tracker over HTTP.
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

	"github.com/prometheus/client_golang/prometheus"

	"qrattend/internal/api"
	"qrattend/internal/app"
	"qrattend/internal/config"
	"qrattend/internal/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.New())
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Module("server")

	a, err := app.New(ctx, cfg, logger.Slog(), prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	// SIGHUP reopens the log file after rotation
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			if err := logger.Reopen(); err != nil {
				log.Error("log reopen failed", "error", err)
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(a, logger.Module("api"), prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("server running", "addr", cfg.Server.Addr, "backend", cfg.Storage.Backend, "section", cfg.Section.Default)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
