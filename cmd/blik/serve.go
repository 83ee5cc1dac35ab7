package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"blik/core/appbootstrap"
	"blik/core/store"

	"blik/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run schema migrations and serve the full application",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := store.NewDB(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := store.ApplyMigrations(ctx, db, logger); err != nil {
			return err
		}

		runtime, err := appbootstrap.Compose(cfg, db, logger)
		if err != nil {
			return err
		}

		server := api.NewServer(cfg, runtime.ServerDeps, logger)
		httpServer := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           server.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		for _, w := range runtime.Workers {
			if err := w.StartWithContext(ctx); err != nil {
				return err
			}
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Printf("listening on %s", cfg.ListenAddr)
			var serveErr error
			if cfg.TLSEnabled {
				serveErr = httpServer.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
			} else {
				serveErr = httpServer.ListenAndServe()
			}
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				errCh <- serveErr
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("http shutdown: %v", err)
		}
		for _, w := range runtime.Workers {
			if err := w.StopWithContext(shutdownCtx); err != nil {
				logger.Errorf("worker stop: %v", err)
			}
		}
		return nil
	},
}
