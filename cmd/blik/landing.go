package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"blik/core/landing"
)

// landingCmd serves only the marketing pages: no database, no sessions, no
// schedulers. Routes live at the site root instead of under /landing.
var landingCmd = &cobra.Command{
	Use:   "landing",
	Short: "Serve the standalone marketing site",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		site, err := landing.New(cfg.Landing, cfg.Stripe, true, logger)
		if err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:              cfg.Landing.ListenAddr,
			Handler:           site.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Printf("landing site listening on %s", cfg.Landing.ListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	},
}
