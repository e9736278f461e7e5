package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ummah-sync/internal/api"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: `Run the sync daemon: load the local cache, restore the stored session,
keep the entities in sync with the remote service, listen on the push
channel and raise prayer alerts. With server.enabled the local state API
is served as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), rootOpts)
		},
	}
}

func runDaemon(parent context.Context, opts *RootOptions) error {
	cfg := opts.cfg
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	stopReconciler := a.start(ctx)
	defer stopReconciler()

	snap := a.rec.Snapshot()
	log.Info().Str("status", string(snap.Status)).Bool("cache_ready", snap.CacheReady).Msg("daemon started")

	var server *http.Server
	if cfg.Server.Enabled {
		gin.SetMode(gin.ReleaseMode)
		router := api.NewRouter(cfg.Server, cfg.Location.Zone, a.rec, a.db, a.webpush)
		server = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: router,
		}
		go func() {
			log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server failed")
				stop()
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping services")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown")
		}
	}
	return nil
}
