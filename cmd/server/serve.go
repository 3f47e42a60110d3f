package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	httpapi "github.com/tbourn/go-shop-chat/internal/http"
	"github.com/tbourn/go-shop-chat/internal/observability"
	"github.com/tbourn/go-shop-chat/internal/repo"
)

const purgeInterval = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and websocket gateway",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, db, err := bootstrap()
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return fmt.Errorf("migrate: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		closeDB(db)
		return fmt.Errorf("otel: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	gw := httpapi.RegisterRoutes(r, db, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	purgeCtx, stopPurge := context.WithCancel(context.Background())
	go purgeLoop(purgeCtx, db, purgeInterval)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		// Live sockets are hijacked, so http.Server.Shutdown does not see
		// them; the gateway closes them before the listener goes away.
		"server": func(ctx context.Context) error {
			stopPurge()
			gwErr := gw.Shutdown(ctx)
			srvErr := srv.Shutdown(ctx)
			closeDB(db)
			return errors.Join(gwErr, srvErr)
		},
		"otel": shutdownOTel,
	})

	if code := <-wait; code != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", code)
	}
	log.Info().Msg("stopped")
	return nil
}

// purgeLoop deletes expired client message id records until ctx ends.
func purgeLoop(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
			if err != nil {
				log.Warn().Err(err).Msg("purge expired client message ids")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("purged expired client message ids")
			}
		}
	}
}
