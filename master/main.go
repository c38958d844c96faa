// Command master runs the session directory and relay allocation service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/automoto/kitchen-mp/config"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("[master] config: %v", err)
	}

	flag.IntVar(&cfg.MasterPort, "port", cfg.MasterPort, "HTTP listen port")
	flag.DurationVar(&cfg.SessionTTL, "ttl", cfg.SessionTTL, "Session TTL before expiry")
	flag.Parse()

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("[master] logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.Named("master")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("master stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clock := clockwork.NewRealClock()
	svc := NewService(
		NewRegistry(cfg.SessionTTL, clock, logger),
		NewRelay(cfg.AllocationLifetime, clock),
		cfg.MaxPlayers,
		logger,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MasterPort),
		Handler:           svc.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.Duration("ttl", cfg.SessionTTL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunCleanup(ctx, cfg.CleanupInterval)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
