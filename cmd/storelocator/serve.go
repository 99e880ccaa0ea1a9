package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kass/go-store-locator/pkg/augment"
	"github.com/kass/go-store-locator/pkg/customers"
	"github.com/kass/go-store-locator/pkg/logging"
	"github.com/kass/go-store-locator/pkg/query"
	"github.com/kass/go-store-locator/pkg/server"
)

const shutdownTimeout = 15 * time.Second

var (
	servePort    int
	serveBackend string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Opens the configured index, imports the configured dataset when the
index is empty and serves store and customer endpoints until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
	serveCmd.Flags().StringVarP(&serveBackend, "backend", "b", "", "Index backend: memory or postgis (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.For("serve")

	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveBackend != "" {
		cfg.Index.Backend = serveBackend
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Error("failed to close index")
		}
	}()

	// A failed import leaves the service up with whatever the index holds.
	if cfg.Import.Source != "" {
		res, err := importSource(cmd.Context(), b.index, cfg, cfg.Import.Source, false)
		if err != nil {
			log.WithError(err).WithField("source", cfg.Import.Source).Error("startup import failed")
		} else if !res.Skipped {
			log.WithField("imported", res.Imported).WithField("rejected", res.Rejected).Info("startup import done")
		}
	}

	if err := b.scheduleSnapshots(cfg.Index.SnapshotSchedule); err != nil {
		return err
	}

	svc := query.NewService(b.index, query.WithBasePath(cfg.Server.StoresBasePath))
	srv := server.SetupRoutes(server.Deps{
		Stores:         svc,
		Customers:      customers.NewRepository(),
		Augmenter:      augment.New(svc),
		Stats:          b.index,
		StoresBasePath: cfg.Server.StoresBasePath,
		Limiter:        server.NewLimiter(cfg.Server.RateLimit, cfg.Server.Burst),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("server started")
		errCh <- srv.Run(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case s := <-sig:
		log.WithField("signal", s.String()).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
		}
	}

	if err := b.snapshot(); err != nil {
		return err
	}
	return nil
}
