package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	grpcapi "snore-monitor-service/internal/api/grpc"
	"snore-monitor-service/internal/app"
	httpapi "snore-monitor-service/internal/http"
	"snore-monitor-service/internal/observability"
)

var serveAutostart bool

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and gRPC service",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().BoolVar(&serveAutostart, "autostart", false, "start monitoring immediately")
	return cmd
}

func runServeCmd(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		a.Shutdown(context.Background())
		return err
	}

	metricsServer := observability.NewServer(cfg.Service.MetricsAddr, a.Store.Ping)
	metricsServer.Start()

	// Live feed
	hub := httpapi.NewHub()
	hubEvents, _ := a.Bus.Subscribe("ws-hub", 1024)
	a.Go(func(ctx context.Context) { hub.Run(ctx, hubEvents) })

	httpServer := &http.Server{
		Addr: cfg.Service.HTTPAddr,
		Handler: httpapi.NewRouter(&httpapi.API{
			Monitor:  a.Monitor,
			Store:    a.Store,
			Settings: a.Settings,
			Hub:      hub,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Service.HTTPAddr).Msg("HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// gRPC health
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		a.Shutdown(context.Background())
		return fmt.Errorf("failed to listen: %w", err)
	}
	grpcServer := grpcapi.New()
	healthEvents, _ := a.Bus.Subscribe("grpc-health", 16)
	a.Go(func(ctx context.Context) { grpcServer.Track(ctx, healthEvents) })
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC serve failed")
		}
	}()

	if serveAutostart {
		if _, err := a.Monitor.Start(context.Background()); err != nil {
			log.Error().Err(err).Msg("Autostart failed")
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := shutdownContext()
	defer cancel()

	log.Info().Msg("Shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	grpcServer.Stop(ctx)
	a.Shutdown(ctx)
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Metrics shutdown incomplete")
	}
	return nil
}
