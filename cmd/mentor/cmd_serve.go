// Copyright (C) 2025 Atelier Labs (dev@atelierlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/atelierlabs/archmentor/pkg/logging"
	"github.com/atelierlabs/archmentor/services/mentor/config"
	"github.com/atelierlabs/archmentor/services/mentor/server"
	"github.com/atelierlabs/archmentor/services/mentor/telemetry"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logErr := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		Service: "mentor",
	})
	if logErr != nil {
		logger.Warn("File logging unavailable", "error", logErr)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := prometheus.NewRegistry()

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.ServiceVersion = server.ServiceVersion
	telemetryCfg.MetricRegistry = metrics
	if tracesMode != "" {
		telemetryCfg.TraceExporter = tracesMode
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("Telemetry shutdown", "error", err)
		}
	}()

	registry, monitor, err := buildCore(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.EvictIdle(2 * time.Hour); n > 0 {
					logger.Info("Evicted idle sessions", "count", n)
				}
			}
		}
	}()

	handlers := server.NewHandlers(registry).WithMonitor(monitor)
	engine := server.NewEngine(handlers, metrics)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Mentor service listening", "port", cfg.Port, "domain", cfg.Domain)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
