// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blinklabs-io/passsync"
	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/internal/config"
)

// EngineOptions translates the process configuration into engine options
func EngineOptions(
	cfg *config.Config,
	logger *slog.Logger,
	registry prometheus.Registerer,
) ([]passsync.ConfigOptionFunc, error) {
	policy, err := certmanager.ParseFallbackPolicy(cfg.FallbackPolicy)
	if err != nil {
		return nil, err
	}
	opts := []passsync.ConfigOptionFunc{
		passsync.WithLogger(logger),
		passsync.WithPrometheusRegistry(registry),
		passsync.WithDatabasePath(cfg.DatabasePath),
		passsync.WithMetadataPlugin(cfg.MetadataPlugin),
		passsync.WithAssetPlugin(cfg.AssetPlugin),
		passsync.WithCachePlugin(cfg.CachePlugin),
		passsync.WithListen(cfg.BindAddr, cfg.Port),
		passsync.WithPublicURL(cfg.PublicURL),
		passsync.WithTlsCertFilePath(cfg.TlsCertFilePath),
		passsync.WithTlsKeyFilePath(cfg.TlsKeyFilePath),
		passsync.WithShutdownTimeout(cfg.ShutdownTimeoutDuration()),
		passsync.WithSyncTimeout(cfg.SyncTimeoutDuration()),
		passsync.WithSyncWorkers(cfg.SyncWorkers),
		passsync.WithTracing(cfg.TracingEnabled),
		passsync.WithTracingStdout(cfg.TracingStdout),
		passsync.WithCertificatePool(cfg.CertificatePool, cfg.MasterSecret),
		passsync.WithFallback(
			cfg.FallbackDir,
			policy,
			cfg.FallbackPassTypeID,
			cfg.FallbackTeamID,
		),
		passsync.WithWWDRCertificate(cfg.WWDRCertificate),
		passsync.WithPush(cfg.APNsProduction, cfg.PushWorkers),
		passsync.WithNotificationLimit(cfg.NotificationLimit),
		passsync.WithCallbackVerification(cfg.RootKeysURL, cfg.CallbackSkipVerify),
	}
	if cfg.WalletObjectsEnabled() {
		opts = append(
			opts,
			passsync.WithWalletObjects(
				cfg.IssuerID,
				cfg.ServiceAccountFile,
				cfg.SaveOrigins,
			),
		)
	}
	return opts, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(
		fmt.Sprintf("config: public URL %s, port %d", cfg.PublicURL, cfg.Port),
		"component", "server",
	)
	opts, err := EngineOptions(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	e, err := passsync.New(passsync.NewConfig(opts...))
	if err != nil {
		return err
	}
	shutdownTimeout := cfg.ShutdownTimeoutDuration()
	// Metrics and debug listener
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		http.Handle("/metrics", promhttp.Handler())
		metricsAddr := fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.MetricsPort)
		logger.Info(
			"serving prometheus metrics on "+metricsAddr,
			"component", "server",
		)
		metricsServer = &http.Server{
			Addr:              metricsAddr,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				logger.Error(
					fmt.Sprintf("failed to start metrics listener: %s", err),
					"component", "server",
				)
			}
		}()
	}
	stopMetrics := func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	//nolint:contextcheck
	if err := e.Run(signalCtx); err != nil {
		logger.Error("engine error", "error", err)
		stopMetrics()
		if stopErr := e.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}
		return err
	}
	logger.Info("signal received, initiating graceful shutdown")
	stopMetrics()
	if err := e.Stop(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
