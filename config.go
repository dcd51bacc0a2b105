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

package passsync

import (
	"errors"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/passsync/certmanager"
)

const DefaultPruneInterval = time.Hour

type Config struct {
	promRegistry       prometheus.Registerer
	logger             *slog.Logger
	dataDir            string
	metadataPlugin     string
	assetPlugin        string
	cachePlugin        string
	bindAddr           string
	publicURL          string
	tlsCertFilePath    string
	tlsKeyFilePath     string
	port               uint
	shutdownTimeout    time.Duration
	syncTimeout        time.Duration
	syncWorkers        int
	pruneInterval      time.Duration
	tracing            bool
	tracingStdout      bool
	masterSecret       string
	certificatePool    bool
	fallbackPolicy     certmanager.FallbackPolicy
	fallbackDir        string
	fallbackPassTypeID string
	fallbackTeamID     string
	wwdrCertificate    string
	apnsProduction     bool
	pushWorkers        int
	issuerID           string
	serviceAccountFile string
	saveOrigins        []string
	rootKeysURL        string
	callbackSkipVerify bool
	notificationLimit  int
}

func (c *Config) validate() error {
	if c.publicURL != "" {
		u, err := url.Parse(c.publicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("public URL must be absolute")
		}
	}
	if c.certificatePool && c.masterSecret == "" {
		return errors.New("master secret is required by the certificate pool")
	}
	if c.serviceAccountFile != "" && c.issuerID == "" {
		return errors.New("issuer id is required with a service account")
	}
	return nil
}

// walletObjectsEnabled reports whether the second platform is configured
func (c *Config) walletObjectsEnabled() bool {
	return c.serviceAccountFile != "" && c.issuerID != ""
}

// ConfigOptionFunc is a type that represents functions that modify the engine config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new engine config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger:         slog.New(slog.NewJSONHandler(io.Discard, nil)),
		fallbackPolicy: certmanager.FallbackWarn,
		pruneInterval:  DefaultPruneInterval,
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to. In most cases, prometheus.DefaultRegistry would be
// a good choice to get metrics working
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDatabasePath specifies the persistent data directory to use
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithAssetPlugin specifies the storage plugin for rendered images
func WithAssetPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.assetPlugin = plugin
	}
}

// WithCachePlugin specifies the shared certificate cache tier. The default is
// to run without one
func WithCachePlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.cachePlugin = plugin
	}
}

// WithListen specifies the address and port of the web service
func WithListen(bindAddr string, port uint) ConfigOptionFunc {
	return func(c *Config) {
		c.bindAddr = bindAddr
		c.port = port
	}
}

// WithPublicURL specifies the externally reachable base URL of the web service
func WithPublicURL(publicURL string) ConfigOptionFunc {
	return func(c *Config) {
		c.publicURL = publicURL
	}
}

// WithTlsCertFilePath specifies the path to the TLS certificate for the web service
func WithTlsCertFilePath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsCertFilePath = path
	}
}

// WithTlsKeyFilePath specifies the path to the TLS key for the web service
func WithTlsKeyFilePath(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.tlsKeyFilePath = path
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. The default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}

// WithSyncTimeout bounds each platform sync
func WithSyncTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.syncTimeout = timeout
	}
}

// WithSyncWorkers bounds the concurrent object updates of a design sync
func WithSyncWorkers(workers int) ConfigOptionFunc {
	return func(c *Config) {
		c.syncWorkers = workers
	}
}

// WithPruneInterval specifies how often expired callback nonces and
// notification log rows are removed
func WithPruneInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.pruneInterval = interval
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint using OTLP. This can be configured
// using the OTEL_EXPORTER_OTLP_* env vars documented in the README for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithCertificatePool enables per-business certificates sealed with the
// master secret
func WithCertificatePool(enabled bool, masterSecret string) ConfigOptionFunc {
	return func(c *Config) {
		c.certificatePool = enabled
		c.masterSecret = masterSecret
	}
}

// WithFallback specifies the directory holding the shared signing identity
// and the policy applied when it is used
func WithFallback(
	dir string,
	policy certmanager.FallbackPolicy,
	passTypeIdentifier string,
	teamID string,
) ConfigOptionFunc {
	return func(c *Config) {
		c.fallbackDir = dir
		c.fallbackPolicy = policy
		c.fallbackPassTypeID = passTypeIdentifier
		c.fallbackTeamID = teamID
	}
}

// WithWWDRCertificate specifies the PEM file of the intermediate certificate
// bundled with every pass signature
func WithWWDRCertificate(path string) ConfigOptionFunc {
	return func(c *Config) {
		c.wwdrCertificate = path
	}
}

// WithPush configures the push gateway and its fan-out width
func WithPush(production bool, workers int) ConfigOptionFunc {
	return func(c *Config) {
		c.apnsProduction = production
		c.pushWorkers = workers
	}
}

// WithWalletObjects enables the second platform for an issuer account
func WithWalletObjects(
	issuerID string,
	serviceAccountFile string,
	saveOrigins []string,
) ConfigOptionFunc {
	return func(c *Config) {
		c.issuerID = issuerID
		c.serviceAccountFile = serviceAccountFile
		c.saveOrigins = saveOrigins
	}
}

// WithCallbackVerification specifies where the callback root keys are
// published. skipVerify accepts unsigned callbacks and is meant for testing
func WithCallbackVerification(rootKeysURL string, skipVerify bool) ConfigOptionFunc {
	return func(c *Config) {
		c.rootKeysURL = rootKeysURL
		c.callbackSkipVerify = skipVerify
	}
}

// WithNotificationLimit specifies the daily notification quota per object
func WithNotificationLimit(limit int) ConfigOptionFunc {
	return func(c *Config) {
		c.notificationLimit = limit
	}
}
