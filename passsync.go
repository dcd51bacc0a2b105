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

// Package passsync wires the loyalty pass services into one engine with a
// Start/Stop lifecycle.
package passsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/coordinator"
	"github.com/blinklabs-io/passsync/database"
	"github.com/blinklabs-io/passsync/event"
	"github.com/blinklabs-io/passsync/passkit"
	"github.com/blinklabs-io/passsync/stripimage"
	"github.com/blinklabs-io/passsync/walletobjects"
	"github.com/blinklabs-io/passsync/webservice"
)

const assetFetchTimeout = 10 * time.Second

type Engine struct {
	db            *database.Database
	certs         *certmanager.Manager
	eventBus      *event.EventBus
	coordinator   *coordinator.Coordinator
	webService    *webservice.WebService
	shutdownFuncs []func(context.Context) error
	cancel        context.CancelFunc
	maintenanceWg sync.WaitGroup
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Engine{
		config: cfg,
		done:   make(chan struct{}),
	}, nil
}

// Start opens the database, builds every service and starts the web service
// listener when a port is configured
func (e *Engine) Start(ctx context.Context) error {
	// Configure tracing
	if e.config.tracing {
		if err := e.setupTracing(ctx); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:        e.config.dataDir,
		Logger:         e.config.logger,
		MetadataPlugin: e.config.metadataPlugin,
		AssetPlugin:    e.config.assetPlugin,
		CachePlugin:    e.config.cachePlugin,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	e.db = db
	// Load certificate manager
	certs, err := e.newCertificateManager()
	if err != nil {
		return err
	}
	e.certs = certs
	// Load pass assembly and push delivery
	generator := stripimage.NewGenerator(
		stripimage.WithLogger(e.config.logger),
		stripimage.WithPromRegistry(e.config.promRegistry),
	)
	fetcher := passkit.NewHTTPFetcher(&http.Client{Timeout: assetFetchTimeout})
	assemblerOpts := []passkit.AssemblerOptionFunc{
		passkit.WithLogger(e.config.logger),
		passkit.WithPromRegistry(e.config.promRegistry),
		passkit.WithGenerator(generator),
		passkit.WithAssetFetcher(fetcher),
		passkit.WithWebServiceURL(e.config.publicURL),
	}
	if e.config.wwdrCertificate != "" {
		wwdrData, err := os.ReadFile(e.config.wwdrCertificate)
		if err != nil {
			return fmt.Errorf("read WWDR certificate: %w", err)
		}
		wwdr, err := passkit.ParseCertificatePEM(wwdrData)
		if err != nil {
			return fmt.Errorf("parse WWDR certificate: %w", err)
		}
		assemblerOpts = append(assemblerOpts, passkit.WithWWDRCertificate(wwdr))
	}
	dispatcher := passkit.NewDispatcher(
		passkit.WithDispatcherLogger(e.config.logger),
		passkit.WithDispatcherPromRegistry(e.config.promRegistry),
		passkit.WithClientFactory(passkit.APNsClientFactory(e.config.apnsProduction)),
		passkit.WithWorkers(e.config.pushWorkers),
	)
	// Load event bus and coordinator
	e.eventBus = event.NewEventBus(e.config.promRegistry, e.config.logger)
	coordinatorOpts := []coordinator.CoordinatorOptionFunc{
		coordinator.WithLogger(e.config.logger),
		coordinator.WithPromRegistry(e.config.promRegistry),
		coordinator.WithDatabase(e.db),
		coordinator.WithCertificates(e.certs),
		coordinator.WithAssembler(passkit.NewAssembler(assemblerOpts...)),
		coordinator.WithDispatcher(dispatcher),
		coordinator.WithGenerator(generator),
		coordinator.WithAssetFetcher(fetcher),
		coordinator.WithEventBus(e.eventBus),
		coordinator.WithPublicURL(e.config.publicURL),
		coordinator.WithSyncTimeout(e.config.syncTimeout),
		coordinator.WithWorkers(e.config.syncWorkers),
	}
	var callbacks webservice.CallbackReceiver
	if e.config.walletObjectsEnabled() {
		wallet, err := e.newWalletObjects(ctx)
		if err != nil {
			return err
		}
		coordinatorOpts = append(
			coordinatorOpts,
			coordinator.WithIssuerID(e.config.issuerID),
			coordinator.WithWalletClient(wallet.client),
			coordinator.WithSaveSigner(wallet.signer),
			coordinator.WithThrottle(wallet.throttle),
		)
		callbacks = wallet.callbacks
	} else {
		e.config.logger.Info(
			"wallet objects platform is not configured",
			"component", "passsync",
		)
	}
	coord, err := coordinator.New(coordinatorOpts...)
	if err != nil {
		return fmt.Errorf("failed to load coordinator: %w", err)
	}
	e.coordinator = coord
	e.coordinator.Subscribe(e.eventBus)
	// Load web service
	wsConfig := webservice.WebServiceConfig{
		Logger:          e.config.logger,
		PromRegistry:    e.config.promRegistry,
		Store:           e.db,
		Passes:          e.coordinator,
		Certificates:    e.certs,
		Callbacks:       callbacks,
		Host:            e.config.bindAddr,
		Port:            e.config.port,
		TlsCertFilePath: e.config.tlsCertFilePath,
		TlsKeyFilePath:  e.config.tlsKeyFilePath,
	}
	if local, ok := e.db.Assets().(interface{ Handler() http.Handler }); ok {
		wsConfig.Assets = local.Handler()
	}
	e.webService = webservice.NewWebService(wsConfig)
	if e.config.port > 0 {
		if err := e.webService.Start(); err != nil {
			return fmt.Errorf("failed to start web service: %w", err)
		}
	}
	// Start background maintenance
	maintenanceCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.maintenanceWg.Add(1)
	go e.maintenanceLoop(maintenanceCtx)
	return nil
}

// Run starts the engine and blocks until ctx is done
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-e.done:
	}
	return nil
}

func (e *Engine) newCertificateManager() (*certmanager.Manager, error) {
	opts := []certmanager.ManagerOptionFunc{
		certmanager.WithLogger(e.config.logger),
		certmanager.WithPromRegistry(e.config.promRegistry),
		certmanager.WithStore(e.db),
		certmanager.WithPoolEnabled(e.config.certificatePool),
	}
	if e.config.masterSecret != "" {
		c, err := certmanager.NewCipher([]byte(e.config.masterSecret))
		if err != nil {
			return nil, err
		}
		opts = append(opts, certmanager.WithCipher(c))
	}
	if e.db.Cache() != nil {
		opts = append(opts, certmanager.WithSharedCache(e.db.Cache()))
	}
	if e.config.fallbackDir != "" {
		opts = append(
			opts,
			certmanager.WithFallback(
				e.config.fallbackDir,
				e.config.fallbackPolicy,
				e.config.fallbackPassTypeID,
				e.config.fallbackTeamID,
			),
		)
	}
	certs, err := certmanager.NewManager(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate manager: %w", err)
	}
	return certs, nil
}

type walletObjects struct {
	client    *walletobjects.Client
	signer    *walletobjects.Signer
	throttle  *walletobjects.Throttle
	callbacks *walletobjects.CallbackHandler
}

func (e *Engine) newWalletObjects(ctx context.Context) (*walletObjects, error) {
	credentials, err := os.ReadFile(e.config.serviceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account: %w", err)
	}
	account, err := walletobjects.ParseServiceAccount(credentials)
	if err != nil {
		return nil, err
	}
	signer, err := walletobjects.NewSigner(account, e.config.saveOrigins)
	if err != nil {
		return nil, err
	}
	// The token source outlives ctx
	httpClient, err := walletobjects.HTTPClientFromCredentials(
		context.Background(),
		credentials,
	)
	if err != nil {
		return nil, err
	}
	throttleOpts := []walletobjects.ThrottleOptionFunc{
		walletobjects.WithThrottleLogger(e.config.logger),
		walletobjects.WithThrottlePromRegistry(e.config.promRegistry),
	}
	if e.config.notificationLimit > 0 {
		throttleOpts = append(
			throttleOpts,
			walletobjects.WithNotificationLimit(e.config.notificationLimit),
		)
	}
	callbackOpts := []walletobjects.CallbackOptionFunc{
		walletobjects.WithCallbackLogger(e.config.logger),
		walletobjects.WithCallbackPromRegistry(e.config.promRegistry),
	}
	if e.config.callbackSkipVerify {
		e.config.logger.Warn(
			"wallet objects callback signatures are not verified",
			"component", "passsync",
		)
		callbackOpts = append(callbackOpts, walletobjects.WithInsecureSkipVerify())
	} else {
		rootKeys, err := walletobjects.FetchRootKeys(
			ctx,
			&http.Client{Timeout: walletobjects.DefaultTimeout},
			e.config.rootKeysURL,
		)
		if err != nil {
			return nil, err
		}
		callbackOpts = append(
			callbackOpts,
			walletobjects.WithVerifier(walletobjects.NewVerifier(e.config.issuerID, rootKeys)),
		)
	}
	return &walletObjects{
		client: walletobjects.NewClient(
			walletobjects.WithLogger(e.config.logger),
			walletobjects.WithPromRegistry(e.config.promRegistry),
			walletobjects.WithHTTPClient(httpClient),
		),
		signer:    signer,
		throttle:  walletobjects.NewThrottle(e.db, throttleOpts...),
		callbacks: walletobjects.NewCallbackHandler(e.config.issuerID, e.db, callbackOpts...),
	}, nil
}

// Coordinator returns the pass coordinator
func (e *Engine) Coordinator() *coordinator.Coordinator {
	return e.coordinator
}

// EventBus returns the bus that carries loyalty events to the coordinator
func (e *Engine) EventBus() *event.EventBus {
	return e.eventBus
}

// Database returns the database
func (e *Engine) Database() *database.Database {
	return e.db
}

// Certificates returns the certificate manager
func (e *Engine) Certificates() *certmanager.Manager {
	return e.certs
}

// Handler returns the web service router
func (e *Engine) Handler() http.Handler {
	return e.webService.Handler()
}

func (e *Engine) Stop() error {
	var err error
	e.shutdownOnce.Do(func() {
		err = e.shutdown()
	})
	return err
}

func (e *Engine) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if e.config.shutdownTimeout > 0 {
		shutdownTimeout = e.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	e.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	e.config.logger.Debug("shutdown phase 1: stopping new work")

	if e.webService != nil {
		if stopErr := e.webService.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("web service shutdown: %w", stopErr))
		}
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.maintenanceWg.Wait()

	// Phase 2: Drain in-flight syncs
	e.config.logger.Debug("shutdown phase 2: draining syncs")

	if e.coordinator != nil {
		e.coordinator.Stop()
	}
	if e.eventBus != nil {
		e.eventBus.Stop()
	}

	// Phase 3: Close database
	e.config.logger.Debug("shutdown phase 3: closing database")

	if e.db != nil {
		if closeErr := e.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 4: Cleanup resources
	e.config.logger.Debug("shutdown phase 4: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range e.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	e.shutdownFuncs = nil

	e.config.logger.Debug("graceful shutdown complete")
	close(e.done)
	return err
}
