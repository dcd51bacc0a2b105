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

// Package coordinator drives both wallet platforms toward the current stamp
// state of a customer or design. Each platform is synced independently: a
// failure, timeout or panic on one never affects the other.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/database"
	"github.com/blinklabs-io/passsync/event"
	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/passkit"
	"github.com/blinklabs-io/passsync/stripimage"
	"github.com/blinklabs-io/passsync/walletobjects"
)

const (
	DefaultSyncTimeout = 30 * time.Second
	DefaultWorkers     = 8
)

var (
	ErrNoDatabase    = errors.New("coordinator requires a database")
	ErrNoIssuer      = errors.New("wallet objects sync requires an issuer id")
	ErrPlatformOff   = errors.New("platform not configured")
	ErrNotActive     = errors.New("design is not active")
	errPlatformPanic = errors.New("platform sync panicked")
)

// CertificateResolver returns the signing identity of a business
type CertificateResolver interface {
	Resolve(ctx context.Context, businessID string) (*certmanager.SigningMaterial, error)
}

type PassAssembler interface {
	Assemble(
		ctx context.Context,
		req passkit.AssembleRequest,
		material *certmanager.SigningMaterial,
	) ([]byte, error)
}

type PushDispatcher interface {
	Dispatch(
		ctx context.Context,
		material *certmanager.SigningMaterial,
		tokens []string,
	) (passkit.Result, error)
}

// WalletClient is the subset of the wallet objects REST API used for sync
type WalletClient interface {
	UpsertClass(ctx context.Context, class *walletobjects.ClassPayload) (bool, error)
	PatchObject(ctx context.Context, object *walletobjects.ObjectPayload) error
	AddMessage(ctx context.Context, objectID string, msg walletobjects.Message) error
}

type SaveSigner interface {
	SaveURL(class *walletobjects.ClassPayload, object *walletobjects.ObjectPayload) (string, error)
}

type NotificationThrottle interface {
	Decide(ctx context.Context, objectID string, prev int, next int, total int) error
}

// Coordinator reacts to loyalty events by syncing both wallet platforms
type Coordinator struct {
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	db           *database.Database
	certs        CertificateResolver
	assembler    PassAssembler
	dispatcher   PushDispatcher
	wallet       WalletClient
	signer       SaveSigner
	throttle     NotificationThrottle
	generator    *stripimage.Generator
	fetcher      passkit.AssetFetcher
	bus          *event.EventBus
	issuerID     string
	publicURL    string
	syncTimeout  time.Duration
	workers      int
	renderers    int
	now          func() time.Time
	metrics      *coordinatorMetrics
	strips       singleflight.Group
	ctx          context.Context
	cancel       context.CancelFunc
	subs         []subscription
	asyncSem     chan struct{}
	asyncWg      sync.WaitGroup
	asyncMutex   sync.Mutex
	stopped      bool
}

type CoordinatorOptionFunc func(*Coordinator)

func WithLogger(logger *slog.Logger) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithPromRegistry(registry prometheus.Registerer) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.promRegistry = registry
	}
}

func WithDatabase(db *database.Database) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.db = db
	}
}

func WithCertificates(certs CertificateResolver) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.certs = certs
	}
}

func WithAssembler(assembler PassAssembler) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.assembler = assembler
	}
}

func WithDispatcher(dispatcher PushDispatcher) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.dispatcher = dispatcher
	}
}

func WithWalletClient(wallet WalletClient) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.wallet = wallet
	}
}

func WithSaveSigner(signer SaveSigner) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.signer = signer
	}
}

func WithThrottle(throttle NotificationThrottle) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.throttle = throttle
	}
}

func WithGenerator(generator *stripimage.Generator) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.generator = generator
	}
}

// WithAssetFetcher sets the loader for custom stamp icons and strip backgrounds
func WithAssetFetcher(fetcher passkit.AssetFetcher) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.fetcher = fetcher
	}
}

// WithEventBus publishes a sync.completed event after every sync
func WithEventBus(bus *event.EventBus) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.bus = bus
	}
}

func WithIssuerID(issuerID string) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.issuerID = issuerID
	}
}

// WithPublicURL sets the externally reachable base URL of the web service
func WithPublicURL(publicURL string) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.publicURL = publicURL
	}
}

// WithSyncTimeout bounds the sync of one platform for one event
func WithSyncTimeout(timeout time.Duration) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.syncTimeout = timeout
	}
}

// WithWorkers bounds concurrent object patches during a design sync
func WithWorkers(workers int) CoordinatorOptionFunc {
	return func(c *Coordinator) {
		c.workers = workers
	}
}

func New(opts ...CoordinatorOptionFunc) (*Coordinator, error) {
	c := &Coordinator{
		syncTimeout: DefaultSyncTimeout,
		workers:     DefaultWorkers,
		renderers:   runtime.GOMAXPROCS(0),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.db == nil {
		return nil, ErrNoDatabase
	}
	if (c.wallet != nil || c.signer != nil) && c.issuerID == "" {
		return nil, ErrNoIssuer
	}
	if c.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.generator == nil {
		c.generator = stripimage.NewGenerator(stripimage.WithLogger(c.logger))
	}
	if c.fetcher == nil {
		c.fetcher = passkit.NewHTTPFetcher(nil)
	}
	if c.workers <= 0 {
		c.workers = DefaultWorkers
	}
	if c.syncTimeout <= 0 {
		c.syncTimeout = DefaultSyncTimeout
	}
	c.metrics = newCoordinatorMetrics(c.promRegistry)
	c.asyncSem = make(chan struct{}, c.workers)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Stop unsubscribes from the event bus, cancels syncs started by events and
// waits for them to return
func (c *Coordinator) Stop() {
	c.unsubscribe()
	c.asyncMutex.Lock()
	c.stopped = true
	c.asyncMutex.Unlock()
	c.cancel()
	c.asyncWg.Wait()
}

func (c *Coordinator) passKitEnabled() bool {
	return c.certs != nil && c.dispatcher != nil
}

func (c *Coordinator) walletEnabled() bool {
	return c.wallet != nil
}

type platformFunc func(ctx context.Context) PlatformResult

// sync runs both platform functions concurrently and isolated from each other
func (c *Coordinator) sync(
	ctx context.Context,
	trigger event.EventType,
	subjectID string,
	passKitFn platformFunc,
	walletFn platformFunc,
) SyncResult {
	var ret SyncResult
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ret.PassKit = c.runPlatform(ctx, trigger, loyalty.PlatformPassKit, passKitFn)
	}()
	go func() {
		defer wg.Done()
		ret.WalletObjects = c.runPlatform(ctx, trigger, loyalty.PlatformWalletObjects, walletFn)
	}()
	wg.Wait()
	c.logger.Info(
		"wallet sync finished",
		"component", "coordinator",
		"trigger", trigger,
		"subject_id", subjectID,
		"passkit", ret.PassKit.Status,
		"walletobjects", ret.WalletObjects.Status,
	)
	if c.bus != nil {
		c.bus.PublishAsync(
			event.SyncCompletedEventType,
			event.NewEvent(
				event.SyncCompletedEventType,
				event.SyncCompletedEvent{
					Trigger:       trigger,
					SubjectID:     subjectID,
					PassKit:       string(ret.PassKit.Status),
					WalletObjects: string(ret.WalletObjects.Status),
				},
			),
		)
	}
	return ret
}

func (c *Coordinator) runPlatform(
	ctx context.Context,
	trigger event.EventType,
	platform loyalty.Platform,
	fn platformFunc,
) (ret PlatformResult) {
	if fn == nil {
		return skipped(ErrPlatformOff)
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.syncTimeout)
	defer func() {
		cancel()
		if r := recover(); r != nil {
			ret = failed(fmt.Errorf("%w: %v", errPlatformPanic, r))
		}
		if ret.Status == StatusFailed {
			c.logger.Error(
				"wallet sync failed",
				"component", "coordinator",
				"trigger", trigger,
				"platform", platform,
				"error", ret.Error,
			)
		}
		c.metrics.record(trigger, platform, ret.Status, time.Since(start))
	}()
	return fn(ctx)
}
