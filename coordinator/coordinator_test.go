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

package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/coordinator"
	"github.com/blinklabs-io/passsync/database"
	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/event"
	syncutil "github.com/blinklabs-io/passsync/internal/test/testutil"
	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/passkit"
	"github.com/blinklabs-io/passsync/stripimage"
	"github.com/blinklabs-io/passsync/walletobjects"
)

const (
	testIssuer   = "3388000000012345678"
	testPassType = "pass.com.example.loyalty"
	testPublic   = "https://passes.example.com/"
)

type fakeCerts struct {
	err error
}

func (f *fakeCerts) Resolve(_ context.Context, businessID string) (*certmanager.SigningMaterial, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &certmanager.SigningMaterial{
		CertificateID:      "cert-" + businessID,
		PassTypeIdentifier: testPassType,
		TeamID:             "TEAM123456",
	}, nil
}

type fakeDispatcher struct {
	mu     sync.Mutex
	calls  [][]string
	err    error
	panics bool
}

func (f *fakeDispatcher) Dispatch(
	_ context.Context,
	_ *certmanager.SigningMaterial,
	tokens []string,
) (passkit.Result, error) {
	if f.panics {
		panic("push provider exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tokens)
	if f.err != nil {
		return passkit.Result{Failed: len(tokens)}, f.err
	}
	return passkit.Result{Success: len(tokens)}, nil
}

func (f *fakeDispatcher) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

type fakeWallet struct {
	mu       sync.Mutex
	classes  []*walletobjects.ClassPayload
	patched  []*walletobjects.ObjectPayload
	messages []walletobjects.Message
	missing  map[string]bool
	patchErr error
	panics   bool
	block    bool
}

func (f *fakeWallet) UpsertClass(_ context.Context, class *walletobjects.ClassPayload) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes = append(f.classes, class)
	return len(f.classes) == 1, nil
}

func (f *fakeWallet) PatchObject(ctx context.Context, object *walletobjects.ObjectPayload) error {
	if f.panics {
		panic("wallet client exploded")
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return f.patchErr
	}
	if f.missing[object.ID] {
		return walletobjects.ErrNotFound
	}
	f.patched = append(f.patched, object)
	return nil
}

func (f *fakeWallet) AddMessage(_ context.Context, _ string, msg walletobjects.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeWallet) Patched() []*walletobjects.ObjectPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*walletobjects.ObjectPayload(nil), f.patched...)
}

func (f *fakeWallet) Messages() []walletobjects.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]walletobjects.Message(nil), f.messages...)
}

type fakeSigner struct{}

func (fakeSigner) SaveURL(
	class *walletobjects.ClassPayload,
	object *walletobjects.ObjectPayload,
) (string, error) {
	if class == nil || object == nil {
		return "", errors.New("missing payload")
	}
	return walletobjects.SaveURLPrefix + object.ID, nil
}

type fakeAssembler struct{}

func (fakeAssembler) Assemble(
	_ context.Context,
	req passkit.AssembleRequest,
	material *certmanager.SigningMaterial,
) ([]byte, error) {
	return []byte(fmt.Sprintf("%s:%s:%d", material.PassTypeIdentifier, req.CustomerID, req.StampCount)), nil
}

type noFetcher struct{}

func (noFetcher) Fetch(context.Context, string) ([]byte, error) {
	return nil, errors.New("no network in tests")
}

type fixture struct {
	db         *database.Database
	certs      *fakeCerts
	dispatcher *fakeDispatcher
	wallet     *fakeWallet
	registry   *prometheus.Registry
}

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func testDesign(id string) *loyalty.CardDesign {
	return &loyalty.CardDesign{
		ID:          id,
		BusinessID:  "b1",
		Name:        "Coffee Club",
		ProgramName: "Coffee Club",
		RewardText:  "Free coffee",
		TotalStamps: 4,
		Colors: loyalty.Colors{
			Background:  "#3B2F2F",
			Foreground:  "#FFFFFF",
			Label:       "#F5DEB3",
			StampFilled: "#D2691E",
			StampEmpty:  "#5C4033",
			Accent:      "#FFD700",
		},
		StampIcon:  "coffee",
		RewardIcon: "gift",
		IsActive:   true,
	}
}

func seed(t *testing.T, db *database.Database) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.SaveBusiness(ctx, &loyalty.Business{ID: "b1", Name: "Beans"}))
	require.NoError(t, db.SaveDesign(ctx, testDesign("d1")))
	for _, id := range []string{"c1", "c2"} {
		require.NoError(t, db.SaveCustomer(ctx, &loyalty.Customer{
			ID:         id,
			BusinessID: "b1",
			Name:       "Customer " + id,
			StampCount: 2,
			AuthToken:  "tok-" + id,
		}))
	}
}

func setStamps(t *testing.T, db *database.Database, customerID string, count int) {
	t.Helper()
	ctx := context.Background()
	customer, err := db.GetCustomer(ctx, customerID)
	require.NoError(t, err)
	customer.StampCount = count
	require.NoError(t, db.SaveCustomer(ctx, customer))
}

func register(
	t *testing.T,
	db *database.Database,
	customerID string,
	platform loyalty.Platform,
	deviceID string,
	token string,
	passType string,
) {
	t.Helper()
	_, err := db.UpsertRegistration(context.Background(), &models.WalletRegistration{
		CustomerID:         customerID,
		Platform:           string(platform),
		DeviceID:           deviceID,
		BusinessID:         "b1",
		PassTypeIdentifier: passType,
		PushToken:          token,
	})
	require.NoError(t, err)
}

func newFixture(
	t *testing.T,
	opts ...coordinator.CoordinatorOptionFunc,
) (*fixture, *coordinator.Coordinator) {
	t.Helper()
	return newFixtureWithDB(t, newTestDB(t), opts...)
}

func newFixtureWithDB(
	t *testing.T,
	db *database.Database,
	opts ...coordinator.CoordinatorOptionFunc,
) (*fixture, *coordinator.Coordinator) {
	t.Helper()
	f := &fixture{
		db:         db,
		certs:      &fakeCerts{},
		dispatcher: &fakeDispatcher{},
		wallet:     &fakeWallet{missing: map[string]bool{}},
		registry:   prometheus.NewRegistry(),
	}
	seed(t, f.db)
	base := []coordinator.CoordinatorOptionFunc{
		coordinator.WithDatabase(f.db),
		coordinator.WithPromRegistry(f.registry),
		coordinator.WithCertificates(f.certs),
		coordinator.WithDispatcher(f.dispatcher),
		coordinator.WithAssembler(fakeAssembler{}),
		coordinator.WithWalletClient(f.wallet),
		coordinator.WithSaveSigner(fakeSigner{}),
		coordinator.WithThrottle(walletobjects.NewThrottle(f.db)),
		coordinator.WithAssetFetcher(noFetcher{}),
		coordinator.WithIssuerID(testIssuer),
		coordinator.WithPublicURL(testPublic),
	}
	c, err := coordinator.New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return f, c
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := coordinator.New()
	require.ErrorIs(t, err, coordinator.ErrNoDatabase)
	_, err = coordinator.New(
		coordinator.WithDatabase(newTestDB(t)),
		coordinator.WithSaveSigner(fakeSigner{}),
	)
	require.ErrorIs(t, err, coordinator.ErrNoIssuer)
}

func TestOnCustomerCreated(t *testing.T) {
	f, c := newFixture(t)
	urls, err := c.OnCustomerCreated(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, coordinator.StatusOK, urls.Result.PassKit.Status)
	assert.Equal(t, coordinator.StatusOK, urls.Result.WalletObjects.Status)
	assert.Equal(
		t,
		"https://passes.example.com/v1/passes/"+testPassType+"/c1?token=tok-c1",
		urls.PassKit,
	)
	assert.Equal(t, walletobjects.SaveURLPrefix+testIssuer+".c1", urls.WalletObjects)
	assert.Empty(t, f.dispatcher.Calls(), "a new customer has no device to notify")

	// Every count of every resolution plus the placeholder logo
	records, err := f.db.StripImages(context.Background(), "d1")
	require.NoError(t, err)
	resolutions := 0
	for _, sizes := range stripimage.PlatformSizes {
		resolutions += len(sizes)
	}
	assert.Len(t, records, resolutions*5+1)
}

func TestGetWalletUrlsIsolatesPlatforms(t *testing.T) {
	f, c := newFixture(t)
	f.certs.err = certmanager.ErrPoolExhausted
	urls, err := c.GetWalletUrls(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, urls.PassKit)
	assert.Equal(t, coordinator.StatusFailed, urls.Result.PassKit.Status)
	assert.Contains(t, urls.Result.PassKit.Error, "pool exhausted")
	assert.Equal(t, coordinator.StatusOK, urls.Result.WalletObjects.Status)
	assert.NotEmpty(t, urls.WalletObjects)

	_, err = c.GetWalletUrls(context.Background(), "missing")
	require.ErrorIs(t, err, loyalty.ErrCustomerNotFound)
}

func TestOnStampMutatedWithoutRegistrations(t *testing.T) {
	f, c := newFixture(t)
	setStamps(t, f.db, "c1", 3)
	result := c.OnStampMutated(context.Background(), "c1", 2)
	assert.Equal(t, coordinator.StatusSkipped, result.PassKit.Status)
	assert.Empty(t, f.dispatcher.Calls())
	require.Equal(t, coordinator.StatusOK, result.WalletObjects.Status)
	patched := f.wallet.Patched()
	require.Len(t, patched, 1)
	assert.Equal(t, testIssuer+".c1", patched[0].ID)
	assert.Equal(t, "3 / 4", patched[0].LoyaltyPoints.Balance.String)
	require.NotNil(t, patched[0].HeroImage)
	assert.Contains(t, patched[0].HeroImage.SourceURI.URI, "walletobjects-hero-3.png")
	require.Len(t, f.wallet.Messages(), 1)
	assert.Equal(t, "You have 3 of 4 stamps", f.wallet.Messages()[0].Body)
}

func TestOnStampMutatedNotifiesRegisteredDevices(t *testing.T) {
	f, c := newFixture(t)
	register(t, f.db, "c1", loyalty.PlatformPassKit, "phone", "t1", testPassType)
	register(t, f.db, "c1", loyalty.PlatformPassKit, "watch", "t2", testPassType)
	register(t, f.db, "c1", loyalty.PlatformPassKit, "old", "t3", "pass.com.example.retired")
	setStamps(t, f.db, "c1", 3)
	result := c.OnStampMutated(context.Background(), "c1", 2)
	require.Equal(t, coordinator.StatusOK, result.PassKit.Status, result.PassKit.Error)
	assert.Equal(t, 2, result.PassKit.Notified)
	assert.Equal(t, 1, result.PassKit.Failed)
	calls := f.dispatcher.Calls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []string{"t1", "t2"}, calls[0])
}

func TestOnStampMutatedNeverSavedObject(t *testing.T) {
	f, c := newFixture(t)
	f.wallet.missing[testIssuer+".c1"] = true
	setStamps(t, f.db, "c1", 3)
	result := c.OnStampMutated(context.Background(), "c1", 2)
	assert.Equal(t, coordinator.StatusSkipped, result.WalletObjects.Status)
	assert.Empty(t, result.WalletObjects.Error)
	assert.Empty(t, f.wallet.Messages())
}

func TestPlatformFaultIsolation(t *testing.T) {
	t.Run("wallet panic", func(t *testing.T) {
		f, c := newFixture(t)
		register(t, f.db, "c1", loyalty.PlatformPassKit, "phone", "t1", testPassType)
		f.wallet.panics = true
		result := c.OnStampMutated(context.Background(), "c1", 1)
		assert.Equal(t, coordinator.StatusFailed, result.WalletObjects.Status)
		assert.Contains(t, result.WalletObjects.Error, "wallet client exploded")
		assert.Equal(t, coordinator.StatusOK, result.PassKit.Status)
		assert.Equal(t, 1, result.PassKit.Notified)
	})
	t.Run("push panic", func(t *testing.T) {
		f, c := newFixture(t)
		register(t, f.db, "c1", loyalty.PlatformPassKit, "phone", "t1", testPassType)
		f.dispatcher.panics = true
		result := c.OnStampMutated(context.Background(), "c1", 1)
		assert.Equal(t, coordinator.StatusFailed, result.PassKit.Status)
		assert.Equal(t, coordinator.StatusOK, result.WalletObjects.Status)
		assert.Len(t, f.wallet.Patched(), 1)
	})
	t.Run("push error", func(t *testing.T) {
		f, c := newFixture(t)
		register(t, f.db, "c1", loyalty.PlatformPassKit, "phone", "t1", testPassType)
		f.dispatcher.err = &passkit.CertificateError{Err: errors.New("expired")}
		result := c.OnStampMutated(context.Background(), "c1", 1)
		assert.Equal(t, coordinator.StatusFailed, result.PassKit.Status)
		assert.Equal(t, 1, result.PassKit.Failed)
		assert.Equal(t, coordinator.StatusOK, result.WalletObjects.Status)
	})
}

func TestSyncTimeoutIsPerPlatform(t *testing.T) {
	f, c := newFixture(t, coordinator.WithSyncTimeout(100*time.Millisecond))
	register(t, f.db, "c1", loyalty.PlatformPassKit, "phone", "t1", testPassType)
	// Render the image matrix up front so the timeout only covers the sync
	design, err := f.db.GetDesign(context.Background(), "d1")
	require.NoError(t, err)
	require.NoError(t, c.EnsureStripImages(context.Background(), design))
	f.wallet.block = true
	result := c.OnStampMutated(context.Background(), "c1", 1)
	assert.Equal(t, coordinator.StatusFailed, result.WalletObjects.Status)
	assert.Contains(t, result.WalletObjects.Error, context.DeadlineExceeded.Error())
	assert.Equal(t, coordinator.StatusOK, result.PassKit.Status)
}

func TestStampNotificationsAreThrottled(t *testing.T) {
	f, c := newFixture(t)
	steps := []struct {
		prev   int
		next   int
		status coordinator.Status
	}{
		{0, 1, coordinator.StatusOK},
		{1, 2, coordinator.StatusOK},
		// The last slot of the window is kept for the reward
		{2, 3, coordinator.StatusThrottled},
		{3, 4, coordinator.StatusOK},
	}
	for _, step := range steps {
		setStamps(t, f.db, "c1", step.next)
		result := c.OnStampMutated(context.Background(), "c1", step.prev)
		assert.Equal(
			t,
			step.status,
			result.WalletObjects.Status,
			"transition %d -> %d", step.prev, step.next,
		)
	}
	// The object is patched even when the message is throttled
	assert.Len(t, f.wallet.Patched(), 4)
	messages := f.wallet.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, "Free coffee is ready to redeem", messages[2].Body)
}

func TestOnDesignUpdated(t *testing.T) {
	f, c := newFixture(t)
	ctx := context.Background()
	register(t, f.db, "c1", loyalty.PlatformPassKit, "phone", "t1", testPassType)
	register(t, f.db, "c2", loyalty.PlatformPassKit, "tablet", "t2", testPassType)
	register(t, f.db, "c1", loyalty.PlatformWalletObjects, testIssuer+".c1", "", "")
	register(t, f.db, "c2", loyalty.PlatformWalletObjects, testIssuer+".c2", "", "")
	f.wallet.missing[testIssuer+".c2"] = true

	result := c.OnDesignUpdated(ctx, "d1")
	require.Equal(t, coordinator.StatusOK, result.PassKit.Status, result.PassKit.Error)
	assert.Equal(t, 2, result.PassKit.Notified)
	require.Equal(t, coordinator.StatusOK, result.WalletObjects.Status, result.WalletObjects.Error)
	assert.Equal(t, 1, result.WalletObjects.Notified)
	assert.Zero(t, result.WalletObjects.Failed)
	require.Len(t, f.wallet.classes, 1)
	assert.Equal(t, testIssuer+".b1", f.wallet.classes[0].ID)
	assert.Contains(t, f.wallet.classes[0].ProgramLogo.SourceURI.URI, "walletobjects-logo-0.png")

	// The removed object no longer counts as saved
	regs, err := f.db.RegistrationsForBusiness(ctx, "b1", loyalty.PlatformWalletObjects)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "c1", regs[0].CustomerID)

	// A visual change replaces the whole image set
	before, err := f.db.StripImages(ctx, "d1")
	require.NoError(t, err)
	design := testDesign("d1")
	design.Colors.StampFilled = "#00AA00"
	require.NoError(t, f.db.SaveDesign(ctx, design))
	c.OnDesignUpdated(ctx, "d1")
	after, err := f.db.StripImages(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range after {
		assert.NotEqual(t, before[i].AssetKey, after[i].AssetKey)
		assert.Equal(t, design.VisualHash(), after[i].VisualHash)
	}
	_, err = f.db.Assets().Get(ctx, before[0].AssetKey)
	assert.Error(t, err, "assets of the replaced set are deleted")
}

func TestOnDesignUpdatedStripFailureOnlyFailsWalletObjects(t *testing.T) {
	dir := t.TempDir()
	db, err := database.New(&database.Config{DataDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	// A regular file where the strip directory belongs breaks every upload
	assetDir := filepath.Join(dir, "assets")
	require.NoError(t, os.MkdirAll(assetDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "strips"), []byte("x"), 0o600))
	f, c := newFixtureWithDB(t, db)
	ctx := context.Background()
	register(t, f.db, "c1", loyalty.PlatformPassKit, "phone", "t1", testPassType)
	register(t, f.db, "c1", loyalty.PlatformWalletObjects, testIssuer+".c1", "", "")

	result := c.OnDesignUpdated(ctx, "d1")
	require.Equal(t, coordinator.StatusOK, result.PassKit.Status, result.PassKit.Error)
	assert.Equal(t, 1, result.PassKit.Notified)
	assert.Len(t, f.dispatcher.Calls(), 1)
	assert.Equal(t, coordinator.StatusFailed, result.WalletObjects.Status)
	assert.Contains(t, result.WalletObjects.Error, "render strip images")
	assert.Empty(t, f.wallet.classes)
}

func TestOnDesignActivated(t *testing.T) {
	f, c := newFixture(t)
	ctx := context.Background()
	inactive := testDesign("d2")
	inactive.IsActive = false
	inactive.TotalStamps = 6
	require.NoError(t, f.db.SaveDesign(ctx, inactive))
	register(t, f.db, "c1", loyalty.PlatformPassKit, "phone", "t1", testPassType)

	result := c.OnDesignUpdated(ctx, "d2")
	assert.Equal(t, coordinator.StatusSkipped, result.PassKit.Status)
	assert.Equal(t, coordinator.ErrNotActive.Error(), result.WalletObjects.Error)
	assert.Empty(t, f.dispatcher.Calls())
	current, err := f.db.StripImagesCurrent(ctx, inactive)
	require.NoError(t, err)
	assert.True(t, current, "inactive designs are rendered ahead of activation")

	_, err = f.db.ActivateDesign(ctx, "d2")
	require.NoError(t, err)
	result = c.OnDesignActivated(ctx, "d2")
	assert.Equal(t, coordinator.StatusOK, result.PassKit.Status)
	assert.Equal(t, coordinator.StatusOK, result.WalletObjects.Status)
	require.Len(t, f.dispatcher.Calls(), 1)

	result = c.OnDesignActivated(ctx, "missing")
	assert.Equal(t, coordinator.StatusFailed, result.PassKit.Status)
	assert.Equal(t, coordinator.StatusFailed, result.WalletObjects.Status)
}

func TestGeneratePass(t *testing.T) {
	f, c := newFixture(t)
	data, err := c.GeneratePass(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, testPassType+":c1:2", string(data))

	f.certs.err = certmanager.ErrFallbackForbidden
	_, err = c.GeneratePass(context.Background(), "c1")
	require.ErrorIs(t, err, certmanager.ErrFallbackForbidden)

	bare, err := coordinator.New(
		coordinator.WithDatabase(f.db),
		coordinator.WithAssetFetcher(noFetcher{}),
	)
	require.NoError(t, err)
	defer bare.Stop()
	_, err = bare.GeneratePass(context.Background(), "c1")
	require.ErrorIs(t, err, coordinator.ErrPlatformOff)
	result := bare.OnStampMutated(context.Background(), "c1", 1)
	assert.Equal(t, coordinator.StatusSkipped, result.PassKit.Status)
	assert.Equal(t, coordinator.StatusSkipped, result.WalletObjects.Status)
}

func TestSyncMetrics(t *testing.T) {
	f, c := newFixture(t)
	c.OnStampMutated(context.Background(), "c1", 1)
	expected := `
# HELP passsync_sync_total platform syncs by trigger, platform and status
# TYPE passsync_sync_total counter
passsync_sync_total{platform="passkit",status="skipped",trigger="loyalty.stamp.mutated"} 1
passsync_sync_total{platform="walletobjects",status="ok",trigger="loyalty.stamp.mutated"} 1
`
	require.NoError(
		t,
		testutil.GatherAndCompare(f.registry, strings.NewReader(expected), "passsync_sync_total"),
	)
}

func TestSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	f, c := newFixture(t)
	bus := event.NewEventBus(nil, nil)
	done := make(chan event.SyncCompletedEvent, 1)
	bus.SubscribeFunc(event.SyncCompletedEventType, func(evt event.Event) {
		done <- evt.Data.(event.SyncCompletedEvent)
	})
	c2, err := coordinator.New(
		coordinator.WithDatabase(f.db),
		coordinator.WithAssetFetcher(noFetcher{}),
		coordinator.WithWalletClient(f.wallet),
		coordinator.WithIssuerID(testIssuer),
		coordinator.WithEventBus(bus),
	)
	require.NoError(t, err)
	c2.Subscribe(bus)
	setStamps(t, f.db, "c1", 3)
	bus.Publish(
		event.StampMutatedEventType,
		event.NewEvent(
			event.StampMutatedEventType,
			event.StampMutatedEvent{CustomerID: "c1", PreviousCount: 2},
		),
	)
	completed := syncutil.RequireReceive(t, done, 10*time.Second, "sync did not complete")
	assert.Equal(t, event.StampMutatedEventType, completed.Trigger)
	assert.Equal(t, "c1", completed.SubjectID)
	assert.Equal(t, string(coordinator.StatusSkipped), completed.PassKit)
	assert.Equal(t, string(coordinator.StatusOK), completed.WalletObjects)
	c2.Stop()
	c.Stop()
	bus.Stop()
	require.NoError(t, f.db.Close())
}
