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

package walletobjects_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/database"
	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/walletobjects"
)

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func saveCallback(nonce string, event string) *walletobjects.Callback {
	return &walletobjects.Callback{
		ClassID:   testIssuer + ".b1",
		ObjectID:  testIssuer + ".c1",
		EventType: event,
		Nonce:     nonce,
	}
}

func TestCallbackSaveAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	h := walletobjects.NewCallbackHandler(
		testIssuer,
		db,
		walletobjects.WithCallbackPromRegistry(prometheus.NewRegistry()),
	)

	processed, err := h.Handle(ctx, saveCallback("n1", walletobjects.EventSave))
	require.NoError(t, err)
	assert.True(t, processed)
	regs, err := db.RegistrationsForCustomer(ctx, "c1", loyalty.PlatformWalletObjects)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, testIssuer+".c1", regs[0].DeviceID)
	assert.Equal(t, "b1", regs[0].BusinessID)

	// Redelivery of the same nonce is a no-op
	processed, err = h.Handle(ctx, saveCallback("n1", walletobjects.EventSave))
	require.NoError(t, err)
	assert.False(t, processed)

	processed, err = h.Handle(ctx, saveCallback("n2", walletobjects.EventDelete))
	require.NoError(t, err)
	assert.True(t, processed)
	regs, err = db.RegistrationsForCustomer(ctx, "c1", loyalty.PlatformWalletObjects)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestCallbackRejectsForeignIDs(t *testing.T) {
	db := newTestDB(t)
	h := walletobjects.NewCallbackHandler(testIssuer, db)
	cb := saveCallback("n1", walletobjects.EventSave)
	cb.ObjectID = "42.c1"
	_, err := h.Handle(context.Background(), cb)
	require.ErrorIs(t, err, walletobjects.ErrInvalidCallback)

	_, err = h.Handle(context.Background(), saveCallback("", walletobjects.EventSave))
	require.ErrorIs(t, err, walletobjects.ErrInvalidCallback)
}

// failingStore fails registration writes after recording nonces
type failingStore struct {
	*database.Database
}

func (s failingStore) UpsertRegistration(
	context.Context,
	*models.WalletRegistration,
) (bool, error) {
	return false, errors.New("write failed")
}

func TestCallbackFailureAllowsRedelivery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	failing := walletobjects.NewCallbackHandler(testIssuer, failingStore{db})
	_, err := failing.Handle(ctx, saveCallback("n1", walletobjects.EventSave))
	require.Error(t, err)

	h := walletobjects.NewCallbackHandler(testIssuer, db)
	processed, err := h.Handle(ctx, saveCallback("n1", walletobjects.EventSave))
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestHandleEnvelopeRequiresVerifier(t *testing.T) {
	db := newTestDB(t)
	env := &walletobjects.Envelope{
		ProtocolVersion: walletobjects.ProtocolECv2SigningOnly,
		SignedMessage: `{"classId":"` + testIssuer + `.b1","objectId":"` + testIssuer +
			`.c1","eventType":"save","nonce":"n1"}`,
	}
	_, err := walletobjects.NewCallbackHandler(testIssuer, db).HandleEnvelope(context.Background(), env)
	require.Error(t, err)

	insecure := walletobjects.NewCallbackHandler(testIssuer, db, walletobjects.WithInsecureSkipVerify())
	processed, err := insecure.HandleEnvelope(context.Background(), env)
	require.NoError(t, err)
	assert.True(t, processed)

	verifying := walletobjects.NewCallbackHandler(
		testIssuer,
		db,
		walletobjects.WithVerifier(walletobjects.NewVerifier(testIssuer, nil)),
	)
	_, err = verifying.HandleEnvelope(context.Background(), env)
	require.ErrorIs(t, err, walletobjects.ErrInvalidCallback)
}

func TestThrottle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	throttle := walletobjects.NewThrottle(db)
	objectID := testIssuer + ".c1"

	// Routine updates use limit-1 slots
	require.NoError(t, throttle.Decide(ctx, objectID, 0, 1, 10))
	require.NoError(t, throttle.Decide(ctx, objectID, 1, 2, 10))
	require.ErrorIs(t, throttle.Decide(ctx, objectID, 2, 3, 10), walletobjects.ErrThrottled)
	// The reserved slot goes to the reward
	require.NoError(t, throttle.Decide(ctx, objectID, 9, 10, 10))
	// Priority transitions are never throttled
	require.NoError(t, throttle.Decide(ctx, objectID, 10, 0, 10))
	require.ErrorIs(t, throttle.Decide(ctx, objectID, 0, 1, 10), walletobjects.ErrThrottled)

	sent, err := db.NotificationsSince(ctx, objectID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), sent)

	// Other objects have their own window
	require.NoError(t, throttle.Decide(ctx, testIssuer+".c2", 0, 1, 10))
}

func TestThrottleWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	throttle := walletobjects.NewThrottle(
		db,
		walletobjects.WithNotificationLimit(2),
		walletobjects.WithNotificationWindow(50*time.Millisecond),
	)
	objectID := testIssuer + ".c1"
	require.NoError(t, throttle.Decide(ctx, objectID, 0, 1, 10))
	require.ErrorIs(t, throttle.Decide(ctx, objectID, 1, 2, 10), walletobjects.ErrThrottled)
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, throttle.Decide(ctx, objectID, 1, 2, 10))
}
