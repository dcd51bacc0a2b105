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

package passkit

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/internal/test/testcert"
)

type fakePushClient struct {
	mutex     sync.Mutex
	delay     time.Duration
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	sent      []*apns2.Notification
}

func (c *fakePushClient) PushWithContext(
	ctx apns2.Context,
	n *apns2.Notification,
) (*apns2.Response, error) {
	cur := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		prev := c.maxFlight.Load()
		if cur <= prev || c.maxFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mutex.Lock()
	c.sent = append(c.sent, n)
	c.mutex.Unlock()
	switch n.DeviceToken {
	case "broken":
		return nil, errors.New("connection reset")
	case "unregistered":
		return &apns2.Response{StatusCode: 410, Reason: apns2.ReasonUnregistered}, nil
	}
	return &apns2.Response{StatusCode: apns2.StatusSent}, nil
}

func fakeFactory(client *fakePushClient, paths *[]string) ClientFactory {
	return func(path string) (PushClient, error) {
		if paths != nil {
			*paths = append(*paths, path)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return client, nil
	}
}

func testSigningMaterial(t *testing.T) *certmanager.SigningMaterial {
	id := testcert.New(t)
	return &certmanager.SigningMaterial{
		PassTypeIdentifier: testcert.PassTypeIdentifier,
		TeamID:             testcert.TeamID,
		SignerCert:         id.CertPEM,
		SignerKey:          id.KeyPEM,
		PushCredential:     id.PushPEM,
	}
}

func TestDispatchCountsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)
	client := &fakePushClient{}
	var paths []string
	reg := prometheus.NewRegistry()
	d := NewDispatcher(
		WithClientFactory(fakeFactory(client, &paths)),
		WithDispatcherPromRegistry(reg),
	)
	result, err := d.Dispatch(
		context.Background(),
		testSigningMaterial(t),
		[]string{"tok-a", "broken", "unregistered", "tok-b"},
	)
	require.NoError(t, err)
	assert.Equal(t, Result{Success: 2, Failed: 2}, result)
	require.Len(t, client.sent, 4)
	for _, n := range client.sent {
		assert.Equal(t, testcert.PassTypeIdentifier, n.Topic)
		assert.JSONEq(t, "{}", string(n.Payload.([]byte)))
	}
	assert.InDelta(t, 2, testutil.ToFloat64(d.pushes.WithLabelValues("sent")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(d.pushes.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(d.pushes.WithLabelValues("rejected")), 0)

	// The credential file only exists while the client loads it
	require.Len(t, paths, 1)
	_, err = os.Stat(paths[0])
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDispatchBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)
	client := &fakePushClient{delay: 10 * time.Millisecond}
	d := NewDispatcher(
		WithClientFactory(fakeFactory(client, nil)),
		WithWorkers(3),
	)
	tokens := make([]string, 20)
	for i := range tokens {
		tokens[i] = "tok"
	}
	result, err := d.Dispatch(context.Background(), testSigningMaterial(t), tokens)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Success)
	assert.LessOrEqual(t, client.maxFlight.Load(), int32(3))
}

func TestDispatchPushTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	client := &fakePushClient{delay: time.Second}
	d := NewDispatcher(
		WithClientFactory(fakeFactory(client, nil)),
		WithPushTimeout(20*time.Millisecond),
	)
	material := testSigningMaterial(t)
	start := time.Now()
	result, err := d.Dispatch(context.Background(), material, []string{"slow"})
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, result)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDispatchWithoutTokens(t *testing.T) {
	d := NewDispatcher(WithClientFactory(func(string) (PushClient, error) {
		t.Fatal("client built without tokens")
		return nil, nil
	}))
	result, err := d.Dispatch(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
}

func TestNewBatchCertificateErrors(t *testing.T) {
	d := NewDispatcher(WithClientFactory(fakeFactory(&fakePushClient{}, nil)))

	_, err := d.NewBatch(nil)
	require.ErrorIs(t, err, ErrCertificate)

	material := testSigningMaterial(t)
	material.PushCredential = nil
	_, err = d.NewBatch(material)
	require.ErrorIs(t, err, ErrCertificate)
	require.ErrorIs(t, err, certmanager.ErrNoPushCredential)

	result, err := d.Dispatch(context.Background(), material, []string{"a", "b"})
	require.ErrorIs(t, err, ErrCertificate)
	assert.Equal(t, Result{Failed: 2}, result)
}

func TestAPNsClientFactory(t *testing.T) {
	material := testSigningMaterial(t)
	err := certmanager.WithPushCredentialFile(material, func(path string) error {
		client, err := APNsClientFactory(false)(path)
		if err != nil {
			return err
		}
		c, ok := client.(*apns2.Client)
		require.True(t, ok)
		assert.Equal(t, apns2.HostDevelopment, c.Host)
		return nil
	})
	require.NoError(t, err)

	_, err = APNsClientFactory(true)(t.TempDir() + "/missing.pem")
	require.Error(t, err)
}
