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

package webservice_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/database"
	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/walletobjects"
	"github.com/blinklabs-io/passsync/webservice"
)

const (
	testPassType = "pass.com.example.loyalty"
	testToken    = "tok-c1"
)

type fakePasses struct {
	err error
}

func (f *fakePasses) GeneratePass(_ context.Context, customerID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("pkpass:" + customerID), nil
}

type fakeCerts struct{}

func (fakeCerts) Resolve(_ context.Context, businessID string) (*certmanager.SigningMaterial, error) {
	return &certmanager.SigningMaterial{
		CertificateID:      "cert-" + businessID,
		PassTypeIdentifier: testPassType,
	}, nil
}

type fakeCallbacks struct {
	first bool
	err   error
	calls int
}

func (f *fakeCallbacks) HandleEnvelope(_ context.Context, _ *walletobjects.Envelope) (bool, error) {
	f.calls++
	return f.first, f.err
}

type fixture struct {
	db        *database.Database
	callbacks *fakeCallbacks
	registry  *prometheus.Registry
	server    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.New(&database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	require.NoError(t, db.SaveBusiness(ctx, &loyalty.Business{ID: "b1", Name: "Beans"}))
	require.NoError(t, db.SaveCustomer(ctx, &loyalty.Customer{
		ID:         "c1",
		BusinessID: "b1",
		Name:       "Ada",
		StampCount: 2,
		AuthToken:  testToken,
	}))
	f := &fixture{
		db:        db,
		callbacks: &fakeCallbacks{first: true},
		registry:  prometheus.NewRegistry(),
	}
	ws := webservice.NewWebService(webservice.WebServiceConfig{
		PromRegistry: f.registry,
		Store:        db,
		Passes:       &fakePasses{},
		Certificates: fakeCerts{},
		Callbacks:    f.callbacks,
		Assets: http.FileServerFS(fstest.MapFS{
			"strips/d1/strip.png": &fstest.MapFile{Data: []byte("png")},
		}),
	})
	f.server = httptest.NewServer(ws.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) do(
	t *testing.T,
	method string,
	path string,
	auth string,
	body string,
) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(
		context.Background(),
		method,
		f.server.URL+path,
		strings.NewReader(body),
	)
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", "ApplePass "+auth)
	}
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func registrationPath(device string, serial string) string {
	return fmt.Sprintf("/v1/devices/%s/registrations/%s/%s", device, testPassType, serial)
}

func TestRegisterDevice(t *testing.T) {
	f := newFixture(t)
	body := `{"pushToken":"push-1"}`

	resp := f.do(t, http.MethodPost, registrationPath("device-1", "c1"), testToken, body)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodPost, registrationPath("device-1", "c1"), testToken, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "repeat registration")

	regs, err := f.db.RegistrationsForCustomer(context.Background(), "c1", loyalty.PlatformPassKit)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "push-1", regs[0].PushToken)
	assert.Equal(t, "b1", regs[0].BusinessID)
	assert.Equal(t, testPassType, regs[0].PassTypeIdentifier)
}

func TestRegisterDeviceRejects(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		path   string
		auth   string
		body   string
		status int
	}{
		{
			name:   "missing token",
			path:   registrationPath("device-1", "c1"),
			body:   `{"pushToken":"push-1"}`,
			status: http.StatusUnauthorized,
		},
		{
			name:   "wrong token",
			path:   registrationPath("device-1", "c1"),
			auth:   "tok-other",
			body:   `{"pushToken":"push-1"}`,
			status: http.StatusUnauthorized,
		},
		{
			name:   "unknown serial",
			path:   registrationPath("device-1", "nobody"),
			auth:   testToken,
			body:   `{"pushToken":"push-1"}`,
			status: http.StatusUnauthorized,
		},
		{
			name:   "foreign pass type",
			path:   "/v1/devices/device-1/registrations/pass.com.other/c1",
			auth:   testToken,
			body:   `{"pushToken":"push-1"}`,
			status: http.StatusNotFound,
		},
		{
			name:   "missing push token",
			path:   registrationPath("device-1", "c1"),
			auth:   testToken,
			body:   `{}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed body",
			path:   registrationPath("device-1", "c1"),
			auth:   testToken,
			body:   `{"pushToken":`,
			status: http.StatusBadRequest,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, tc.path, tc.auth, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
	regs, err := f.db.RegistrationsForCustomer(context.Background(), "c1", loyalty.PlatformPassKit)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestUnregisterDevice(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, registrationPath("device-1", "c1"), testToken, `{"pushToken":"push-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, registrationPath("device-1", "c1"), "tok-other", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, registrationPath("device-1", "c1"), testToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	regs, err := f.db.RegistrationsForCustomer(context.Background(), "c1", loyalty.PlatformPassKit)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestListUpdatedSerials(t *testing.T) {
	f := newFixture(t)
	listPath := "/v1/devices/device-1/registrations/" + testPassType

	resp := f.do(t, http.MethodGet, listPath, "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "nothing registered")

	resp = f.do(t, http.MethodPost, registrationPath("device-1", "c1"), testToken, `{"pushToken":"push-1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, query := range []string{"", "?passesUpdatedSince=garbage", "?passesUpdatedSince=2000-01-01T00:00:00Z"} {
		resp = f.do(t, http.MethodGet, listPath+query, "", "")
		require.Equal(t, http.StatusOK, resp.StatusCode, query)
		var body struct {
			SerialNumbers []string `json:"serialNumbers"`
			LastUpdated   string   `json:"lastUpdated"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []string{"c1"}, body.SerialNumbers, query)
		assert.NotEmpty(t, body.LastUpdated, query)
	}

	resp = f.do(t, http.MethodGet, "/v1/devices/device-2/registrations/"+testPassType, "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "other device")
}

func TestDownloadPass(t *testing.T) {
	f := newFixture(t)
	passPath := "/v1/passes/" + testPassType + "/c1"

	resp := f.do(t, http.MethodGet, passPath+"?token="+testToken, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.apple.pkpass", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))

	resp = f.do(t, http.MethodGet, passPath, testToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "header token")

	resp = f.do(t, http.MethodGet, passPath+"?token=wrong", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDeviceLog(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/v1/log", "", `{"logs":["push failed"]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/v1/log", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWalletObjectsCallback(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		first  bool
		err    error
		status int
	}{
		{name: "processed", body: `{"signedMessage":"{}"}`, first: true, status: http.StatusOK},
		{name: "duplicate", body: `{"signedMessage":"{}"}`, status: http.StatusOK},
		{
			name:   "invalid",
			body:   `{"signedMessage":"{}"}`,
			err:    fmt.Errorf("%w: bad signature", walletobjects.ErrInvalidCallback),
			status: http.StatusBadRequest,
		},
		{
			name:   "store failure",
			body:   `{"signedMessage":"{}"}`,
			err:    errors.New("database is locked"),
			status: http.StatusInternalServerError,
		},
		{name: "malformed", body: `{`, status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.callbacks.first = tc.first
			f.callbacks.err = tc.err
			resp := f.do(t, http.MethodPost, "/callbacks/walletobjects", "", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestAssetsAndHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/assets/strips/d1/strip.png", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/assets/strips/missing.png", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestMetrics(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/healthz", "", "")
	f.do(t, http.MethodGet, "/healthz", "", "")
	f.do(t, http.MethodPost, registrationPath("device-1", "c1"), "", `{}`)

	expected := `
# HELP passsync_http_requests_total web service requests by route and status code
# TYPE passsync_http_requests_total counter
passsync_http_requests_total{code="200",method="GET",route="/healthz"} 2
passsync_http_requests_total{code="401",method="POST",route="/v1/devices/{device}/registrations/{passType}/{serial}"} 1
`
	require.NoError(t, testutil.GatherAndCompare(
		f.registry,
		strings.NewReader(expected),
		"passsync_http_requests_total",
	))
}
