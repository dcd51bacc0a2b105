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

// Package webservice serves the device web service protocol of the passkit
// platform and the save/delete callbacks of the walletobjects platform.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/walletobjects"
)

const (
	DefaultHost       = "0.0.0.0"
	DefaultPort       = 8080
	DefaultAssetsPath = "/assets"
	maxBodySize       = 1 << 20
)

// Store is the persistence used by the device web service
type Store interface {
	GetCustomer(ctx context.Context, id string) (*loyalty.Customer, error)
	UpsertRegistration(ctx context.Context, reg *models.WalletRegistration) (bool, error)
	DeleteRegistration(
		ctx context.Context,
		customerID string,
		platform loyalty.Platform,
		deviceID string,
	) (bool, error)
	UpdatedSerialsForDevice(
		ctx context.Context,
		deviceID string,
		passTypeIdentifier string,
		since time.Time,
	) ([]string, time.Time, error)
}

type PassGenerator interface {
	GeneratePass(ctx context.Context, customerID string) ([]byte, error)
}

type CertificateResolver interface {
	Resolve(ctx context.Context, businessID string) (*certmanager.SigningMaterial, error)
}

type CallbackReceiver interface {
	HandleEnvelope(ctx context.Context, env *walletobjects.Envelope) (bool, error)
}

type WebService struct {
	config  WebServiceConfig
	metrics *webServiceMetrics
	server  *http.Server
}

type WebServiceConfig struct {
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Store        Store
	Passes       PassGenerator
	// Certificates, when set, restricts requests to the pass type
	// identifier of the customer's business
	Certificates    CertificateResolver
	Callbacks       CallbackReceiver
	Assets          http.Handler
	AssetsPath      string
	Host            string
	Port            uint
	TlsCertFilePath string
	TlsKeyFilePath  string
}

func NewWebService(cfg WebServiceConfig) *WebService {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "webservice")
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.AssetsPath == "" {
		cfg.AssetsPath = DefaultAssetsPath
	}
	return &WebService{
		config:  cfg,
		metrics: newWebServiceMetrics(cfg.PromRegistry),
	}
}

// Handler returns the router with every endpoint mounted
func (w *WebService) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(w.observe)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	if w.config.Store != nil {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/devices/{device}/registrations/{passType}", func(r chi.Router) {
				r.Get("/", w.listUpdatedSerials)
				r.Post("/{serial}", w.registerDevice)
				r.Delete("/{serial}", w.unregisterDevice)
			})
			r.Get("/passes/{passType}/{serial}", w.downloadPass)
			r.Post("/log", w.deviceLog)
		})
	}
	if w.config.Callbacks != nil {
		r.Post("/callbacks/walletobjects", w.walletObjectsCallback)
	}
	if w.config.Assets != nil {
		r.Handle(
			w.config.AssetsPath+"/*",
			http.StripPrefix(w.config.AssetsPath+"/", w.config.Assets),
		)
	}
	return r
}

// Start binds the listener and serves in the background
func (w *WebService) Start() error {
	addr := net.JoinHostPort(
		w.config.Host,
		strconv.FormatUint(uint64(w.config.Port), 10),
	)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	useTLS := w.config.TlsCertFilePath != "" && w.config.TlsKeyFilePath != ""
	handler := w.Handler()
	if !useTLS {
		// Use h2c so we can serve HTTP/2 without TLS
		handler = h2c.NewHandler(handler, &http2.Server{})
	}
	w.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}
	w.config.Logger.Info(
		"starting web service listener on "+listener.Addr().String(),
		"tls", useTLS,
	)
	go func() {
		var err error
		if useTLS {
			err = w.server.ServeTLS(
				listener,
				w.config.TlsCertFilePath,
				w.config.TlsKeyFilePath,
			)
		} else {
			err = w.server.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.config.Logger.Error(
				"web service listener failed",
				"error", err,
			)
		}
	}()
	return nil
}

// Stop waits for in-flight requests until ctx is done
func (w *WebService) Stop(ctx context.Context) error {
	if w.server == nil {
		return nil
	}
	return w.server.Shutdown(ctx)
}
