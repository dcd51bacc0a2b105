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
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"golang.org/x/sync/errgroup"

	"github.com/blinklabs-io/passsync/certmanager"
)

const (
	DefaultPushWorkers = 16
	DefaultPushTimeout = 10 * time.Second
)

// emptyPayload asks the device to fetch the latest pass
var emptyPayload = []byte("{}")

// PushClient sends one notification. It is satisfied by *apns2.Client.
type PushClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// ClientFactory builds a push client from a PEM file holding the combined
// certificate and key
type ClientFactory func(credentialPath string) (PushClient, error)

// APNsClientFactory returns a factory for the production or development push
// gateway
func APNsClientFactory(production bool) ClientFactory {
	return func(credentialPath string) (PushClient, error) {
		cert, err := certificate.FromPemFile(credentialPath, "")
		if err != nil {
			return nil, err
		}
		client := apns2.NewClient(cert)
		if production {
			return client.Production(), nil
		}
		return client.Development(), nil
	}
}

// Result counts the outcome of a fan-out
type Result struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// Dispatcher sends refresh notifications to registered devices
type Dispatcher struct {
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	factory      ClientFactory
	workers      int
	timeout      time.Duration
	pushes       *prometheus.CounterVec
}

type DispatcherOptionFunc func(*Dispatcher)

func WithDispatcherLogger(logger *slog.Logger) DispatcherOptionFunc {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithDispatcherPromRegistry(registry prometheus.Registerer) DispatcherOptionFunc {
	return func(d *Dispatcher) {
		d.promRegistry = registry
	}
}

func WithClientFactory(factory ClientFactory) DispatcherOptionFunc {
	return func(d *Dispatcher) {
		d.factory = factory
	}
}

// WithWorkers bounds the number of concurrent pushes
func WithWorkers(workers int) DispatcherOptionFunc {
	return func(d *Dispatcher) {
		d.workers = workers
	}
}

// WithPushTimeout bounds each push
func WithPushTimeout(timeout time.Duration) DispatcherOptionFunc {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

func NewDispatcher(opts ...DispatcherOptionFunc) *Dispatcher {
	d := &Dispatcher{
		workers: DefaultPushWorkers,
		timeout: DefaultPushTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.factory == nil {
		d.factory = APNsClientFactory(true)
	}
	if d.workers <= 0 {
		d.workers = DefaultPushWorkers
	}
	d.pushes = promauto.With(d.promRegistry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "passsync_push_notifications_total",
			Help: "refresh notifications by result",
		},
		[]string{"result"},
	)
	return d
}

// Batch is a push session bound to one signing identity
type Batch struct {
	dispatcher *Dispatcher
	client     PushClient
	topic      string
}

// NewBatch builds a push client for the identity. The combined credential is
// written to a temporary file only while the client loads it.
func (d *Dispatcher) NewBatch(material *certmanager.SigningMaterial) (*Batch, error) {
	if material == nil || material.PassTypeIdentifier == "" {
		return nil, &CertificateError{Err: errors.New("missing pass type identifier")}
	}
	var client PushClient
	err := certmanager.WithPushCredentialFile(material, func(path string) error {
		var err error
		client, err = d.factory(path)
		return err
	})
	if err != nil {
		return nil, &CertificateError{Err: err}
	}
	return &Batch{
		dispatcher: d,
		client:     client,
		topic:      material.PassTypeIdentifier,
	}, nil
}

// Notify pushes to one device token and reports whether it was accepted
func (b *Batch) Notify(ctx context.Context, token string) bool {
	d := b.dispatcher
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	resp, err := b.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: token,
		Topic:       b.topic,
		Payload:     emptyPayload,
	})
	switch {
	case err != nil:
		d.pushes.WithLabelValues("error").Inc()
		d.logger.Debug(
			"push failed",
			"component", "passkit",
			"topic", b.topic,
			"error", err,
		)
		return false
	case !resp.Sent():
		d.pushes.WithLabelValues("rejected").Inc()
		d.logger.Debug(
			"push rejected",
			"component", "passkit",
			"topic", b.topic,
			"status", resp.StatusCode,
			"reason", resp.Reason,
		)
		return false
	}
	d.pushes.WithLabelValues("sent").Inc()
	return true
}

// NotifyAll fans out to every token with bounded concurrency. A failing
// token only counts as failed.
func (b *Batch) NotifyAll(ctx context.Context, tokens []string) Result {
	var success, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.dispatcher.workers)
	for _, token := range tokens {
		g.Go(func() error {
			if b.Notify(gctx, token) {
				success.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return Result{Success: int(success.Load()), Failed: int(failed.Load())}
}

// Close releases idle connections of the push client
func (b *Batch) Close() {
	if c, ok := b.client.(*apns2.Client); ok && c.HTTPClient != nil {
		c.HTTPClient.CloseIdleConnections()
	}
}

// Dispatch pushes to every token with a fresh batch for the identity
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	material *certmanager.SigningMaterial,
	tokens []string,
) (Result, error) {
	if len(tokens) == 0 {
		return Result{}, nil
	}
	batch, err := d.NewBatch(material)
	if err != nil {
		return Result{Failed: len(tokens)}, err
	}
	defer batch.Close()
	result := batch.NotifyAll(ctx, tokens)
	d.logger.Debug(
		"dispatched pass refresh",
		"component", "passkit",
		"topic", material.PassTypeIdentifier,
		"success", result.Success,
		"failed", result.Failed,
	)
	return result, nil
}
