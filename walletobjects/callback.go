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

package walletobjects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/loyalty"
)

const (
	EventSave   = "save"
	EventDelete = "del"
)

// CallbackStore persists callback nonces and the registrations they produce
type CallbackStore interface {
	RecordCallbackNonce(ctx context.Context, nonce *models.CallbackNonce) (bool, error)
	ForgetCallbackNonce(ctx context.Context, nonce string) error
	UpsertRegistration(ctx context.Context, reg *models.WalletRegistration) (bool, error)
	DeleteRegistration(
		ctx context.Context,
		customerID string,
		platform loyalty.Platform,
		deviceID string,
	) (bool, error)
}

// CallbackHandler applies save and delete events. Delivery is at least once,
// so each nonce is processed a single time.
type CallbackHandler struct {
	logger         *slog.Logger
	promRegistry   prometheus.Registerer
	store          CallbackStore
	issuerID       string
	verifier       *Verifier
	skipVerify     bool
	callbacksTotal *prometheus.CounterVec
}

type CallbackOptionFunc func(*CallbackHandler)

func WithCallbackLogger(logger *slog.Logger) CallbackOptionFunc {
	return func(h *CallbackHandler) {
		h.logger = logger
	}
}

func WithCallbackPromRegistry(registry prometheus.Registerer) CallbackOptionFunc {
	return func(h *CallbackHandler) {
		h.promRegistry = registry
	}
}

func WithVerifier(verifier *Verifier) CallbackOptionFunc {
	return func(h *CallbackHandler) {
		h.verifier = verifier
	}
}

// WithInsecureSkipVerify accepts envelopes without checking their signatures
func WithInsecureSkipVerify() CallbackOptionFunc {
	return func(h *CallbackHandler) {
		h.skipVerify = true
	}
}

func NewCallbackHandler(
	issuerID string,
	store CallbackStore,
	opts ...CallbackOptionFunc,
) *CallbackHandler {
	h := &CallbackHandler{
		issuerID: issuerID,
		store:    store,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		h.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	h.callbacksTotal = promauto.With(h.promRegistry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "passsync_walletobjects_callbacks_total",
			Help: "wallet callbacks by event type and result",
		},
		[]string{"event", "result"},
	)
	return h
}

// HandleEnvelope verifies an envelope and applies its callback
func (h *CallbackHandler) HandleEnvelope(ctx context.Context, env *Envelope) (bool, error) {
	var cb *Callback
	var err error
	switch {
	case h.verifier != nil:
		cb, err = h.verifier.Verify(env)
	case h.skipVerify:
		cb, err = DecodeUnverified(env)
	default:
		err = errors.New("no callback verifier configured")
	}
	if err != nil {
		h.callbacksTotal.WithLabelValues("unknown", "rejected").Inc()
		return false, err
	}
	return h.Handle(ctx, cb)
}

// Handle applies a callback. It reports false for a nonce seen before. When
// applying fails the nonce is forgotten so a redelivery is processed.
func (h *CallbackHandler) Handle(ctx context.Context, cb *Callback) (bool, error) {
	if cb.Nonce == "" {
		h.callbacksTotal.WithLabelValues(cb.EventType, "rejected").Inc()
		return false, fmt.Errorf("%w: missing nonce", ErrInvalidCallback)
	}
	customerID, ok := SuffixOf(h.issuerID, cb.ObjectID)
	if !ok {
		h.callbacksTotal.WithLabelValues(cb.EventType, "rejected").Inc()
		return false, fmt.Errorf("%w: object %q not issued by %s", ErrInvalidCallback, cb.ObjectID, h.issuerID)
	}
	businessID, ok := SuffixOf(h.issuerID, cb.ClassID)
	if !ok {
		h.callbacksTotal.WithLabelValues(cb.EventType, "rejected").Inc()
		return false, fmt.Errorf("%w: class %q not issued by %s", ErrInvalidCallback, cb.ClassID, h.issuerID)
	}
	first, err := h.store.RecordCallbackNonce(ctx, &models.CallbackNonce{
		Nonce:     cb.Nonce,
		EventType: cb.EventType,
		ObjectID:  cb.ObjectID,
	})
	if err != nil {
		return false, err
	}
	if !first {
		h.callbacksTotal.WithLabelValues(cb.EventType, "duplicate").Inc()
		h.logger.Debug(
			"ignoring duplicate callback",
			"component", "walletobjects",
			"nonce", cb.Nonce,
		)
		return false, nil
	}
	if err := h.apply(ctx, cb, customerID, businessID); err != nil {
		h.callbacksTotal.WithLabelValues(cb.EventType, "failed").Inc()
		if forgetErr := h.store.ForgetCallbackNonce(ctx, cb.Nonce); forgetErr != nil {
			err = errors.Join(err, forgetErr)
		}
		return false, err
	}
	h.callbacksTotal.WithLabelValues(cb.EventType, "ok").Inc()
	return true, nil
}

func (h *CallbackHandler) apply(
	ctx context.Context,
	cb *Callback,
	customerID string,
	businessID string,
) error {
	switch cb.EventType {
	case EventSave:
		created, err := h.store.UpsertRegistration(ctx, &models.WalletRegistration{
			CustomerID: customerID,
			Platform:   string(loyalty.PlatformWalletObjects),
			DeviceID:   cb.ObjectID,
			BusinessID: businessID,
		})
		if err != nil {
			return err
		}
		h.logger.Info(
			"wallet object saved",
			"component", "walletobjects",
			"object_id", cb.ObjectID,
			"new", created,
		)
	case EventDelete:
		if _, err := h.store.DeleteRegistration(
			ctx,
			customerID,
			loyalty.PlatformWalletObjects,
			cb.ObjectID,
		); err != nil {
			return err
		}
		h.logger.Info(
			"wallet object removed",
			"component", "walletobjects",
			"object_id", cb.ObjectID,
		)
	default:
		h.logger.Warn(
			"ignoring unknown callback event",
			"component", "walletobjects",
			"event", cb.EventType,
			"object_id", cb.ObjectID,
		)
	}
	return nil
}
