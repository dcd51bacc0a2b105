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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	DefaultBaseURL = "https://walletobjects.googleapis.com/walletobjects/v1"
	DefaultTimeout = 10 * time.Second
	// IssuerScope is the OAuth2 scope of the wallet issuer API
	IssuerScope = "https://www.googleapis.com/auth/wallet_object.issuer"

	maxErrorBody = 4096
)

// Client talks to the wallet objects REST API. Every call is bounded by the
// client timeout.
type Client struct {
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	httpClient   *http.Client
	baseURL      string
	timeout      time.Duration
	requests     *prometheus.CounterVec
}

type ClientOptionFunc func(*Client)

func WithLogger(logger *slog.Logger) ClientOptionFunc {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithPromRegistry(registry prometheus.Registerer) ClientOptionFunc {
	return func(c *Client) {
		c.promRegistry = registry
	}
}

// WithHTTPClient sets the authorized HTTP client used for every request
func WithHTTPClient(httpClient *http.Client) ClientOptionFunc {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithBaseURL(baseURL string) ClientOptionFunc {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithTimeout(timeout time.Duration) ClientOptionFunc {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func NewClient(opts ...ClientOptionFunc) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	c.requests = promauto.With(c.promRegistry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "passsync_walletobjects_requests_total",
			Help: "wallet API requests by operation and status code",
		},
		[]string{"operation", "code"},
	)
	return c
}

// HTTPClientFromCredentials returns an HTTP client authorized with a service
// account key
func HTTPClientFromCredentials(
	ctx context.Context,
	credentialsJSON []byte,
) (*http.Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, IssuerScope)
	if err != nil {
		return nil, fmt.Errorf("load wallet service account: %w", err)
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}

// do sends one request and decodes a 2xx JSON response into out when out is
// non-nil. Non-2xx responses become a *PlatformError.
func (c *Client) do(
	ctx context.Context,
	operation string,
	method string,
	path string,
	body any,
	out any,
) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.requests.WithLabelValues(operation, "error").Inc()
		return fmt.Errorf("wallet api %s: %w", operation, err)
	}
	defer resp.Body.Close()
	c.requests.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &PlatformError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(data)),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("wallet api %s: decode response: %w", operation, err)
	}
	return nil
}

func isStatus(err error, code int) bool {
	var platformErr *PlatformError
	return errors.As(err, &platformErr) && platformErr.StatusCode == code
}

// upsert applies the GET, create-or-update sequence to one resource. A
// conflict on create means a concurrent writer created it first, so the
// payload is written as an update instead.
func (c *Client) upsert(
	ctx context.Context,
	resource string,
	id string,
	payload any,
) (bool, error) {
	itemPath := "/" + resource + "/" + url.PathEscape(id)
	err := c.do(ctx, "get_"+resource, http.MethodGet, itemPath, nil, nil)
	switch {
	case err == nil:
		return false, c.do(ctx, "update_"+resource, http.MethodPut, itemPath, payload, nil)
	case !isStatus(err, http.StatusNotFound):
		return false, err
	}
	err = c.do(ctx, "create_"+resource, http.MethodPost, "/"+resource, payload, nil)
	if isStatus(err, http.StatusConflict) {
		c.logger.Debug(
			"create conflicted, updating instead",
			"component", "walletobjects",
			"resource", resource,
			"id", id,
		)
		return false, c.do(ctx, "update_"+resource, http.MethodPut, itemPath, payload, nil)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpsertClass creates or replaces a class and reports whether it was created
func (c *Client) UpsertClass(ctx context.Context, class *ClassPayload) (bool, error) {
	if err := class.Validate(); err != nil {
		return false, err
	}
	return c.upsert(ctx, "loyaltyClass", class.ID, class)
}

// UpsertObject creates or replaces an object and reports whether it was
// created
func (c *Client) UpsertObject(ctx context.Context, object *ObjectPayload) (bool, error) {
	if err := object.Validate(); err != nil {
		return false, err
	}
	return c.upsert(ctx, "loyaltyObject", object.ID, object)
}

// GetObject fetches an object, returning ErrNotFound when it does not exist
func (c *Client) GetObject(ctx context.Context, objectID string) (*ObjectPayload, error) {
	var ret ObjectPayload
	err := c.do(
		ctx,
		"get_loyaltyObject",
		http.MethodGet,
		"/loyaltyObject/"+url.PathEscape(objectID),
		nil,
		&ret,
	)
	if isStatus(err, http.StatusNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// PatchObject applies a partial update to an existing object. It returns
// ErrNotFound when the holder never saved the card.
func (c *Client) PatchObject(ctx context.Context, object *ObjectPayload) error {
	if err := object.Validate(); err != nil {
		return err
	}
	err := c.do(
		ctx,
		"patch_loyaltyObject",
		http.MethodPatch,
		"/loyaltyObject/"+url.PathEscape(object.ID),
		object,
		nil,
	)
	if isStatus(err, http.StatusNotFound) {
		return ErrNotFound
	}
	return err
}

type addMessageRequest struct {
	Message Message `json:"message"`
}

// AddMessage attaches a message to an object, which notifies the holder
func (c *Client) AddMessage(ctx context.Context, objectID string, msg Message) error {
	err := c.do(
		ctx,
		"add_message",
		http.MethodPost,
		"/loyaltyObject/"+url.PathEscape(objectID)+"/addMessage",
		addMessageRequest{Message: msg},
		nil,
	)
	if isStatus(err, http.StatusNotFound) {
		return ErrNotFound
	}
	return err
}
