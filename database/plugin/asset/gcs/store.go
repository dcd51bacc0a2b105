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

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"

	"github.com/blinklabs-io/passsync/database/plugin/asset"
)

const (
	publicBaseURL = "https://storage.googleapis.com"
	// Rendered images are immutable per key until the design changes
	defaultCacheControl = "public, max-age=300"
)

// AssetStoreGCS stores assets in a Google Cloud Storage bucket
type AssetStoreGCS struct {
	promRegistry    prometheus.Registerer
	logger          *GcsLogger
	metrics         *asset.Metrics
	client          *storage.Client
	bucket          *storage.BucketHandle
	bucketName      string
	prefix          string
	credentialsFile string
	baseURL         string
	timeout         time.Duration
}

// New creates a GCS-backed asset store from a "gcs://<bucket>[/prefix]" location
func New(
	location string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*AssetStoreGCS, error) {
	path, ok := strings.CutPrefix(location, "gcs://")
	if !ok || path == "" {
		return nil, errors.New(
			"gcs assets: bucket not set (expected location='gcs://<bucket>[/prefix]')",
		)
	}
	bucketName, prefix, _ := strings.Cut(path, "/")
	if bucketName == "" {
		return nil, errors.New("gcs assets: invalid location (missing bucket)")
	}
	return NewWithOptions(
		WithBucket(bucketName),
		WithPrefix(prefix),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a GCS-backed asset store using options
func NewWithOptions(opts ...AssetStoreGCSOptionFunc) (*AssetStoreGCS, error) {
	s := &AssetStoreGCS{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = NewGcsLogger(nil)
	}
	s.prefix = normalizePrefix(s.prefix)
	return s, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// ValidateCredentials checks that a configured credentials file is readable
func ValidateCredentials(credentialsFile string) error {
	if credentialsFile == "" {
		return nil
	}
	info, err := os.Stat(credentialsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf(
				"GCS credentials file does not exist: %s",
				credentialsFile,
			)
		}
		return fmt.Errorf("GCS credentials file unreadable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(
			"GCS credentials file is a directory: %s",
			credentialsFile,
		)
	}
	return nil
}

// Start implements the plugin.Plugin interface
func (s *AssetStoreGCS) Start() error {
	if s.bucketName == "" {
		return errors.New("gcs assets: bucket not set")
	}
	if err := ValidateCredentials(s.credentialsFile); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	clientOpts := []option.ClientOption{
		storage.WithDisabledClientMetrics(),
	}
	if s.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(s.credentialsFile),
		)
	}
	client, err := storage.NewGRPCClient(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf(
			"gcs assets: failed in creating storage client: %w",
			err,
		)
	}
	s.client = client
	s.bucket = client.Bucket(s.bucketName)
	s.metrics = asset.NewMetrics(s.promRegistry, "gcs")
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *AssetStoreGCS) Stop() error {
	return s.Close()
}

func (s *AssetStoreGCS) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.bucket = nil
	return err
}

func (s *AssetStoreGCS) opContext(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	timeout := s.timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *AssetStoreGCS) objectName(key string) (string, error) {
	cleaned, err := asset.CleanKey(key)
	if err != nil {
		return "", err
	}
	return s.prefix + cleaned, nil
}

func (s *AssetStoreGCS) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) (string, error) {
	if s.bucket == nil {
		return "", errors.New("gcs assets: store not started")
	}
	name, err := s.objectName(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = asset.ContentType(name)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = defaultCacheControl
	if _, err = w.Write(data); err == nil {
		err = w.Close()
	} else {
		_ = w.Close()
	}
	s.metrics.Observe("put", len(data), err)
	if err != nil {
		s.logger.Errorf("gcs put %q failed: %v", name, err)
		return "", err
	}
	s.logger.Debugf("gcs put %q ok (%d bytes)", name, len(data))
	return s.URL(key), nil
}

func (s *AssetStoreGCS) Get(ctx context.Context, key string) ([]byte, error) {
	if s.bucket == nil {
		return nil, errors.New("gcs assets: store not started")
	}
	name, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	r, err := s.bucket.Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, asset.ErrAssetNotFound
		}
		s.metrics.Observe("get", 0, err)
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	s.metrics.Observe("get", len(data), err)
	if err != nil {
		s.logger.Errorf("gcs read %q failed: %v", name, err)
		return nil, err
	}
	return data, nil
}

func (s *AssetStoreGCS) Delete(ctx context.Context, key string) error {
	if s.bucket == nil {
		return errors.New("gcs assets: store not started")
	}
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.bucket.Object(name).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return asset.ErrAssetNotFound
		}
		s.metrics.Observe("delete", 0, err)
		return err
	}
	s.metrics.Observe("delete", 0, nil)
	return nil
}

// URL returns the public URL of a key. Keys that fail validation map to the
// store root.
func (s *AssetStoreGCS) URL(key string) string {
	name, err := s.objectName(key)
	if err != nil {
		name = s.prefix
	}
	if s.baseURL != "" {
		return asset.JoinURL(s.baseURL, strings.TrimPrefix(name, s.prefix))
	}
	return asset.JoinURL(publicBaseURL+"/"+s.bucketName, name)
}
