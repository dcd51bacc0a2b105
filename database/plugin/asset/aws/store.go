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

package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/passsync/database/plugin/asset"
)

const defaultCacheControl = "public, max-age=300"

// AssetStoreS3 stores assets in an S3 (or S3 compatible) bucket
type AssetStoreS3 struct {
	promRegistry prometheus.Registerer
	logger       *S3Logger
	metrics      *asset.Metrics
	client       *s3.Client
	bucket       string
	prefix       string
	region       string
	endpoint     string
	baseURL      string
	timeout      time.Duration
}

// New creates an S3-backed asset store from a "s3://<bucket>[/prefix]" location
func New(
	location string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*AssetStoreS3, error) {
	path, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return nil, errors.New(
			"s3 assets: expected location='s3://<bucket>[/prefix]'",
		)
	}
	if path == "" {
		return nil, errors.New("s3 assets: bucket not set")
	}
	bucket, keyPrefix, _ := strings.Cut(path, "/")
	if bucket == "" {
		return nil, errors.New("s3 assets: invalid S3 path (missing bucket)")
	}
	return NewWithOptions(
		WithBucket(bucket),
		WithPrefix(keyPrefix),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates an S3-backed asset store using options
func NewWithOptions(opts ...AssetStoreS3OptionFunc) (*AssetStoreS3, error) {
	s := &AssetStoreS3{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = NewS3Logger(nil)
	}
	s.prefix = strings.Trim(s.prefix, "/")
	if s.prefix != "" {
		s.prefix += "/"
	}
	// Note: AWS config loading and validation happens in Start()
	return s, nil
}

func (s *AssetStoreS3) opContext(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	timeout := s.timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// Start implements the plugin.Plugin interface
func (s *AssetStoreS3) Start() error {
	if s.bucket == "" {
		return errors.New("s3 assets: bucket not set")
	}
	ctx, cancel := s.opContext(context.Background())
	defer cancel()
	var loadOpts []func(*config.LoadOptions) error
	if s.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s.region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("s3 assets: load default AWS config: %w", err)
	}
	if s.region == "" {
		s.region = awsCfg.Region
	}
	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.endpoint == "" {
			return
		}
		// S3 compatible stores get path-style addressing and only the
		// checksums the API requires
		o.BaseEndpoint = aws.String(s.endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	s.metrics = asset.NewMetrics(s.promRegistry, "s3")
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *AssetStoreS3) Stop() error {
	// S3 client doesn't need explicit closing
	return nil
}

func (s *AssetStoreS3) Close() error {
	return s.Stop()
}

func (s *AssetStoreS3) fullKey(key string) (string, error) {
	cleaned, err := asset.CleanKey(key)
	if err != nil {
		return "", err
	}
	return s.prefix + cleaned, nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var noSuchKey *s3types.NoSuchKey
	return errors.As(err, &noSuchKey)
}

func (s *AssetStoreS3) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) (string, error) {
	if s.client == nil {
		return "", errors.New("s3 assets: store not started")
	}
	fullKey, err := s.fullKey(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = asset.ContentType(fullKey)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(fullKey),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(defaultCacheControl),
	})
	s.metrics.Observe("put", len(data), err)
	if err != nil {
		s.logger.Errorf("s3 put %q failed: %v", fullKey, err)
		return "", err
	}
	s.logger.Debugf("s3 put %q ok (%d bytes)", fullKey, len(data))
	return s.URL(key), nil
}

func (s *AssetStoreS3) Get(ctx context.Context, key string) ([]byte, error) {
	if s.client == nil {
		return nil, errors.New("s3 assets: store not started")
	}
	fullKey, err := s.fullKey(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, asset.ErrAssetNotFound
		}
		s.metrics.Observe("get", 0, err)
		s.logger.Errorf("s3 get %q failed: %v", fullKey, err)
		return nil, err
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	s.metrics.Observe("get", len(data), err)
	if err != nil {
		s.logger.Errorf("s3 read %q failed: %v", fullKey, err)
		return nil, err
	}
	return data, nil
}

// Delete removes a key. S3 does not report missing keys on delete, so this
// never returns asset.ErrAssetNotFound.
func (s *AssetStoreS3) Delete(ctx context.Context, key string) error {
	if s.client == nil {
		return errors.New("s3 assets: store not started")
	}
	fullKey, err := s.fullKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil && isS3NotFound(err) {
		err = nil
	}
	s.metrics.Observe("delete", 0, err)
	if err != nil {
		s.logger.Errorf("s3 delete %q failed: %v", fullKey, err)
	}
	return err
}

// URL returns the public URL of a key
func (s *AssetStoreS3) URL(key string) string {
	fullKey, err := s.fullKey(key)
	if err != nil {
		fullKey = s.prefix
	}
	switch {
	case s.baseURL != "":
		return asset.JoinURL(s.baseURL, strings.TrimPrefix(fullKey, s.prefix))
	case s.endpoint != "":
		return asset.JoinURL(asset.JoinURL(s.endpoint, s.bucket), fullKey)
	case s.region != "":
		return fmt.Sprintf(
			"https://%s.s3.%s.amazonaws.com/%s",
			s.bucket,
			s.region,
			fullKey,
		)
	default:
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, fullKey)
	}
}
