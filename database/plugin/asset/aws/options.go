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
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type AssetStoreS3OptionFunc func(*AssetStoreS3)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) AssetStoreS3OptionFunc {
	return func(s *AssetStoreS3) {
		s.logger = NewS3Logger(logger)
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(
	registry prometheus.Registerer,
) AssetStoreS3OptionFunc {
	return func(s *AssetStoreS3) {
		s.promRegistry = registry
	}
}

// WithBucket specifies the S3 bucket name
func WithBucket(bucket string) AssetStoreS3OptionFunc {
	return func(s *AssetStoreS3) {
		s.bucket = bucket
	}
}

// WithRegion specifies the AWS region
func WithRegion(region string) AssetStoreS3OptionFunc {
	return func(s *AssetStoreS3) {
		s.region = region
	}
}

// WithPrefix specifies the S3 object prefix
func WithPrefix(prefix string) AssetStoreS3OptionFunc {
	return func(s *AssetStoreS3) {
		s.prefix = prefix
	}
}

// WithTimeout specifies the timeout of a single S3 operation
func WithTimeout(timeout time.Duration) AssetStoreS3OptionFunc {
	return func(s *AssetStoreS3) {
		s.timeout = timeout
	}
}

// WithEndpoint specifies a custom endpoint for S3. This is generally used
// with an S3 compatible store such as minio (https://github.com/minio/minio)
func WithEndpoint(endpoint string) AssetStoreS3OptionFunc {
	return func(s *AssetStoreS3) {
		s.endpoint = endpoint
	}
}

// WithBaseURL specifies a CDN URL fronting the bucket prefix
func WithBaseURL(baseURL string) AssetStoreS3OptionFunc {
	return func(s *AssetStoreS3) {
		s.baseURL = baseURL
	}
}
