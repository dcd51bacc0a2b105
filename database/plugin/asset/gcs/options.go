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
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type AssetStoreGCSOptionFunc func(*AssetStoreGCS)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) AssetStoreGCSOptionFunc {
	return func(s *AssetStoreGCS) {
		s.logger = NewGcsLogger(logger)
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(
	registry prometheus.Registerer,
) AssetStoreGCSOptionFunc {
	return func(s *AssetStoreGCS) {
		s.promRegistry = registry
	}
}

// WithBucket specifies the GCS bucket name
func WithBucket(bucket string) AssetStoreGCSOptionFunc {
	return func(s *AssetStoreGCS) {
		s.bucketName = bucket
	}
}

// WithPrefix specifies the object name prefix
func WithPrefix(prefix string) AssetStoreGCSOptionFunc {
	return func(s *AssetStoreGCS) {
		s.prefix = prefix
	}
}

// WithCredentialsFile specifies a service account credentials file
func WithCredentialsFile(credentialsFile string) AssetStoreGCSOptionFunc {
	return func(s *AssetStoreGCS) {
		s.credentialsFile = credentialsFile
	}
}

// WithBaseURL specifies a CDN URL fronting the bucket prefix
func WithBaseURL(baseURL string) AssetStoreGCSOptionFunc {
	return func(s *AssetStoreGCS) {
		s.baseURL = baseURL
	}
}

// WithTimeout specifies the timeout of a single storage operation
func WithTimeout(timeout time.Duration) AssetStoreGCSOptionFunc {
	return func(s *AssetStoreGCS) {
		s.timeout = timeout
	}
}
