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

package local

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type LocalOptionFunc func(*AssetStoreLocal)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) LocalOptionFunc {
	return func(s *AssetStoreLocal) {
		s.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(registry prometheus.Registerer) LocalOptionFunc {
	return func(s *AssetStoreLocal) {
		s.promRegistry = registry
	}
}

// WithDataDir specifies the directory the files are written to
func WithDataDir(dataDir string) LocalOptionFunc {
	return func(s *AssetStoreLocal) {
		s.dataDir = dataDir
	}
}

// WithBaseURL specifies the public URL the directory is served under
func WithBaseURL(baseURL string) LocalOptionFunc {
	return func(s *AssetStoreLocal) {
		s.baseURL = baseURL
	}
}
