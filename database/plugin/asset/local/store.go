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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/passsync/database/plugin/asset"
)

const (
	DefaultDataDir = ".passsync/assets"
	DefaultBaseURL = "http://localhost:8080/assets"
)

// AssetStoreLocal keeps assets on the local filesystem. The files are served
// by Handler under the base URL.
type AssetStoreLocal struct {
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	metrics      *asset.Metrics
	dataDir      string
	baseURL      string
}

// NewWithOptions creates a local asset store. The directory is created by Start()
func NewWithOptions(opts ...LocalOptionFunc) (*AssetStoreLocal, error) {
	s := &AssetStoreLocal{}
	for _, opt := range opts {
		opt(s)
	}
	if s.dataDir == "" {
		s.dataDir = DefaultDataDir
	}
	if s.baseURL == "" {
		s.baseURL = DefaultBaseURL
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s, nil
}

// Start implements the plugin.Plugin interface
func (s *AssetStoreLocal) Start() error {
	if _, err := os.Stat(s.dataDir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read asset dir: %w", err)
		}
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			return fmt.Errorf("failed to create asset dir: %w", err)
		}
	}
	s.metrics = asset.NewMetrics(s.promRegistry, "local")
	return nil
}

// Stop implements the plugin.Plugin interface
func (s *AssetStoreLocal) Stop() error {
	return s.Close()
}

func (s *AssetStoreLocal) Close() error {
	return nil
}

func (s *AssetStoreLocal) path(key string) (string, string, error) {
	cleaned, err := asset.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return cleaned, filepath.Join(s.dataDir, filepath.FromSlash(cleaned)), nil
}

// Put writes the file through a temp file and rename so readers never see a
// partial image
func (s *AssetStoreLocal) Put(
	_ context.Context,
	key string,
	data []byte,
	_ string,
) (string, error) {
	cleaned, target, err := s.path(key)
	if err != nil {
		return "", err
	}
	err = s.write(target, data)
	s.metrics.Observe("put", len(data), err)
	if err != nil {
		s.logger.Error(
			fmt.Sprintf("local asset put %q failed: %s", cleaned, err),
			"component", "database",
		)
		return "", err
	}
	return s.URL(cleaned), nil
}

func (s *AssetStoreLocal) write(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *AssetStoreLocal) Get(_ context.Context, key string) ([]byte, error) {
	_, target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, asset.ErrAssetNotFound
		}
		s.metrics.Observe("get", 0, err)
		return nil, err
	}
	s.metrics.Observe("get", len(data), nil)
	return data, nil
}

func (s *AssetStoreLocal) Delete(_ context.Context, key string) error {
	_, target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return asset.ErrAssetNotFound
		}
		s.metrics.Observe("delete", 0, err)
		return err
	}
	s.metrics.Observe("delete", 0, nil)
	return nil
}

func (s *AssetStoreLocal) URL(key string) string {
	return asset.JoinURL(s.baseURL, key)
}

// Handler serves the stored files. Mount it under the path of the base URL.
func (s *AssetStoreLocal) Handler() http.Handler {
	return http.FileServer(noDirFS{http.Dir(s.dataDir)})
}

// noDirFS hides directory listings
type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
