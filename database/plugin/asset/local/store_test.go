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
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/database/plugin/asset"
)

func newTestStore(t *testing.T, opts ...LocalOptionFunc) *AssetStoreLocal {
	t.Helper()
	opts = append(
		[]LocalOptionFunc{
			WithDataDir(filepath.Join(t.TempDir(), "assets")),
			WithBaseURL("https://cdn.example.com/assets/"),
		},
		opts...,
	)
	s, err := NewWithOptions(opts...)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	url, err := s.Put(ctx, "/strips/d1/3-passkit-2x.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/assets/strips/d1/3-passkit-2x.png", url)

	data, err := s.Get(ctx, "strips/d1/3-passkit-2x.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	// Overwrite replaces the content
	_, err = s.Put(ctx, "strips/d1/3-passkit-2x.png", []byte("png2"), "image/png")
	require.NoError(t, err)
	data, err = s.Get(ctx, "strips/d1/3-passkit-2x.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png2"), data)

	require.NoError(t, s.Delete(ctx, "strips/d1/3-passkit-2x.png"))
	_, err = s.Get(ctx, "strips/d1/3-passkit-2x.png")
	require.ErrorIs(t, err, asset.ErrAssetNotFound)
	require.ErrorIs(t, s.Delete(ctx, "strips/d1/3-passkit-2x.png"), asset.ErrAssetNotFound)

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "strips", "d1"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, key := range []string{"", "/", "../secret", "a/../../b", "a\\b"} {
		_, err := s.Put(ctx, key, []byte("x"), "")
		assert.ErrorIs(t, err, asset.ErrInvalidKey, key)
	}
}

func TestHandlerServesFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Put(ctx, "logos/b1.png", []byte("logo"), "image/png")
	require.NoError(t, err)

	srv := httptest.NewServer(http.StripPrefix("/assets", s.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/assets/logos/b1.png")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte("logo"), body)

	resp, err = http.Get(srv.URL + "/assets/logos/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestStore(t, WithPromRegistry(reg))
	_, err := s.Put(context.Background(), "a.png", []byte("abcd"), "image/png")
	require.NoError(t, err)
	count, err := testutil.GatherAndCount(reg, "passsync_asset_ops_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
