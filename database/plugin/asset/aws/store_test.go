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
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/database/plugin/asset"
)

// fakeS3 implements the path-style object calls used by the store
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
	}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.objects[key] = data
		f.contentTypes[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", "\"etag\"")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(
				w,
				"<?xml version=\"1.0\" encoding=\"UTF-8\"?>"+
					"<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>",
			)
			return
		}
		w.Header().Set("Content-Type", f.contentTypes[key])
		_, _ = w.Write(data)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T, fake *fakeS3) *AssetStoreS3 {
	t.Helper()
	missing := filepath.Join(t.TempDir(), "missing")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_CONFIG_FILE", missing)
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", missing)
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	s, err := NewWithOptions(
		WithEndpoint(srv.URL),
		WithBucket("assets"),
		WithPrefix("passsync"),
	)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	return s
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newTestStore(t, fake)

	url, err := s.Put(ctx, "strips/d1/0.png", []byte("png-bytes"), "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, "/assets/passsync/strips/d1/0.png"), url)

	fake.mu.Lock()
	assert.Equal(t, []byte("png-bytes"), fake.objects["assets/passsync/strips/d1/0.png"])
	assert.Equal(t, "image/png", fake.contentTypes["assets/passsync/strips/d1/0.png"])
	fake.mu.Unlock()

	data, err := s.Get(ctx, "strips/d1/0.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	require.NoError(t, s.Delete(ctx, "strips/d1/0.png"))
	_, err = s.Get(ctx, "strips/d1/0.png")
	require.ErrorIs(t, err, asset.ErrAssetNotFound)
}

func TestNewFromLocation(t *testing.T) {
	s, err := New("s3://bucket/some/prefix/", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "bucket", s.bucket)
	assert.Equal(t, "some/prefix/", s.prefix)

	_, err = New("gcs://bucket", nil, nil)
	require.Error(t, err)
	_, err = New("s3://", nil, nil)
	require.Error(t, err)
}

func TestURL(t *testing.T) {
	s, err := NewWithOptions(WithBucket("b"), WithRegion("eu-west-1"))
	require.NoError(t, err)
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com/x.png", s.URL("x.png"))

	s, err = NewWithOptions(
		WithBucket("b"),
		WithPrefix("p"),
		WithBaseURL("https://cdn.example.com"),
	)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.png", s.URL("x.png"))
}

func TestNewFromCmdlineOptions(t *testing.T) {
	p := NewFromCmdlineOptions()
	require.NotNil(t, p)
	_, ok := p.(*AssetStoreS3)
	assert.True(t, ok)
}
