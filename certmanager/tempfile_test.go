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

package certmanager_test

import (
	"errors"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/certmanager"
)

func TestWithPushCredentialFile(t *testing.T) {
	material := &certmanager.SigningMaterial{PushCredential: []byte("cert+key")}
	var seen string
	err := certmanager.WithPushCredentialFile(material, func(path string) error {
		seen = path
		info, err := os.Stat(path)
		require.NoError(t, err)
		if runtime.GOOS != "windows" {
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
		}
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, []byte("cert+key"), data)
		return nil
	})
	require.NoError(t, err)
	_, err = os.Stat(seen)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWithPushCredentialFileRemovesOnError(t *testing.T) {
	material := &certmanager.SigningMaterial{PushCredential: []byte("cert+key")}
	failure := errors.New("push failed")
	var seen string
	err := certmanager.WithPushCredentialFile(material, func(path string) error {
		seen = path
		return failure
	})
	require.ErrorIs(t, err, failure)
	_, err = os.Stat(seen)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	err = certmanager.WithPushCredentialFile(
		&certmanager.SigningMaterial{},
		func(string) error { return nil },
	)
	require.ErrorIs(t, err, certmanager.ErrNoPushCredential)
}
