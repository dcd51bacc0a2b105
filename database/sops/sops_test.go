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

package sops_test

import (
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/database/sops"
)

func setupAgeKey(t *testing.T) {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	t.Setenv(sops.EnvAgeRecipients, identity.Recipient().String())
	t.Setenv("SOPS_AGE_KEY", identity.String())
	t.Setenv(sops.EnvGcpKmsResourceID, "")
	t.Setenv(sops.EnvAwsKmsKeyArns, "")
}

func TestEncryptDecrypt(t *testing.T) {
	setupAgeKey(t)
	plain := []byte("-----BEGIN CERTIFICATE-----\nabc\n-----END CERTIFICATE-----\n")
	encrypted, err := sops.Encrypt(plain)
	require.NoError(t, err)
	assert.True(t, sops.IsEncrypted(encrypted))
	assert.NotContains(t, string(encrypted), "abc")

	decrypted, err := sops.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, plain, decrypted)

	_, err = sops.Encrypt(encrypted)
	require.ErrorIs(t, err, sops.ErrAlreadyEncrypted)
}

func TestReadFile(t *testing.T) {
	setupAgeKey(t)
	dir := t.TempDir()
	plainPath := filepath.Join(dir, "plain.pem")
	require.NoError(t, os.WriteFile(plainPath, []byte("plain"), 0o600))
	data, err := sops.ReadFile(plainPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), data)

	encrypted, err := sops.Encrypt([]byte("secret"))
	require.NoError(t, err)
	encPath := filepath.Join(dir, "enc.pem")
	require.NoError(t, os.WriteFile(encPath, encrypted, 0o600))
	data, err = sops.ReadFile(encPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), data)

	_, err = sops.ReadFile(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestEncryptRequiresKeys(t *testing.T) {
	t.Setenv(sops.EnvAgeRecipients, "")
	t.Setenv(sops.EnvGcpKmsResourceID, "")
	t.Setenv(sops.EnvAwsKmsKeyArns, "")
	_, err := sops.Encrypt([]byte("x"))
	require.Error(t, err)
}
