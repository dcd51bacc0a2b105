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

package gcs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/database/plugin/asset/gcs"
)

func TestCredentialValidation(t *testing.T) {
	tempDir := t.TempDir()
	credsFile := filepath.Join(tempDir, "credentials.json")
	require.NoError(t, os.WriteFile(credsFile, []byte("{}"), 0o600))

	tests := []struct {
		name            string
		credentialsFile string
		errorMessage    string
	}{
		{
			name:            "valid credentials file",
			credentialsFile: credsFile,
		},
		{
			name:            "nonexistent credentials file",
			credentialsFile: filepath.Join(tempDir, "nonexistent-credentials.json"),
			errorMessage:    "GCS credentials file does not exist",
		},
		{
			name:            "directory instead of file",
			credentialsFile: tempDir,
			errorMessage:    "is a directory",
		},
		{
			name:            "empty credentials file path",
			credentialsFile: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gcs.ValidateCredentials(tt.credentialsFile)
			if tt.errorMessage != "" {
				assert.ErrorContains(t, err, tt.errorMessage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewFromCmdlineOptions(t *testing.T) {
	p := gcs.NewFromCmdlineOptions()
	require.NotNil(t, p)
	// No bucket configured
	assert.Error(t, p.Start())
}
