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

package certmanager

import (
	"errors"
	"fmt"
	"os"
)

var ErrNoPushCredential = errors.New("no push credential")

// pushCredentialFileMode restricts the credential file to its owner
const pushCredentialFileMode os.FileMode = 0o600

// WithPushCredentialFile materializes the push credential of material in a
// temporary file readable only by the owner, runs fn with its path and
// deletes the file before returning
func WithPushCredentialFile(material *SigningMaterial, fn func(path string) error) error {
	if material == nil || len(material.PushCredential) == 0 {
		return ErrNoPushCredential
	}
	f, err := os.CreateTemp("", "passsync-push-*.pem")
	if err != nil {
		return fmt.Errorf("create push credential file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if err := f.Chmod(pushCredentialFileMode); err != nil {
		_ = f.Close()
		return fmt.Errorf("restrict push credential file: %w", err)
	}
	if _, err := f.Write(material.PushCredential); err != nil {
		_ = f.Close()
		return fmt.Errorf("write push credential file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close push credential file: %w", err)
	}
	return fn(path)
}
