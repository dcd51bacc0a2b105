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
	"path/filepath"
	"sync"

	"github.com/blinklabs-io/passsync/database/sops"
)

// FallbackPolicy decides what happens when a business has no assigned
// certificate and none can be claimed
type FallbackPolicy string

const (
	// FallbackWarn serves the shared identity and logs a warning
	FallbackWarn FallbackPolicy = "warn"
	// FallbackForbid refuses to sign with the shared identity
	FallbackForbid FallbackPolicy = "forbid"
)

const (
	FallbackSignerCertFile = "signer.pem"
	FallbackSignerKeyFile  = "signer.key"
	FallbackPushFile       = "push.pem"
)

var (
	ErrFallbackForbidden   = errors.New("shared fallback certificate is forbidden")
	ErrFallbackUnavailable = errors.New("no fallback certificate configured")
)

func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(s) {
	case "", FallbackWarn:
		return FallbackWarn, nil
	case FallbackForbid:
		return FallbackForbid, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q", s)
	}
}

// fallbackLoader reads the shared identity once. Files may be plain PEM or
// sops envelopes.
type fallbackLoader struct {
	dir                string
	passTypeIdentifier string
	teamID             string
	mutex              sync.Mutex
	material           *SigningMaterial
}

func (f *fallbackLoader) load() (*SigningMaterial, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.material != nil {
		return f.material, nil
	}
	if f.dir == "" {
		return nil, ErrFallbackUnavailable
	}
	read := func(name string) ([]byte, error) {
		data, err := sops.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFallbackUnavailable, err)
		}
		return data, nil
	}
	signerCert, err := read(FallbackSignerCertFile)
	if err != nil {
		return nil, err
	}
	signerKey, err := read(FallbackSignerKeyFile)
	if err != nil {
		return nil, err
	}
	push, err := read(FallbackPushFile)
	if err != nil {
		return nil, err
	}
	material := &SigningMaterial{
		PassTypeIdentifier: f.passTypeIdentifier,
		TeamID:             f.teamID,
		SignerCert:         signerCert,
		SignerKey:          signerKey,
		PushCredential:     push,
		Fallback:           true,
	}
	cert, err := material.Certificate()
	if err != nil {
		return nil, err
	}
	passTypeIdentifier, teamID := subjectIdentity(cert)
	if material.PassTypeIdentifier == "" {
		material.PassTypeIdentifier = passTypeIdentifier
	}
	if material.TeamID == "" {
		material.TeamID = teamID
	}
	if err := material.Validate(); err != nil {
		return nil, err
	}
	f.material = material
	return material, nil
}
