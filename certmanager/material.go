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
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var ErrInvalidMaterial = errors.New("invalid signing material")

// SigningMaterial is the decrypted signing identity of a business
type SigningMaterial struct {
	// CertificateID is empty for the shared fallback identity
	CertificateID      string
	PassTypeIdentifier string
	TeamID             string
	SignerCert         []byte
	SignerKey          []byte
	PushCredential     []byte
	Fallback           bool
}

// Certificate parses the signer certificate
func (m *SigningMaterial) Certificate() (*x509.Certificate, error) {
	block, _ := pem.Decode(m.SignerCert)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: signer certificate is not PEM", ErrInvalidMaterial)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMaterial, err)
	}
	return cert, nil
}

// PrivateKey parses the signer key. PKCS#8, PKCS#1 and SEC 1 encodings are
// accepted.
func (m *SigningMaterial) PrivateKey() (crypto.Signer, error) {
	block, _ := pem.Decode(m.SignerKey)
	if block == nil {
		return nil, fmt.Errorf("%w: signer key is not PEM", ErrInvalidMaterial)
	}
	var key any
	var err error
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMaterial, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidMaterial, key)
	}
	return signer, nil
}

// Validate checks that the certificate and key parse and belong together
func (m *SigningMaterial) Validate() error {
	if m.PassTypeIdentifier == "" || m.TeamID == "" {
		return fmt.Errorf("%w: missing pass type identifier or team id", ErrInvalidMaterial)
	}
	cert, err := m.Certificate()
	if err != nil {
		return err
	}
	key, err := m.PrivateKey()
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(key.Public()) {
		return fmt.Errorf("%w: key does not match certificate", ErrInvalidMaterial)
	}
	return nil
}
