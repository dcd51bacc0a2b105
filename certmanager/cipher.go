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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// MinMasterSecretLength is the shortest accepted master secret
	MinMasterSecretLength = 16

	ivSize      = 12
	keySize     = 32
	hkdfContext = "passsync certificate pool v1"
)

var (
	ErrMasterSecret = errors.New("master secret too short")
	ErrCiphertext   = errors.New("malformed ciphertext")
)

// Cipher seals certificate blobs with AES-256-GCM. Each ciphertext is the
// random 96-bit IV followed by the sealed data and tag.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the pool key from a master secret with HKDF-SHA256
func NewCipher(masterSecret []byte) (*Cipher, error) {
	if len(masterSecret) < MinMasterSecretLength {
		return nil, fmt.Errorf(
			"%w: need at least %d bytes",
			ErrMasterSecret,
			MinMasterSecretLength,
		)
	}
	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, masterSecret, nil, []byte(hkdfContext))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, ivSize, ivSize+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return c.aead.Seal(out, out[:ivSize], plaintext, nil), nil
}

func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < ivSize+c.aead.Overhead() {
		return nil, ErrCiphertext
	}
	plaintext, err := c.aead.Open(
		nil,
		ciphertext[:ivSize],
		ciphertext[ivSize:],
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCiphertext, err)
	}
	return plaintext, nil
}
