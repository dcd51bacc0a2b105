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

package walletobjects

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	ProtocolECv2SigningOnly = "ECv2SigningOnly"
	// DefaultRootKeysURL publishes the keys that sign intermediate callback
	// signing keys
	DefaultRootKeysURL = "https://pay.google.com/gp/m/issuer/keys"

	callbackSenderID = "GooglePayPasses"
	rootSenderID     = "Google"
	maxRootKeysBody  = 64 * 1024
)

var ErrInvalidCallback = errors.New("invalid wallet callback")

// Envelope is the signed body posted to the callback endpoint
type Envelope struct {
	Signature              string                 `json:"signature"`
	IntermediateSigningKey IntermediateSigningKey `json:"intermediateSigningKey"`
	ProtocolVersion        string                 `json:"protocolVersion"`
	SignedMessage          string                 `json:"signedMessage"`
}

type IntermediateSigningKey struct {
	SignedKey  string   `json:"signedKey"`
	Signatures []string `json:"signatures"`
}

type signedKey struct {
	KeyValue      string `json:"keyValue"`
	KeyExpiration string `json:"keyExpiration"`
}

// RootKey is one entry of the published root key set
type RootKey struct {
	KeyValue        string `json:"keyValue"`
	ProtocolVersion string `json:"protocolVersion"`
	KeyExpiration   string `json:"keyExpiration,omitempty"`
}

// Callback is the message of a save or delete event
type Callback struct {
	ClassID       string `json:"classId"`
	ObjectID      string `json:"objectId"`
	ExpTimeMillis int64  `json:"expTimeMillis"`
	EventType     string `json:"eventType"`
	Nonce         string `json:"nonce"`
}

// FetchRootKeys downloads the published root key set
func FetchRootKeys(
	ctx context.Context,
	httpClient *http.Client,
	keysURL string,
) ([]RootKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, keysURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch callback root keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &PlatformError{Operation: "fetch_root_keys", StatusCode: resp.StatusCode}
	}
	var keySet struct {
		Keys []RootKey `json:"keys"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRootKeysBody)).Decode(&keySet); err != nil {
		return nil, fmt.Errorf("decode callback root keys: %w", err)
	}
	return keySet.Keys, nil
}

// Verifier checks the signature chain of callback envelopes addressed to one
// issuer
type Verifier struct {
	issuerID string
	rootKeys []RootKey
	now      func() time.Time
}

func NewVerifier(issuerID string, rootKeys []RootKey) *Verifier {
	return &Verifier{
		issuerID: issuerID,
		rootKeys: rootKeys,
		now:      time.Now,
	}
}

// Verify checks the intermediate key against the root keys, the message
// against the intermediate key, and returns the decoded message
func (v *Verifier) Verify(env *Envelope) (*Callback, error) {
	if env.ProtocolVersion != ProtocolECv2SigningOnly {
		return nil, fmt.Errorf("%w: protocol %q", ErrInvalidCallback, env.ProtocolVersion)
	}
	now := v.now()
	if err := v.verifyIntermediate(env.IntermediateSigningKey, now); err != nil {
		return nil, err
	}
	var key signedKey
	if err := json.Unmarshal([]byte(env.IntermediateSigningKey.SignedKey), &key); err != nil {
		return nil, fmt.Errorf("%w: signed key: %w", ErrInvalidCallback, err)
	}
	if expired(key.KeyExpiration, now) {
		return nil, fmt.Errorf("%w: intermediate signing key expired", ErrInvalidCallback)
	}
	pub, err := parsePublicKey(key.KeyValue)
	if err != nil {
		return nil, err
	}
	data := lengthValue(
		callbackSenderID,
		v.issuerID,
		ProtocolECv2SigningOnly,
		env.SignedMessage,
	)
	if !verifySignature(pub, data, env.Signature) {
		return nil, fmt.Errorf("%w: message signature mismatch", ErrInvalidCallback)
	}
	return decodeCallback(env.SignedMessage, now)
}

func (v *Verifier) verifyIntermediate(key IntermediateSigningKey, now time.Time) error {
	data := lengthValue(rootSenderID, ProtocolECv2SigningOnly, key.SignedKey)
	for _, root := range v.rootKeys {
		if root.ProtocolVersion != ProtocolECv2SigningOnly || expired(root.KeyExpiration, now) {
			continue
		}
		pub, err := parsePublicKey(root.KeyValue)
		if err != nil {
			continue
		}
		for _, sig := range key.Signatures {
			if verifySignature(pub, data, sig) {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: no root key verifies the intermediate signing key", ErrInvalidCallback)
}

// DecodeUnverified decodes the message of an envelope without checking any
// signature
func DecodeUnverified(env *Envelope) (*Callback, error) {
	return decodeCallback(env.SignedMessage, time.Now())
}

func decodeCallback(message string, now time.Time) (*Callback, error) {
	var ret Callback
	if err := json.Unmarshal([]byte(message), &ret); err != nil {
		return nil, fmt.Errorf("%w: message: %w", ErrInvalidCallback, err)
	}
	if ret.ExpTimeMillis > 0 && now.UnixMilli() > ret.ExpTimeMillis {
		return nil, fmt.Errorf("%w: message expired", ErrInvalidCallback)
	}
	return &ret, nil
}

// lengthValue joins parts, each prefixed by its length as a 4-byte
// little-endian integer
func lengthValue(parts ...string) []byte {
	var ret []byte
	for _, part := range parts {
		ret = binary.LittleEndian.AppendUint32(ret, uint32(len(part))) // #nosec G115
		ret = append(ret, part...)
	}
	return ret
}

func parsePublicKey(value string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: key encoding: %w", ErrInvalidCallback, err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %w", ErrInvalidCallback, err)
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: key is %T, not ECDSA", ErrInvalidCallback, key)
	}
	return pub, nil
}

func verifySignature(pub *ecdsa.PublicKey, data []byte, sig string) bool {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], raw)
}

// expired reports whether a millisecond timestamp string lies in the past.
// An empty value never expires.
func expired(millis string, now time.Time) bool {
	if millis == "" {
		return false
	}
	v, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return true
	}
	return now.UnixMilli() > v
}
