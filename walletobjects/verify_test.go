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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verifyIssuer = "3388000000012345678"

type testKeys struct {
	root         *ecdsa.PrivateKey
	intermediate *ecdsa.PrivateKey
}

func newTestKeys(t *testing.T) *testKeys {
	t.Helper()
	root, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	intermediate, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return &testKeys{root: root, intermediate: intermediate}
}

func encodePublicKey(t *testing.T, key *ecdsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(der)
}

func sign(t *testing.T, key *ecdsa.PrivateKey, data []byte) string {
	t.Helper()
	digest := sha256.Sum256(data)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(sig)
}

func (k *testKeys) rootKeys(t *testing.T) []RootKey {
	return []RootKey{
		{KeyValue: encodePublicKey(t, k.root), ProtocolVersion: ProtocolECv2SigningOnly},
	}
}

func (k *testKeys) envelope(t *testing.T, cb Callback, keyExpiration time.Time) *Envelope {
	t.Helper()
	keyJSON, err := json.Marshal(signedKey{
		KeyValue:      encodePublicKey(t, k.intermediate),
		KeyExpiration: strconv.FormatInt(keyExpiration.UnixMilli(), 10),
	})
	require.NoError(t, err)
	message, err := json.Marshal(cb)
	require.NoError(t, err)
	return &Envelope{
		ProtocolVersion: ProtocolECv2SigningOnly,
		IntermediateSigningKey: IntermediateSigningKey{
			SignedKey: string(keyJSON),
			Signatures: []string{
				sign(t, k.root, lengthValue(rootSenderID, ProtocolECv2SigningOnly, string(keyJSON))),
			},
		},
		SignedMessage: string(message),
		Signature: sign(
			t,
			k.intermediate,
			lengthValue(callbackSenderID, verifyIssuer, ProtocolECv2SigningOnly, string(message)),
		),
	}
}

func testCallback() Callback {
	return Callback{
		ClassID:       verifyIssuer + ".b1",
		ObjectID:      verifyIssuer + ".c1",
		EventType:     EventSave,
		Nonce:         "n-1",
		ExpTimeMillis: time.Now().Add(time.Hour).UnixMilli(),
	}
}

func TestLengthValue(t *testing.T) {
	assert.Equal(
		t,
		[]byte{2, 0, 0, 0, 'h', 'i', 0, 0, 0, 0, 1, 0, 0, 0, 'x'},
		lengthValue("hi", "", "x"),
	)
}

func TestVerify(t *testing.T) {
	keys := newTestKeys(t)
	verifier := NewVerifier(verifyIssuer, keys.rootKeys(t))
	env := keys.envelope(t, testCallback(), time.Now().Add(time.Hour))

	cb, err := verifier.Verify(env)
	require.NoError(t, err)
	assert.Equal(t, testCallback().Nonce, cb.Nonce)
	assert.Equal(t, EventSave, cb.EventType)
}

func TestVerifyRejects(t *testing.T) {
	keys := newTestKeys(t)
	verifier := NewVerifier(verifyIssuer, keys.rootKeys(t))
	future := time.Now().Add(time.Hour)

	tampered := keys.envelope(t, testCallback(), future)
	tampered.SignedMessage = `{"eventType":"del","nonce":"n-1"}`
	_, err := verifier.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalidCallback)

	expiredKey := keys.envelope(t, testCallback(), time.Now().Add(-time.Minute))
	_, err = verifier.Verify(expiredKey)
	require.ErrorIs(t, err, ErrInvalidCallback)

	expiredMessage := testCallback()
	expiredMessage.ExpTimeMillis = time.Now().Add(-time.Minute).UnixMilli()
	_, err = verifier.Verify(keys.envelope(t, expiredMessage, future))
	require.ErrorIs(t, err, ErrInvalidCallback)

	otherIssuer := NewVerifier("1111", keys.rootKeys(t))
	_, err = otherIssuer.Verify(keys.envelope(t, testCallback(), future))
	require.ErrorIs(t, err, ErrInvalidCallback)

	otherRoot := NewVerifier(verifyIssuer, newTestKeys(t).rootKeys(t))
	_, err = otherRoot.Verify(keys.envelope(t, testCallback(), future))
	require.ErrorIs(t, err, ErrInvalidCallback)

	wrongProtocol := keys.envelope(t, testCallback(), future)
	wrongProtocol.ProtocolVersion = "ECv1"
	_, err = verifier.Verify(wrongProtocol)
	require.ErrorIs(t, err, ErrInvalidCallback)

	expiredRoot := keys.rootKeys(t)
	expiredRoot[0].KeyExpiration = strconv.FormatInt(time.Now().Add(-time.Hour).UnixMilli(), 10)
	_, err = NewVerifier(verifyIssuer, expiredRoot).Verify(keys.envelope(t, testCallback(), future))
	require.ErrorIs(t, err, ErrInvalidCallback)
}
