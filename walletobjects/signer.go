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
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SaveURLPrefix = "https://pay.google.com/gp/v/save/"

	saveAudience = "google"
	saveType     = "savetowallet"
)

// ServiceAccount holds the fields of a service account key file used for
// signing save tokens
type ServiceAccount struct {
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
}

func ParseServiceAccount(data []byte) (*ServiceAccount, error) {
	var ret ServiceAccount
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	if ret.ClientEmail == "" || ret.PrivateKey == "" {
		return nil, errors.New("service account key is missing client_email or private_key")
	}
	return &ret, nil
}

// Signer issues save tokens that embed the full class and object, so a first
// save needs no prior create call
type Signer struct {
	issuer  string
	keyID   string
	key     *rsa.PrivateKey
	origins []string
	now     func() time.Time
}

func NewSigner(account *ServiceAccount, origins []string) (*Signer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(account.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	return &Signer{
		issuer:  account.ClientEmail,
		keyID:   account.PrivateKeyID,
		key:     key,
		origins: origins,
		now:     time.Now,
	}, nil
}

type savePayload struct {
	LoyaltyClasses []*ClassPayload  `json:"loyaltyClasses,omitempty"`
	LoyaltyObjects []*ObjectPayload `json:"loyaltyObjects"`
}

// SaveClaims are the claims of a save token. The audience is a plain string
// rather than the array form RegisteredClaims emits.
type SaveClaims struct {
	jwt.RegisteredClaims
	Audience string      `json:"aud"`
	Type     string      `json:"typ"`
	Origins  []string    `json:"origins"`
	Payload  savePayload `json:"payload"`
}

// SaveToken signs a save token for an object. class may be nil when the class
// is known to exist.
func (s *Signer) SaveToken(class *ClassPayload, object *ObjectPayload) (string, error) {
	if object == nil {
		return "", fmt.Errorf("%w: no object", ErrInvalidObject)
	}
	if err := object.Validate(); err != nil {
		return "", err
	}
	payload := savePayload{LoyaltyObjects: []*ObjectPayload{object}}
	if class != nil {
		if err := class.Validate(); err != nil {
			return "", err
		}
		payload.LoyaltyClasses = []*ClassPayload{class}
	}
	claims := SaveClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
		Audience: saveAudience,
		Type:     saveType,
		Origins:  s.origins,
		Payload:  payload,
	}
	if claims.Origins == nil {
		claims.Origins = []string{}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.keyID != "" {
		token.Header["kid"] = s.keyID
	}
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign save token: %w", err)
	}
	return signed, nil
}

// SaveURL returns the add-to-wallet link for an object
func (s *Signer) SaveURL(class *ClassPayload, object *ObjectPayload) (string, error) {
	token, err := s.SaveToken(class, object)
	if err != nil {
		return "", err
	}
	return SaveURLPrefix + token, nil
}
