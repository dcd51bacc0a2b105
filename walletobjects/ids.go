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
	"encoding/hex"
	"strings"
)

// ClassID is the id of the class shared by every card of a business
func ClassID(issuerID string, businessID string) string {
	return issuerID + "." + encodeID(businessID)
}

// ObjectID is the id of a customer's card. It is derived rather than stored
// so a card can be updated without knowing whether it was ever saved.
func ObjectID(issuerID string, customerID string) string {
	return issuerID + "." + encodeID(customerID)
}

// SuffixOf strips the issuer prefix from a class or object id and returns
// the business or customer id it was derived from
func SuffixOf(issuerID string, id string) (string, bool) {
	suffix, ok := strings.CutPrefix(id, issuerID+".")
	if !ok || suffix == "" {
		return "", false
	}
	return decodeID(suffix)
}

// encodeID keeps [A-Za-z0-9.-] and writes every other byte as '_' plus two
// hex digits, so the mapping can be reversed
func encodeID(s string) string {
	var sb strings.Builder
	for i := range len(s) {
		b := s[i]
		switch {
		case b >= 'a' && b <= 'z',
			b >= 'A' && b <= 'Z',
			b >= '0' && b <= '9',
			b == '.', b == '-':
			sb.WriteByte(b)
		default:
			sb.WriteByte('_')
			sb.WriteString(strings.ToUpper(hex.EncodeToString([]byte{b})))
		}
	}
	return sb.String()
}

func decodeID(s string) (string, bool) {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			sb.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", false
		}
		b, err := hex.DecodeString(s[i+1 : i+3])
		if err != nil {
			return "", false
		}
		sb.WriteByte(b[0])
		i += 2
	}
	return sb.String(), true
}
