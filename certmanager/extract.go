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
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"
)

// oidUserID carries the pass type identifier in signing certificates
var oidUserID = asn1.ObjectIdentifier{0, 9, 2342, 19200300, 100, 1, 1}

// ExtractionError reports a PKCS#12 container that cannot yield signing material
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pkcs12 extraction: %s: %v", e.Reason, e.Err)
	}
	return "pkcs12 extraction: " + e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extracted is the PEM material split out of a PKCS#12 container
type Extracted struct {
	Certificate *x509.Certificate
	SignerCert  []byte
	SignerKey   []byte
	// PushCredential is the certificate and key concatenated
	PushCredential []byte
	// PassTypeIdentifier and TeamID are read from the certificate subject
	// when present
	PassTypeIdentifier string
	TeamID             string
}

// ExtractPKCS12 splits a PKCS#12 container into signer certificate, key and
// the combined push credential
func ExtractPKCS12(data []byte, password string) (*Extracted, error) {
	if len(data) == 0 {
		return nil, &ExtractionError{Reason: "empty container"}
	}
	key, cert, _, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, &ExtractionError{Reason: "decode", Err: err}
	}
	if cert == nil {
		return nil, &ExtractionError{Reason: "no certificate in container"}
	}
	if key == nil {
		return nil, &ExtractionError{Reason: "no private key in container"}
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, &ExtractionError{Reason: "encode private key", Err: err}
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	ret := &Extracted{
		Certificate:    cert,
		SignerCert:     certPEM,
		SignerKey:      keyPEM,
		PushCredential: append(append([]byte{}, certPEM...), keyPEM...),
	}
	ret.PassTypeIdentifier, ret.TeamID = subjectIdentity(cert)
	return ret, nil
}

func subjectIdentity(cert *x509.Certificate) (string, string) {
	var passTypeIdentifier, teamID string
	for _, name := range cert.Subject.Names {
		if name.Type.Equal(oidUserID) {
			if v, ok := name.Value.(string); ok {
				passTypeIdentifier = v
			}
		}
	}
	if len(cert.Subject.OrganizationalUnit) > 0 {
		teamID = cert.Subject.OrganizationalUnit[0]
	}
	return passTypeIdentifier, teamID
}
