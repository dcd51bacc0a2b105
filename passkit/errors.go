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

package passkit

import (
	"errors"
	"fmt"
)

var (
	// ErrCertificate matches every CertificateError
	ErrCertificate = errors.New("certificate material missing or corrupt")
	ErrInvalidPass = errors.New("invalid pass descriptor")
)

// CertificateError reports signing material that cannot be used
type CertificateError struct {
	Err error
}

func (e *CertificateError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCertificate, e.Err)
}

func (e *CertificateError) Unwrap() []error {
	return []error{ErrCertificate, e.Err}
}

// SigningError reports a failure producing the manifest signature
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("sign manifest: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}
