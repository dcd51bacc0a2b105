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
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the remote object does not exist. Updates
	// to objects the holder never saved hit this and are ignored by callers.
	ErrNotFound = errors.New("wallet object not found")
	// ErrThrottled is a policy decision, not a fault
	ErrThrottled     = errors.New("notification throttled")
	ErrInvalidObject = errors.New("invalid wallet payload")
)

// PlatformError reports an unexpected response from the wallet API
type PlatformError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *PlatformError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("wallet api %s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf(
		"wallet api %s: status %d: %s",
		e.Operation,
		e.StatusCode,
		e.Body,
	)
}

// Retryable reports whether the failure is likely transient
func (e *PlatformError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
