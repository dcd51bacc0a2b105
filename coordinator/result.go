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

package coordinator

import "errors"

type Status string

const (
	StatusOK        Status = "ok"
	StatusSkipped   Status = "skipped"
	StatusThrottled Status = "throttled"
	StatusFailed    Status = "failed"
)

// PlatformResult is the outcome of syncing one platform. Notified and Failed
// count devices or objects reached by the sync.
type PlatformResult struct {
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Notified int    `json:"notified,omitempty"`
	Failed   int    `json:"failed,omitempty"`
}

// SyncResult is returned to the caller of a mutation. It never turns the
// mutation itself into a failure.
type SyncResult struct {
	PassKit       PlatformResult `json:"passkit"`
	WalletObjects PlatformResult `json:"walletobjects"`
}

// WalletUrls are the add-to-wallet links of a customer. A platform whose link
// could not be built has an empty URL and the reason in Result.
type WalletUrls struct {
	PassKit       string     `json:"passkit,omitempty"`
	WalletObjects string     `json:"walletobjects,omitempty"`
	Result        SyncResult `json:"result"`
}

func ok(notified int, failedCount int) PlatformResult {
	return PlatformResult{Status: StatusOK, Notified: notified, Failed: failedCount}
}

func skipped(reason error) PlatformResult {
	ret := PlatformResult{Status: StatusSkipped}
	if reason != nil {
		ret.Error = reason.Error()
	}
	return ret
}

func failed(err error) PlatformResult {
	return PlatformResult{Status: StatusFailed, Error: err.Error()}
}

// Err returns the failure of a platform as an error, or nil
func (r PlatformResult) Err() error {
	if r.Status != StatusFailed {
		return nil
	}
	return errors.New(r.Error)
}
