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

package webservice

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/blinklabs-io/passsync/walletobjects"
)

// walletObjectsCallback acknowledges duplicates and processed callbacks
// alike. A 5xx makes the platform deliver the callback again.
func (w *WebService) walletObjectsCallback(rw http.ResponseWriter, r *http.Request) {
	var env walletobjects.Envelope
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&env); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, err := w.config.Callbacks.HandleEnvelope(r.Context(), &env); err != nil {
		if errors.Is(err, walletobjects.ErrInvalidCallback) {
			w.config.Logger.Warn(
				"rejected wallet objects callback",
				"error", err,
			)
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		w.config.Logger.Error(
			"failed to apply wallet objects callback",
			"error", err,
		)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusOK)
}
