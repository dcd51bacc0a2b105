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
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/loyalty"
)

const (
	authScheme      = "ApplePass "
	passContentType = "application/vnd.apple.pkpass"
	// updateTagLayout encodes the passesUpdatedSince tag handed to devices
	updateTagLayout = time.RFC3339Nano
)

type registerRequest struct {
	PushToken string `json:"pushToken"`
}

type serialsResponse struct {
	SerialNumbers []string `json:"serialNumbers"`
	LastUpdated   string   `json:"lastUpdated"`
}

type logRequest struct {
	Logs []string `json:"logs"`
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

// authorize returns the customer a request is made for when its token
// matches. Download links carry the token as a query parameter instead of
// the authorization header.
func (w *WebService) authorize(
	r *http.Request,
	allowQuery bool,
) (*loyalty.Customer, int) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), authScheme)
	if !ok && allowQuery {
		token = r.URL.Query().Get("token")
		ok = token != ""
	}
	if !ok || token == "" {
		return nil, http.StatusUnauthorized
	}
	serial := chi.URLParam(r, "serial")
	customer, err := w.config.Store.GetCustomer(r.Context(), serial)
	if err != nil {
		if errors.Is(err, loyalty.ErrCustomerNotFound) {
			return nil, http.StatusUnauthorized
		}
		w.config.Logger.Error(
			"failed to load customer",
			"error", err,
		)
		return nil, http.StatusInternalServerError
	}
	if customer.AuthToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(customer.AuthToken)) != 1 {
		return nil, http.StatusUnauthorized
	}
	if status := w.checkPassType(r, customer); status != http.StatusOK {
		return nil, status
	}
	return customer, http.StatusOK
}

// checkPassType rejects requests for a pass type the customer's business
// does not sign with
func (w *WebService) checkPassType(r *http.Request, customer *loyalty.Customer) int {
	if w.config.Certificates == nil {
		return http.StatusOK
	}
	material, err := w.config.Certificates.Resolve(r.Context(), customer.BusinessID)
	if err != nil {
		w.config.Logger.Error(
			"failed to resolve certificate",
			"business_id", customer.BusinessID,
			"error", err,
		)
		return http.StatusInternalServerError
	}
	if material.PassTypeIdentifier != chi.URLParam(r, "passType") {
		return http.StatusNotFound
	}
	return http.StatusOK
}

func (w *WebService) registerDevice(rw http.ResponseWriter, r *http.Request) {
	customer, status := w.authorize(r, false)
	if customer == nil {
		rw.WriteHeader(status)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil ||
		req.PushToken == "" {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	created, err := w.config.Store.UpsertRegistration(r.Context(), &models.WalletRegistration{
		CustomerID:         customer.ID,
		Platform:           string(loyalty.PlatformPassKit),
		DeviceID:           chi.URLParam(r, "device"),
		BusinessID:         customer.BusinessID,
		PassTypeIdentifier: chi.URLParam(r, "passType"),
		PushToken:          req.PushToken,
	})
	if err != nil {
		w.config.Logger.Error(
			"failed to register device",
			"customer_id", customer.ID,
			"error", err,
		)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	if created {
		w.config.Logger.Info(
			"device registered",
			"customer_id", customer.ID,
		)
		rw.WriteHeader(http.StatusCreated)
		return
	}
	rw.WriteHeader(http.StatusOK)
}

func (w *WebService) unregisterDevice(rw http.ResponseWriter, r *http.Request) {
	customer, status := w.authorize(r, false)
	if customer == nil {
		rw.WriteHeader(status)
		return
	}
	_, err := w.config.Store.DeleteRegistration(
		r.Context(),
		customer.ID,
		loyalty.PlatformPassKit,
		chi.URLParam(r, "device"),
	)
	if err != nil {
		w.config.Logger.Error(
			"failed to unregister device",
			"customer_id", customer.ID,
			"error", err,
		)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusOK)
}

func (w *WebService) listUpdatedSerials(rw http.ResponseWriter, r *http.Request) {
	var since time.Time
	if tag := r.URL.Query().Get("passesUpdatedSince"); tag != "" {
		// An unknown tag lists every pass
		if parsed, err := time.Parse(updateTagLayout, tag); err == nil {
			since = parsed
		}
	}
	serials, lastUpdated, err := w.config.Store.UpdatedSerialsForDevice(
		r.Context(),
		chi.URLParam(r, "device"),
		chi.URLParam(r, "passType"),
		since,
	)
	if err != nil {
		w.config.Logger.Error(
			"failed to list updated passes",
			"error", err,
		)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	if len(serials) == 0 {
		rw.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(rw, http.StatusOK, serialsResponse{
		SerialNumbers: serials,
		LastUpdated:   lastUpdated.UTC().Format(updateTagLayout),
	})
}

func (w *WebService) downloadPass(rw http.ResponseWriter, r *http.Request) {
	customer, status := w.authorize(r, true)
	if customer == nil {
		rw.WriteHeader(status)
		return
	}
	if w.config.Passes == nil {
		rw.WriteHeader(http.StatusNotFound)
		return
	}
	data, err := w.config.Passes.GeneratePass(r.Context(), customer.ID)
	if err != nil {
		w.config.Logger.Error(
			"failed to generate pass",
			"customer_id", customer.ID,
			"error", err,
		)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", passContentType)
	rw.Header().Set("Content-Disposition", `attachment; filename="pass.pkpass"`)
	rw.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(data)
}

func (w *WebService) deviceLog(rw http.ResponseWriter, r *http.Request) {
	var req logRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	for _, entry := range req.Logs {
		w.config.Logger.Warn(
			"device reported error",
			"message", entry,
		)
	}
	rw.WriteHeader(http.StatusOK)
}
