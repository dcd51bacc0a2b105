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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/passsync/database"
	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/database/plugin/cache"
)

const (
	DefaultLocalTTL         = 5 * time.Minute
	DefaultSharedTTL        = time.Hour
	DefaultLocalSize        = 1024
	DefaultMaxClaimAttempts = 8

	sharedKeyPrefix = "cert:business:"
)

var (
	ErrPoolExhausted  = errors.New("certificate pool exhausted")
	ErrClaimContended = errors.New("certificate claim did not settle")
	ErrNoCipher       = errors.New("certificate pool requires a master secret")
	ErrNoStore        = errors.New("certificate pool store not configured")
)

// Store is the persistence the manager needs. It is satisfied by
// *database.Database.
type Store interface {
	CreateCertificate(ctx context.Context, record *models.CertificateRecord) error
	GetCertificate(ctx context.Context, id string) (*models.CertificateRecord, error)
	AssignedCertificate(ctx context.Context, businessID string) (*models.CertificateRecord, error)
	OldestAvailableCertificate(ctx context.Context) (*models.CertificateRecord, error)
	AssignCertificate(ctx context.Context, id string, businessID string, now time.Time) (bool, error)
	RevokeCertificate(ctx context.Context, id string) (*models.CertificateRecord, error)
}

// sealedRecord is a pool row as cached by both tiers. The blobs stay
// encrypted until a lookup needs them.
type sealedRecord struct {
	ID                 string `json:"id"`
	PassTypeIdentifier string `json:"pass_type_identifier"`
	TeamID             string `json:"team_id"`
	SignerCert         []byte `json:"signer_cert"`
	SignerKey          []byte `json:"signer_key"`
	PushCredential     []byte `json:"push_credential"`
}

func sealedFromRecord(record *models.CertificateRecord) *sealedRecord {
	return &sealedRecord{
		ID:                 record.ID,
		PassTypeIdentifier: record.PassTypeIdentifier,
		TeamID:             record.TeamID,
		SignerCert:         record.SignerCert,
		SignerKey:          record.SignerKey,
		PushCredential:     record.PushCredential,
	}
}

// Manager resolves the signing identity of a business from the certificate
// pool, with an in-process tier and an optional shared tier in front of the
// store
type Manager struct {
	logger           *slog.Logger
	promRegistry     prometheus.Registerer
	store            Store
	cipher           *Cipher
	shared           cache.CacheStore
	local            *expirable.LRU[string, *sealedRecord]
	fallback         *fallbackLoader
	fallbackPolicy   FallbackPolicy
	poolEnabled      bool
	localTTL         time.Duration
	sharedTTL        time.Duration
	maxClaimAttempts int
	metrics          managerMetrics
	now              func() time.Time
}

type ManagerOptionFunc func(*Manager)

func WithLogger(logger *slog.Logger) ManagerOptionFunc {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithPromRegistry(registry prometheus.Registerer) ManagerOptionFunc {
	return func(m *Manager) {
		m.promRegistry = registry
	}
}

// WithStore sets the pool store. Without one every lookup uses the fallback.
func WithStore(store Store) ManagerOptionFunc {
	return func(m *Manager) {
		m.store = store
	}
}

func WithCipher(c *Cipher) ManagerOptionFunc {
	return func(m *Manager) {
		m.cipher = c
	}
}

// WithSharedCache adds the shared cache tier
func WithSharedCache(shared cache.CacheStore) ManagerOptionFunc {
	return func(m *Manager) {
		m.shared = shared
	}
}

// WithPoolEnabled toggles per-business assignment from the pool
func WithPoolEnabled(enabled bool) ManagerOptionFunc {
	return func(m *Manager) {
		m.poolEnabled = enabled
	}
}

// WithFallback configures the directory holding the shared identity and the
// policy applied when it is needed. An empty pass type identifier or team id
// is read from the certificate subject.
func WithFallback(
	dir string,
	policy FallbackPolicy,
	passTypeIdentifier string,
	teamID string,
) ManagerOptionFunc {
	return func(m *Manager) {
		m.fallback = &fallbackLoader{
			dir:                dir,
			passTypeIdentifier: passTypeIdentifier,
			teamID:             teamID,
		}
		m.fallbackPolicy = policy
	}
}

func WithLocalTTL(ttl time.Duration) ManagerOptionFunc {
	return func(m *Manager) {
		m.localTTL = ttl
	}
}

func WithSharedTTL(ttl time.Duration) ManagerOptionFunc {
	return func(m *Manager) {
		m.sharedTTL = ttl
	}
}

func NewManager(opts ...ManagerOptionFunc) (*Manager, error) {
	m := &Manager{
		poolEnabled:      true,
		fallbackPolicy:   FallbackWarn,
		localTTL:         DefaultLocalTTL,
		sharedTTL:        DefaultSharedTTL,
		maxClaimAttempts: DefaultMaxClaimAttempts,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if m.fallback == nil {
		m.fallback = &fallbackLoader{}
	}
	if m.store == nil {
		m.poolEnabled = false
	}
	if m.poolEnabled && m.cipher == nil {
		return nil, ErrNoCipher
	}
	m.local = expirable.NewLRU[string, *sealedRecord](DefaultLocalSize, nil, m.localTTL)
	m.metrics.init(m.promRegistry)
	return m, nil
}

// Resolve returns the signing material of a business. Lookups go through the
// in-process tier, the shared tier and the store, then claim a pool row, and
// finally fall back to the shared identity.
func (m *Manager) Resolve(ctx context.Context, businessID string) (*SigningMaterial, error) {
	if !m.poolEnabled {
		return m.useFallback(businessID, nil)
	}
	sealed, err := m.lookup(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if sealed == nil {
		m.metrics.cacheMisses.Inc()
		record, err := m.Claim(ctx, businessID)
		if err != nil {
			if errors.Is(err, ErrPoolExhausted) {
				return m.useFallback(businessID, err)
			}
			return nil, err
		}
		sealed = sealedFromRecord(record)
		m.populate(ctx, businessID, sealed)
	}
	return m.open(sealed)
}

func (m *Manager) lookup(ctx context.Context, businessID string) (*sealedRecord, error) {
	if sealed, ok := m.local.Get(businessID); ok {
		m.metrics.cacheHits.WithLabelValues(tierLocal).Inc()
		return sealed, nil
	}
	if m.shared != nil {
		data, err := m.shared.Get(ctx, sharedKeyPrefix+businessID)
		switch {
		case err == nil:
			var sealed sealedRecord
			if err := json.Unmarshal(data, &sealed); err == nil {
				m.metrics.cacheHits.WithLabelValues(tierShared).Inc()
				m.local.Add(businessID, &sealed)
				return &sealed, nil
			}
			m.logger.Warn(
				"discarding malformed shared cache entry",
				"component", "certmanager",
				"business_id", businessID,
			)
		case !errors.Is(err, cache.ErrCacheMiss):
			// The shared tier is an optimization only
			m.logger.Warn(
				"shared certificate cache unavailable",
				"component", "certmanager",
				"error", err,
			)
		}
	}
	record, err := m.store.AssignedCertificate(ctx, businessID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	m.metrics.cacheHits.WithLabelValues(tierStore).Inc()
	sealed := sealedFromRecord(record)
	m.populate(ctx, businessID, sealed)
	return sealed, nil
}

func (m *Manager) populate(ctx context.Context, businessID string, sealed *sealedRecord) {
	m.local.Add(businessID, sealed)
	if m.shared == nil {
		return
	}
	data, err := json.Marshal(sealed)
	if err != nil {
		return
	}
	if err := m.shared.Set(ctx, sharedKeyPrefix+businessID, data, m.sharedTTL); err != nil {
		m.logger.Warn(
			"failed to populate shared certificate cache",
			"component", "certmanager",
			"error", err,
		)
	}
}

func (m *Manager) open(sealed *sealedRecord) (*SigningMaterial, error) {
	material := &SigningMaterial{
		CertificateID:      sealed.ID,
		PassTypeIdentifier: sealed.PassTypeIdentifier,
		TeamID:             sealed.TeamID,
	}
	var err error
	if material.SignerCert, err = m.cipher.Decrypt(sealed.SignerCert); err != nil {
		return nil, fmt.Errorf("certificate %s signer cert: %w", sealed.ID, err)
	}
	if material.SignerKey, err = m.cipher.Decrypt(sealed.SignerKey); err != nil {
		return nil, fmt.Errorf("certificate %s signer key: %w", sealed.ID, err)
	}
	if material.PushCredential, err = m.cipher.Decrypt(sealed.PushCredential); err != nil {
		return nil, fmt.Errorf("certificate %s push credential: %w", sealed.ID, err)
	}
	return material, nil
}

func (m *Manager) useFallback(businessID string, cause error) (*SigningMaterial, error) {
	if m.fallbackPolicy == FallbackForbid {
		return nil, errors.Join(ErrFallbackForbidden, cause)
	}
	material, err := m.fallback.load()
	if err != nil {
		return nil, errors.Join(err, cause)
	}
	m.metrics.fallbacks.Inc()
	m.logger.Warn(
		"signing with shared fallback certificate",
		"component", "certmanager",
		"business_id", businessID,
	)
	return material, nil
}

// Claim assigns the oldest available pool row to a business. A business that
// already holds a row gets that row back.
func (m *Manager) Claim(ctx context.Context, businessID string) (*models.CertificateRecord, error) {
	if m.store == nil {
		return nil, ErrPoolExhausted
	}
	for range m.maxClaimAttempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := m.store.AssignedCertificate(ctx, businessID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}
		candidate, err := m.store.OldestAvailableCertificate(ctx)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				m.metrics.claims.WithLabelValues("exhausted").Inc()
				return nil, ErrPoolExhausted
			}
			return nil, err
		}
		ok, err := m.store.AssignCertificate(ctx, candidate.ID, businessID, m.now())
		if err != nil && !errors.Is(err, database.ErrAlreadyAssigned) {
			return nil, err
		}
		if !ok {
			// Another claimant won the row, or this business won another
			m.metrics.claims.WithLabelValues("retry").Inc()
			continue
		}
		m.metrics.claims.WithLabelValues("won").Inc()
		m.logger.Info(
			"assigned pool certificate",
			"component", "certmanager",
			"business_id", businessID,
			"certificate_id", candidate.ID,
		)
		return m.store.GetCertificate(ctx, candidate.ID)
	}
	return nil, ErrClaimContended
}

// Provision extracts a PKCS#12 container and adds it to the pool as an
// available row. Empty identifiers are read from the certificate subject.
func (m *Manager) Provision(
	ctx context.Context,
	passTypeIdentifier string,
	teamID string,
	p12 []byte,
	password string,
) (*models.CertificateRecord, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	if m.cipher == nil {
		return nil, ErrNoCipher
	}
	extracted, err := ExtractPKCS12(p12, password)
	if err != nil {
		return nil, err
	}
	if passTypeIdentifier == "" {
		passTypeIdentifier = extracted.PassTypeIdentifier
	}
	if teamID == "" {
		teamID = extracted.TeamID
	}
	material := &SigningMaterial{
		PassTypeIdentifier: passTypeIdentifier,
		TeamID:             teamID,
		SignerCert:         extracted.SignerCert,
		SignerKey:          extracted.SignerKey,
		PushCredential:     extracted.PushCredential,
	}
	if err := material.Validate(); err != nil {
		return nil, err
	}
	record := &models.CertificateRecord{
		PassTypeIdentifier: passTypeIdentifier,
		TeamID:             teamID,
		Status:             models.CertificateStatusAvailable,
	}
	if record.SignerCert, err = m.cipher.Encrypt(material.SignerCert); err != nil {
		return nil, err
	}
	if record.SignerKey, err = m.cipher.Encrypt(material.SignerKey); err != nil {
		return nil, err
	}
	if record.PushCredential, err = m.cipher.Encrypt(material.PushCredential); err != nil {
		return nil, err
	}
	if err := m.store.CreateCertificate(ctx, record); err != nil {
		return nil, err
	}
	m.logger.Info(
		"provisioned pool certificate",
		"component", "certmanager",
		"certificate_id", record.ID,
		"pass_type_identifier", passTypeIdentifier,
	)
	return record, nil
}

// Revoke retires a pool row and purges it from both cache tiers
func (m *Manager) Revoke(ctx context.Context, id string) error {
	if m.store == nil {
		return ErrNoStore
	}
	previous, err := m.store.RevokeCertificate(ctx, id)
	if err != nil {
		return err
	}
	if previous.BusinessID != nil {
		m.Invalidate(ctx, *previous.BusinessID)
	}
	m.logger.Info(
		"revoked pool certificate",
		"component", "certmanager",
		"certificate_id", id,
	)
	return nil
}

// Invalidate drops the cached identity of a business from both tiers
func (m *Manager) Invalidate(ctx context.Context, businessID string) {
	m.local.Remove(businessID)
	if m.shared == nil {
		return
	}
	if err := m.shared.Delete(ctx, sharedKeyPrefix+businessID); err != nil {
		m.logger.Warn(
			"failed to purge shared certificate cache",
			"component", "certmanager",
			"business_id", businessID,
			"error", err,
		)
	}
}
