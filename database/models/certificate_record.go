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

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CertificateStatus is the lifecycle state of a pool entry
type CertificateStatus string

const (
	CertificateStatusAvailable CertificateStatus = "available"
	CertificateStatusAssigned  CertificateStatus = "assigned"
	CertificateStatusRevoked   CertificateStatus = "revoked"
)

// CertificateRecord is one provisioned signing identity in the certificate
// pool. The three blobs are independently encrypted; they are never stored
// in plaintext.
type CertificateRecord struct {
	CreatedAt          time.Time         `gorm:"index"`
	AssignedAt         *time.Time
	// BusinessID is NULL until the row is claimed. The unique index allows
	// at most one assigned row per business.
	BusinessID         *string           `gorm:"size:64;uniqueIndex"`
	ID                 string            `gorm:"primaryKey;size:36"`
	PassTypeIdentifier string            `gorm:"size:255;not null"`
	TeamID             string            `gorm:"size:32;not null"`
	Status             CertificateStatus `gorm:"size:16;index;not null"`
	SignerCert         []byte            `gorm:"not null"`
	SignerKey          []byte            `gorm:"not null"`
	PushCredential     []byte            `gorm:"not null"`
}

func (CertificateRecord) TableName() string {
	return "certificate_record"
}

// BeforeCreate assigns a random ID and the initial status
func (c *CertificateRecord) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CertificateStatusAvailable
	}
	return nil
}
