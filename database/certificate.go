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

package database

import (
	"context"
	"errors"
	"time"

	"github.com/blinklabs-io/passsync/database/models"
)

// ErrAlreadyAssigned is returned when a business already holds a certificate
var ErrAlreadyAssigned = errors.New("business already has an assigned certificate")

func (d *Database) CreateCertificate(
	ctx context.Context,
	record *models.CertificateRecord,
) error {
	return d.db(ctx).Create(record).Error
}

func (d *Database) GetCertificate(
	ctx context.Context,
	id string,
) (*models.CertificateRecord, error) {
	var tmpRecord models.CertificateRecord
	if err := d.db(ctx).First(&tmpRecord, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "certificate "+id)
	}
	return &tmpRecord, nil
}

// AssignedCertificate returns the certificate currently assigned to a business
func (d *Database) AssignedCertificate(
	ctx context.Context,
	businessID string,
) (*models.CertificateRecord, error) {
	var tmpRecord models.CertificateRecord
	err := d.db(ctx).
		Where(
			"business_id = ? AND status = ?",
			businessID,
			models.CertificateStatusAssigned,
		).
		First(&tmpRecord).Error
	if err != nil {
		return nil, notFound(err, "certificate for business "+businessID)
	}
	return &tmpRecord, nil
}

// OldestAvailableCertificate returns the next pool row to hand out
func (d *Database) OldestAvailableCertificate(
	ctx context.Context,
) (*models.CertificateRecord, error) {
	var tmpRecord models.CertificateRecord
	err := d.db(ctx).
		Where(
			"status = ? AND business_id IS NULL",
			models.CertificateStatusAvailable,
		).
		Order("created_at ASC").
		Order("id ASC").
		First(&tmpRecord).Error
	if err != nil {
		return nil, notFound(err, "available certificate")
	}
	return &tmpRecord, nil
}

// AssignCertificate hands a pool row to a business. The update only applies
// while the row is still available, so exactly one of several concurrent
// callers gets true for a given row. ErrAlreadyAssigned means the business
// won a different row in the meantime.
func (d *Database) AssignCertificate(
	ctx context.Context,
	id string,
	businessID string,
	now time.Time,
) (bool, error) {
	result := d.db(ctx).
		Model(&models.CertificateRecord{}).
		Where(
			"id = ? AND status = ? AND business_id IS NULL",
			id,
			models.CertificateStatusAvailable,
		).
		Updates(map[string]any{
			"status":      models.CertificateStatusAssigned,
			"business_id": businessID,
			"assigned_at": now.UTC(),
		})
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, ErrAlreadyAssigned
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RevokeCertificate retires a row and releases its business binding. The
// record is returned as it was before revocation.
func (d *Database) RevokeCertificate(
	ctx context.Context,
	id string,
) (*models.CertificateRecord, error) {
	tmpRecord, err := d.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}
	err = d.db(ctx).
		Model(&models.CertificateRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      models.CertificateStatusRevoked,
			"business_id": nil,
		}).Error
	if err != nil {
		return nil, err
	}
	return tmpRecord, nil
}

// ListCertificates returns pool rows, optionally filtered by status
func (d *Database) ListCertificates(
	ctx context.Context,
	status models.CertificateStatus,
) ([]models.CertificateRecord, error) {
	var ret []models.CertificateRecord
	query := d.db(ctx).Order("created_at ASC").Order("id ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Find(&ret).Error; err != nil {
		return nil, err
	}
	return ret, nil
}

// CertificatePoolStats counts pool rows by status
func (d *Database) CertificatePoolStats(
	ctx context.Context,
) (map[models.CertificateStatus]int64, error) {
	var rows []struct {
		Status models.CertificateStatus
		Count  int64
	}
	err := d.db(ctx).
		Model(&models.CertificateRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	ret := map[models.CertificateStatus]int64{
		models.CertificateStatusAvailable: 0,
		models.CertificateStatusAssigned:  0,
		models.CertificateStatusRevoked:   0,
	}
	for _, row := range rows {
		ret[row.Status] = row.Count
	}
	return ret, nil
}
