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

	"gorm.io/gorm"

	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/loyalty"
)

// UpsertRegistration records a binding between a customer and a wallet
// instance. An existing binding has its push token refreshed. The returned
// bool reports whether a new row was created.
func (d *Database) UpsertRegistration(
	ctx context.Context,
	reg *models.WalletRegistration,
) (bool, error) {
	if reg.PassUpdatedAt.IsZero() {
		reg.PassUpdatedAt = time.Now().UTC()
	}
	created := false
	err := d.db(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.WalletRegistration
		err := tx.Where(
			"customer_id = ? AND platform = ? AND device_id = ?",
			reg.CustomerID,
			reg.Platform,
			reg.DeviceID,
		).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			return tx.Create(reg).Error
		}
		if err != nil {
			return err
		}
		reg.ID = existing.ID
		reg.CreatedAt = existing.CreatedAt
		reg.PassUpdatedAt = existing.PassUpdatedAt
		return tx.Model(&existing).Updates(map[string]any{
			"push_token":           reg.PushToken,
			"pass_type_identifier": reg.PassTypeIdentifier,
			"business_id":          reg.BusinessID,
		}).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			// Lost a race with a concurrent registration of the same binding
			return false, nil
		}
		return false, err
	}
	return created, nil
}

// DeleteRegistration removes a binding and reports whether it existed
func (d *Database) DeleteRegistration(
	ctx context.Context,
	customerID string,
	platform loyalty.Platform,
	deviceID string,
) (bool, error) {
	result := d.db(ctx).
		Where(
			"customer_id = ? AND platform = ? AND device_id = ?",
			customerID,
			string(platform),
			deviceID,
		).
		Delete(&models.WalletRegistration{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (d *Database) RegistrationsForCustomer(
	ctx context.Context,
	customerID string,
	platform loyalty.Platform,
) ([]models.WalletRegistration, error) {
	var ret []models.WalletRegistration
	err := d.db(ctx).
		Where("customer_id = ? AND platform = ?", customerID, string(platform)).
		Order("id ASC").
		Find(&ret).Error
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (d *Database) RegistrationsForBusiness(
	ctx context.Context,
	businessID string,
	platform loyalty.Platform,
) ([]models.WalletRegistration, error) {
	var ret []models.WalletRegistration
	err := d.db(ctx).
		Where("business_id = ? AND platform = ?", businessID, string(platform)).
		Order("id ASC").
		Find(&ret).Error
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// UpdatedSerialsForDevice returns the serial numbers registered on a device
// whose pass changed after since, along with the newest change time. A zero
// since matches every registered pass.
func (d *Database) UpdatedSerialsForDevice(
	ctx context.Context,
	deviceID string,
	passTypeIdentifier string,
	since time.Time,
) ([]string, time.Time, error) {
	var regs []models.WalletRegistration
	query := d.db(ctx).
		Where(
			"device_id = ? AND platform = ? AND pass_type_identifier = ?",
			deviceID,
			string(loyalty.PlatformPassKit),
			passTypeIdentifier,
		)
	if !since.IsZero() {
		query = query.Where("pass_updated_at > ?", since.UTC())
	}
	if err := query.Order("customer_id ASC").Find(&regs).Error; err != nil {
		return nil, time.Time{}, err
	}
	serials := make([]string, 0, len(regs))
	var lastUpdated time.Time
	for _, reg := range regs {
		serials = append(serials, reg.CustomerID)
		if reg.PassUpdatedAt.After(lastUpdated) {
			lastUpdated = reg.PassUpdatedAt
		}
	}
	return serials, lastUpdated, nil
}

// TouchCustomerPasses marks every pass of a customer as changed at now
func (d *Database) TouchCustomerPasses(
	ctx context.Context,
	customerID string,
	now time.Time,
) error {
	return d.db(ctx).
		Model(&models.WalletRegistration{}).
		Where("customer_id = ?", customerID).
		Update("pass_updated_at", now.UTC()).Error
}

// TouchBusinessPasses marks every pass of a business as changed at now
func (d *Database) TouchBusinessPasses(
	ctx context.Context,
	businessID string,
	now time.Time,
) error {
	return d.db(ctx).
		Model(&models.WalletRegistration{}).
		Where("business_id = ?", businessID).
		Update("pass_updated_at", now.UTC()).Error
}
