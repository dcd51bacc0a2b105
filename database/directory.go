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
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/loyalty"
)

// GetActiveDesign implements loyalty.DesignSource
func (d *Database) GetActiveDesign(
	ctx context.Context,
	businessID string,
) (*loyalty.CardDesign, error) {
	var tmpDesign models.CardDesign
	result := d.db(ctx).
		Where("business_id = ? AND is_active = ?", businessID, true).
		First(&tmpDesign)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: business %s", loyalty.ErrDesignNotFound, businessID)
		}
		return nil, result.Error
	}
	return tmpDesign.ToLoyalty(), nil
}

func (d *Database) GetDesign(
	ctx context.Context,
	id string,
) (*loyalty.CardDesign, error) {
	var tmpDesign models.CardDesign
	if result := d.db(ctx).First(&tmpDesign, "id = ?", id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", loyalty.ErrDesignNotFound, id)
		}
		return nil, result.Error
	}
	return tmpDesign.ToLoyalty(), nil
}

// GetCustomer implements loyalty.CustomerSource
func (d *Database) GetCustomer(
	ctx context.Context,
	id string,
) (*loyalty.Customer, error) {
	var tmpCustomer models.Customer
	if result := d.db(ctx).First(&tmpCustomer, "id = ?", id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", loyalty.ErrCustomerNotFound, id)
		}
		return nil, result.Error
	}
	return tmpCustomer.ToLoyalty(), nil
}

// GetBusiness implements loyalty.BusinessSource
func (d *Database) GetBusiness(
	ctx context.Context,
	id string,
) (*loyalty.Business, error) {
	var tmpBusiness models.Business
	if result := d.db(ctx).First(&tmpBusiness, "id = ?", id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", loyalty.ErrBusinessNotFound, id)
		}
		return nil, result.Error
	}
	return tmpBusiness.ToLoyalty(), nil
}

func (d *Database) SaveBusiness(ctx context.Context, business *loyalty.Business) error {
	tmpBusiness := models.Business{ID: business.ID, Name: business.Name}
	return d.db(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&tmpBusiness).Error
}

func (d *Database) SaveCustomer(ctx context.Context, customer *loyalty.Customer) error {
	tmpCustomer := models.Customer{
		ID:         customer.ID,
		BusinessID: customer.BusinessID,
		Name:       customer.Name,
		AuthToken:  customer.AuthToken,
		StampCount: customer.StampCount,
		UpdatedAt:  customer.UpdatedAt,
	}
	return d.db(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&tmpCustomer).Error
}

// SaveDesign stores a design. Saving an active design deactivates the other
// designs of the business in the same transaction.
func (d *Database) SaveDesign(ctx context.Context, design *loyalty.CardDesign) error {
	if err := design.Validate(); err != nil {
		return err
	}
	tmpDesign := models.CardDesignFromLoyalty(design)
	return d.db(ctx).Transaction(func(tx *gorm.DB) error {
		if design.IsActive {
			if err := deactivateDesigns(tx, design.BusinessID, design.ID); err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(tmpDesign).Error
	})
}

// ActivateDesign makes a design the single active design of its business
func (d *Database) ActivateDesign(
	ctx context.Context,
	designID string,
) (*loyalty.CardDesign, error) {
	var tmpDesign models.CardDesign
	err := d.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&tmpDesign, "id = ?", designID).Error; err != nil {
			return err
		}
		if err := deactivateDesigns(tx, tmpDesign.BusinessID, designID); err != nil {
			return err
		}
		tmpDesign.IsActive = true
		return tx.Model(&tmpDesign).Update("is_active", true).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", loyalty.ErrDesignNotFound, designID)
		}
		return nil, err
	}
	return tmpDesign.ToLoyalty(), nil
}

func deactivateDesigns(tx *gorm.DB, businessID string, exceptID string) error {
	return tx.Model(&models.CardDesign{}).
		Where("business_id = ? AND id <> ? AND is_active = ?", businessID, exceptID, true).
		Update("is_active", false).Error
}
