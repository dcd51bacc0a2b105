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

	"github.com/blinklabs-io/passsync/database/models"
	"github.com/blinklabs-io/passsync/loyalty"
)

// ReplaceStripImages swaps the full strip image set of a design within txn.
// Assets of the previous set are deleted once txn commits.
func (d *Database) ReplaceStripImages(
	txn *Txn,
	designID string,
	records []models.StripImageRecord,
) error {
	if txn == nil || !txn.readWrite {
		return errors.New("strip images require a read-write transaction")
	}
	tx := txn.Metadata()
	var previous []models.StripImageRecord
	if err := tx.Where("design_id = ?", designID).Find(&previous).Error; err != nil {
		return err
	}
	if len(previous) > 0 {
		if err := tx.Where("design_id = ?", designID).
			Delete(&models.StripImageRecord{}).Error; err != nil {
			return err
		}
	}
	for i := range records {
		records[i].ID = 0
		records[i].DesignID = designID
	}
	if len(records) > 0 {
		if err := tx.CreateInBatches(records, 100).Error; err != nil {
			return err
		}
	}
	kept := make(map[string]struct{}, len(records))
	for _, record := range records {
		kept[record.AssetKey] = struct{}{}
	}
	for _, record := range previous {
		if _, ok := kept[record.AssetKey]; ok {
			continue
		}
		txn.DeleteAssetOnCommit(record.AssetKey)
	}
	return nil
}

// StripImageURL looks up one rendered variant
func (d *Database) StripImageURL(
	ctx context.Context,
	designID string,
	stampCount int,
	platform loyalty.Platform,
	resolution string,
) (string, error) {
	var tmpRecord models.StripImageRecord
	err := d.db(ctx).
		Where(
			"design_id = ? AND stamp_count = ? AND platform = ? AND resolution = ?",
			designID,
			stampCount,
			string(platform),
			resolution,
		).
		First(&tmpRecord).Error
	if err != nil {
		return "", notFound(err, "strip image")
	}
	return tmpRecord.URL, nil
}

// StripImages returns the current strip image set of a design
func (d *Database) StripImages(
	ctx context.Context,
	designID string,
) ([]models.StripImageRecord, error) {
	var ret []models.StripImageRecord
	err := d.db(ctx).
		Where("design_id = ?", designID).
		Order("platform ASC").
		Order("stamp_count ASC").
		Order("resolution ASC").
		Find(&ret).Error
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// StripImagesCurrent reports whether a design has a strip image set rendered
// from its current visual config
func (d *Database) StripImagesCurrent(
	ctx context.Context,
	design *loyalty.CardDesign,
) (bool, error) {
	var count int64
	err := d.db(ctx).
		Model(&models.StripImageRecord{}).
		Where("design_id = ? AND visual_hash = ?", design.ID, design.VisualHash()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
