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

import "time"

// StripImageRecord points at one rendered strip image variant. The rows of a
// design are always replaced as a set.
type StripImageRecord struct {
	CreatedAt  time.Time
	DesignID   string `gorm:"size:64;not null;uniqueIndex:idx_strip_image,priority:1"`
	Platform   string `gorm:"size:32;not null;uniqueIndex:idx_strip_image,priority:3"`
	Resolution string `gorm:"size:16;not null;uniqueIndex:idx_strip_image,priority:4"`
	AssetKey   string `gorm:"size:512;not null"`
	URL        string `gorm:"size:1024;not null"`
	VisualHash string `gorm:"size:64;not null"`
	ID         uint   `gorm:"primarykey"`
	StampCount int    `gorm:"not null;uniqueIndex:idx_strip_image,priority:2"`
}

func (StripImageRecord) TableName() string {
	return "strip_image"
}
