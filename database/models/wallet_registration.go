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

// WalletRegistration binds a customer to a concrete wallet instance. For the
// passkit platform DeviceID is the device library identifier and PushToken is
// required. For the walletobjects platform DeviceID is the object ID.
type WalletRegistration struct {
	CreatedAt          time.Time
	UpdatedAt          time.Time
	PassUpdatedAt      time.Time `gorm:"index"`
	CustomerID         string    `gorm:"size:64;not null;uniqueIndex:idx_wallet_registration,priority:1"`
	Platform           string    `gorm:"size:32;not null;uniqueIndex:idx_wallet_registration,priority:2"`
	DeviceID           string    `gorm:"size:255;not null;uniqueIndex:idx_wallet_registration,priority:3"`
	BusinessID         string    `gorm:"size:64;not null;index"`
	PassTypeIdentifier string    `gorm:"size:255"`
	PushToken          string    `gorm:"size:255"`
	ID                 uint      `gorm:"primarykey"`
}

func (WalletRegistration) TableName() string {
	return "wallet_registration"
}
