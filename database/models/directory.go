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

	"github.com/blinklabs-io/passsync/loyalty"
)

// The tables below mirror the records owned by the CRUD application. They are
// only read here, apart from test fixtures and local development seeding.

type Business struct {
	ID   string `gorm:"primaryKey;size:64"`
	Name string `gorm:"size:255;not null"`
}

func (Business) TableName() string {
	return "business"
}

func (b *Business) ToLoyalty() *loyalty.Business {
	return &loyalty.Business{ID: b.ID, Name: b.Name}
}

type CardDesign struct {
	UpdatedAt          time.Time
	Secondary          *loyalty.LocaleStrings `gorm:"serializer:json"`
	ID                 string                 `gorm:"primaryKey;size:64"`
	BusinessID         string                 `gorm:"size:64;not null;index"`
	Name               string                 `gorm:"size:255"`
	ProgramName        string                 `gorm:"size:255"`
	RewardText         string                 `gorm:"size:255"`
	Description        string                 `gorm:"size:1024"`
	StampIcon          string                 `gorm:"size:32"`
	RewardIcon         string                 `gorm:"size:32"`
	LogoURL            string                 `gorm:"size:1024"`
	CustomStampIconURL string                 `gorm:"size:1024"`
	StripBackgroundURL string                 `gorm:"size:1024"`
	Colors             loyalty.Colors         `gorm:"embedded;embeddedPrefix:color_"`
	TotalStamps        int                    `gorm:"not null"`
	IsActive           bool                   `gorm:"index"`
}

func (CardDesign) TableName() string {
	return "card_design"
}

func (d *CardDesign) ToLoyalty() *loyalty.CardDesign {
	return &loyalty.CardDesign{
		ID:                 d.ID,
		BusinessID:         d.BusinessID,
		Name:               d.Name,
		ProgramName:        d.ProgramName,
		RewardText:         d.RewardText,
		Description:        d.Description,
		Colors:             d.Colors,
		TotalStamps:        d.TotalStamps,
		StampIcon:          d.StampIcon,
		RewardIcon:         d.RewardIcon,
		LogoURL:            d.LogoURL,
		CustomStampIconURL: d.CustomStampIconURL,
		StripBackgroundURL: d.StripBackgroundURL,
		Secondary:          d.Secondary,
		IsActive:           d.IsActive,
		UpdatedAt:          d.UpdatedAt,
	}
}

// CardDesignFromLoyalty converts a design for storage
func CardDesignFromLoyalty(d *loyalty.CardDesign) *CardDesign {
	return &CardDesign{
		ID:                 d.ID,
		BusinessID:         d.BusinessID,
		Name:               d.Name,
		ProgramName:        d.ProgramName,
		RewardText:         d.RewardText,
		Description:        d.Description,
		Colors:             d.Colors,
		TotalStamps:        d.TotalStamps,
		StampIcon:          d.StampIcon,
		RewardIcon:         d.RewardIcon,
		LogoURL:            d.LogoURL,
		CustomStampIconURL: d.CustomStampIconURL,
		StripBackgroundURL: d.StripBackgroundURL,
		Secondary:          d.Secondary,
		IsActive:           d.IsActive,
		UpdatedAt:          d.UpdatedAt,
	}
}

type Customer struct {
	UpdatedAt  time.Time
	ID         string `gorm:"primaryKey;size:64"`
	BusinessID string `gorm:"size:64;not null;index"`
	Name       string `gorm:"size:255"`
	AuthToken  string `gorm:"size:128;not null"`
	StampCount int    `gorm:"not null"`
}

func (Customer) TableName() string {
	return "customer"
}

func (c *Customer) ToLoyalty() *loyalty.Customer {
	return &loyalty.Customer{
		ID:         c.ID,
		BusinessID: c.BusinessID,
		Name:       c.Name,
		StampCount: c.StampCount,
		AuthToken:  c.AuthToken,
		UpdatedAt:  c.UpdatedAt,
	}
}
