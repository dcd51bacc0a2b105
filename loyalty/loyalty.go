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

// Package loyalty holds the records the pass sync engine consumes from the
// surrounding CRUD application, and the contracts used to fetch them.
package loyalty

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	MinTotalStamps = 1
	MaxTotalStamps = 24
)

var (
	ErrDesignNotFound   = errors.New("design not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrBusinessNotFound = errors.New("business not found")
	ErrInvalidDesign    = errors.New("invalid design")
)

// Platform identifies a wallet ecosystem
type Platform string

const (
	// PlatformPassKit is the signed-archive platform with device push refresh
	PlatformPassKit Platform = "passkit"
	// PlatformWalletObjects is the REST class/object platform with save tokens
	PlatformWalletObjects Platform = "walletobjects"
)

var Platforms = []Platform{PlatformPassKit, PlatformWalletObjects}

func (p Platform) Valid() bool {
	switch p {
	case PlatformPassKit, PlatformWalletObjects:
		return true
	default:
		return false
	}
}

// Colors are "#rrggbb" strings
type Colors struct {
	Background  string `json:"background"`
	Foreground  string `json:"foreground"`
	Label       string `json:"label"`
	StampFilled string `json:"stamp_filled"`
	StampEmpty  string `json:"stamp_empty"`
	Accent      string `json:"accent"`
}

// LocaleStrings are alternate-language texts for a design. Empty values mean
// "same as the primary language".
type LocaleStrings struct {
	Language     string `json:"language"`
	ProgramName  string `json:"program_name,omitempty"`
	RewardText   string `json:"reward_text,omitempty"`
	StampsLabel  string `json:"stamps_label,omitempty"`
	RewardLabel  string `json:"reward_label,omitempty"`
	Description  string `json:"description,omitempty"`
	CustomerName string `json:"customer_name,omitempty"`
}

// CardDesign is the visual and text configuration of a business's card
type CardDesign struct {
	ID                 string         `json:"id"`
	BusinessID         string         `json:"business_id"`
	Name               string         `json:"name"`
	ProgramName        string         `json:"program_name"`
	RewardText         string         `json:"reward_text"`
	Description        string         `json:"description"`
	Colors             Colors         `json:"colors"`
	TotalStamps        int            `json:"total_stamps"`
	StampIcon          string         `json:"stamp_icon"`
	RewardIcon         string         `json:"reward_icon"`
	LogoURL            string         `json:"logo_url,omitempty"`
	CustomStampIconURL string         `json:"custom_stamp_icon_url,omitempty"`
	StripBackgroundURL string         `json:"strip_background_url,omitempty"`
	Secondary          *LocaleStrings `json:"secondary,omitempty"`
	IsActive           bool           `json:"is_active"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func (d *CardDesign) Validate() error {
	if d.ID == "" || d.BusinessID == "" {
		return fmt.Errorf("%w: missing id or business id", ErrInvalidDesign)
	}
	if d.TotalStamps < MinTotalStamps || d.TotalStamps > MaxTotalStamps {
		return fmt.Errorf(
			"%w: total stamps %d outside [%d, %d]",
			ErrInvalidDesign,
			d.TotalStamps,
			MinTotalStamps,
			MaxTotalStamps,
		)
	}
	for name, c := range map[string]string{
		"background":   d.Colors.Background,
		"foreground":   d.Colors.Foreground,
		"label":        d.Colors.Label,
		"stamp_filled": d.Colors.StampFilled,
		"stamp_empty":  d.Colors.StampEmpty,
		"accent":       d.Colors.Accent,
	} {
		if c != "" && !hexColorRe.MatchString(c) {
			return fmt.Errorf("%w: color %s=%q", ErrInvalidDesign, name, c)
		}
	}
	return nil
}

// VisualHash covers every field that influences rendered strip images. Two
// designs with the same hash render byte-identical images.
func (d *CardDesign) VisualHash() string {
	h := sha256.New()
	fields := []string{
		d.Colors.Background,
		d.Colors.Foreground,
		d.Colors.StampFilled,
		d.Colors.StampEmpty,
		d.Colors.Accent,
		fmt.Sprintf("%d", d.TotalStamps),
		d.StampIcon,
		d.RewardIcon,
		d.CustomStampIconURL,
		d.StripBackgroundURL,
	}
	h.Write([]byte(strings.Join(fields, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

// ClampStamps bounds a stamp count to [0, TotalStamps]
func (d *CardDesign) ClampStamps(count int) int {
	if count < 0 {
		return 0
	}
	if count > d.TotalStamps {
		return d.TotalStamps
	}
	return count
}

type Customer struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	Name       string    `json:"name"`
	StampCount int       `json:"stamp_count"`
	AuthToken  string    `json:"auth_token"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Business struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DesignSource resolves the active design for a business
type DesignSource interface {
	GetActiveDesign(ctx context.Context, businessID string) (*CardDesign, error)
}

type CustomerSource interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
}

type BusinessSource interface {
	GetBusiness(ctx context.Context, id string) (*Business, error)
}

// AssetUploader stores a blob under path and returns its public URL
type AssetUploader interface {
	UploadAsset(ctx context.Context, path string, data []byte) (string, error)
}

// Directory bundles the read-side collaborators
type Directory interface {
	DesignSource
	CustomerSource
	BusinessSource
}
