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

package walletobjects

import (
	"cmp"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/stripimage"
)

const (
	DefaultLanguage = "en"

	StateActive    = "ACTIVE"
	StateCompleted = "COMPLETED"
	StateExpired   = "EXPIRED"
	StateInactive  = "INACTIVE"

	ReviewStatusUnderReview = "UNDER_REVIEW"
	BarcodeTypeQR           = "QR_CODE"

	textModuleReward  = "reward"
	textModuleProgram = "program"
)

var (
	idRe       = regexp.MustCompile(`^[0-9]+\.[A-Za-z0-9._-]+$`)
	hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

type TranslatedString struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type LocalizedString struct {
	DefaultValue     *TranslatedString  `json:"defaultValue"`
	TranslatedValues []TranslatedString `json:"translatedValues,omitempty"`
}

// localized returns nil when value is empty. A translation identical to the
// default value is left out.
func localized(value string, language string, translation string) *LocalizedString {
	if value == "" {
		return nil
	}
	ret := &LocalizedString{
		DefaultValue: &TranslatedString{Language: DefaultLanguage, Value: value},
	}
	if language != "" && translation != "" && translation != value {
		ret.TranslatedValues = []TranslatedString{
			{Language: language, Value: translation},
		}
	}
	return ret
}

type ImageURI struct {
	URI string `json:"uri"`
}

type Image struct {
	SourceURI          ImageURI         `json:"sourceUri"`
	ContentDescription *LocalizedString `json:"contentDescription,omitempty"`
}

func imageFor(uri string) *Image {
	if uri == "" {
		return nil
	}
	return &Image{SourceURI: ImageURI{URI: uri}}
}

type Barcode struct {
	Type          string `json:"type"`
	Value         string `json:"value"`
	AlternateText string `json:"alternateText,omitempty"`
}

type LoyaltyPointsBalance struct {
	String string `json:"string,omitempty"`
	Int    *int   `json:"int,omitempty"`
}

type LoyaltyPoints struct {
	Label          string               `json:"label,omitempty"`
	LocalizedLabel *LocalizedString     `json:"localizedLabel,omitempty"`
	Balance        LoyaltyPointsBalance `json:"balance"`
}

type TextModule struct {
	ID              string           `json:"id"`
	Header          string           `json:"header,omitempty"`
	Body            string           `json:"body,omitempty"`
	LocalizedHeader *LocalizedString `json:"localizedHeader,omitempty"`
	LocalizedBody   *LocalizedString `json:"localizedBody,omitempty"`
}

// Message is shown to the holder and triggers a notification
type Message struct {
	ID     string `json:"id,omitempty"`
	Header string `json:"header"`
	Body   string `json:"body"`
}

// ClassPayload is a loyalty class, the template shared by a business's cards
type ClassPayload struct {
	ID                   string           `json:"id"`
	IssuerName           string           `json:"issuerName"`
	ProgramName          string           `json:"programName"`
	LocalizedProgramName *LocalizedString `json:"localizedProgramName,omitempty"`
	ProgramLogo          *Image           `json:"programLogo"`
	HeroImage            *Image           `json:"heroImage,omitempty"`
	HexBackgroundColor   string           `json:"hexBackgroundColor,omitempty"`
	RewardsTier          string           `json:"rewardsTier,omitempty"`
	LocalizedRewardsTier *LocalizedString `json:"localizedRewardsTier,omitempty"`
	ReviewStatus         string           `json:"reviewStatus,omitempty"`
}

func (c *ClassPayload) Validate() error {
	switch {
	case !idRe.MatchString(c.ID):
		return fmt.Errorf("%w: class id %q", ErrInvalidObject, c.ID)
	case c.IssuerName == "":
		return fmt.Errorf("%w: class %s has no issuer name", ErrInvalidObject, c.ID)
	case c.ProgramName == "":
		return fmt.Errorf("%w: class %s has no program name", ErrInvalidObject, c.ID)
	case c.ProgramLogo == nil || c.ProgramLogo.SourceURI.URI == "":
		return fmt.Errorf("%w: class %s has no program logo", ErrInvalidObject, c.ID)
	case c.HexBackgroundColor != "" && !hexColorRe.MatchString(c.HexBackgroundColor):
		return fmt.Errorf(
			"%w: class %s background color %q",
			ErrInvalidObject,
			c.ID,
			c.HexBackgroundColor,
		)
	}
	return nil
}

// ObjectPayload is a loyalty object, one customer's card
type ObjectPayload struct {
	ID              string         `json:"id"`
	ClassID         string         `json:"classId"`
	State           string         `json:"state"`
	AccountID       string         `json:"accountId,omitempty"`
	AccountName     string         `json:"accountName,omitempty"`
	Barcode         *Barcode       `json:"barcode,omitempty"`
	LoyaltyPoints   *LoyaltyPoints `json:"loyaltyPoints,omitempty"`
	HeroImage       *Image         `json:"heroImage,omitempty"`
	TextModulesData []TextModule   `json:"textModulesData,omitempty"`
}

func (o *ObjectPayload) Validate() error {
	switch {
	case !idRe.MatchString(o.ID):
		return fmt.Errorf("%w: object id %q", ErrInvalidObject, o.ID)
	case !idRe.MatchString(o.ClassID):
		return fmt.Errorf("%w: object %s class id %q", ErrInvalidObject, o.ID, o.ClassID)
	case issuerOf(o.ID) != issuerOf(o.ClassID):
		return fmt.Errorf(
			"%w: object %s and class %s belong to different issuers",
			ErrInvalidObject,
			o.ID,
			o.ClassID,
		)
	}
	switch o.State {
	case StateActive, StateCompleted, StateExpired, StateInactive:
	default:
		return fmt.Errorf("%w: object %s state %q", ErrInvalidObject, o.ID, o.State)
	}
	return nil
}

func issuerOf(id string) string {
	issuer, _, _ := strings.Cut(id, ".")
	return issuer
}

// ClassFromDesign maps a design to its class. logoURL replaces the design's
// logo when the design has none.
func ClassFromDesign(
	issuerID string,
	design *loyalty.CardDesign,
	business *loyalty.Business,
	logoURL string,
	heroURL string,
) (*ClassPayload, error) {
	programName := cmp.Or(design.ProgramName, design.Name)
	issuerName := programName
	if business != nil && business.Name != "" {
		issuerName = business.Name
	}
	var language, secondaryProgram, secondaryReward string
	if design.Secondary != nil {
		language = design.Secondary.Language
		secondaryProgram = design.Secondary.ProgramName
		secondaryReward = design.Secondary.RewardText
	}
	ret := &ClassPayload{
		ID:                   ClassID(issuerID, design.BusinessID),
		IssuerName:           issuerName,
		ProgramName:          programName,
		LocalizedProgramName: localized(programName, language, secondaryProgram),
		ProgramLogo:          imageFor(cmp.Or(design.LogoURL, logoURL)),
		HeroImage:            imageFor(heroURL),
		HexBackgroundColor:   strings.ToLower(design.Colors.Background),
		RewardsTier:          design.RewardText,
		LocalizedRewardsTier: localized(design.RewardText, language, secondaryReward),
		ReviewStatus:         ReviewStatusUnderReview,
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// ObjectFromCustomer maps a customer's progress to their object. heroURL is
// the strip image rendered for the customer's stamp count.
func ObjectFromCustomer(
	issuerID string,
	customer *loyalty.Customer,
	design *loyalty.CardDesign,
	heroURL string,
) (*ObjectPayload, error) {
	count := design.ClampStamps(customer.StampCount)
	var language, stampsLabel, rewardLabel, rewardText string
	if design.Secondary != nil {
		language = design.Secondary.Language
		stampsLabel = design.Secondary.StampsLabel
		rewardLabel = design.Secondary.RewardLabel
		rewardText = design.Secondary.RewardText
	}
	ret := &ObjectPayload{
		ID:          ObjectID(issuerID, customer.ID),
		ClassID:     ClassID(issuerID, design.BusinessID),
		State:       StateActive,
		AccountID:   customer.ID,
		AccountName: customer.Name,
		Barcode: &Barcode{
			Type:  BarcodeTypeQR,
			Value: customer.ID,
		},
		LoyaltyPoints: &LoyaltyPoints{
			Label:          "Stamps",
			LocalizedLabel: localized("Stamps", language, stampsLabel),
			Balance: LoyaltyPointsBalance{
				String: fmt.Sprintf("%d / %d", count, design.TotalStamps),
			},
		},
		HeroImage: imageFor(heroURL),
	}
	if design.RewardText != "" {
		ret.TextModulesData = append(ret.TextModulesData, TextModule{
			ID:              textModuleReward,
			Header:          "Reward",
			Body:            design.RewardText,
			LocalizedHeader: localized("Reward", language, rewardLabel),
			LocalizedBody:   localized(design.RewardText, language, rewardText),
		})
	}
	if design.Description != "" {
		ret.TextModulesData = append(ret.TextModulesData, TextModule{
			ID:     textModuleProgram,
			Header: cmp.Or(design.ProgramName, design.Name),
			Body:   design.Description,
		})
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// ProgressMessage is shown to the holder along with a stamp update. The id
// changes with each send so repeated messages are not rejected as duplicates.
func ProgressMessage(design *loyalty.CardDesign, count int, now time.Time) Message {
	count = design.ClampStamps(count)
	msg := Message{
		ID:     fmt.Sprintf("progress-%d", now.UnixNano()),
		Header: cmp.Or(design.ProgramName, design.Name),
	}
	switch {
	case stripimage.IsRewardState(count, design.TotalStamps):
		msg.Body = cmp.Or(design.RewardText, "Your reward") + " is ready to redeem"
	case count == 0:
		msg.Body = "Your card has been reset"
	default:
		msg.Body = fmt.Sprintf("You have %d of %d stamps", count, design.TotalStamps)
	}
	return msg
}
