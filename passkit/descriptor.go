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

package passkit

import (
	"fmt"
	"regexp"
	"strconv"
)

const (
	FormatVersion = 1

	BarcodeFormatQR        = "PKBarcodeFormatQR"
	BarcodeEncodingLatin1  = "iso-8859-1"
	minAuthenticationToken = 16
)

// PassDescriptor is pass.json
type PassDescriptor struct {
	FormatVersion       int        `json:"formatVersion"`
	PassTypeIdentifier  string     `json:"passTypeIdentifier"`
	SerialNumber        string     `json:"serialNumber"`
	TeamIdentifier      string     `json:"teamIdentifier"`
	OrganizationName    string     `json:"organizationName"`
	Description         string     `json:"description"`
	LogoText            string     `json:"logoText,omitempty"`
	ForegroundColor     string     `json:"foregroundColor,omitempty"`
	BackgroundColor     string     `json:"backgroundColor,omitempty"`
	LabelColor          string     `json:"labelColor,omitempty"`
	WebServiceURL       string     `json:"webServiceURL,omitempty"`
	AuthenticationToken string     `json:"authenticationToken,omitempty"`
	SharingProhibited   bool       `json:"sharingProhibited,omitempty"`
	StoreCard           *StoreCard `json:"storeCard"`
	Barcodes            []Barcode  `json:"barcodes,omitempty"`
}

type StoreCard struct {
	HeaderFields    []Field `json:"headerFields,omitempty"`
	PrimaryFields   []Field `json:"primaryFields,omitempty"`
	SecondaryFields []Field `json:"secondaryFields,omitempty"`
	AuxiliaryFields []Field `json:"auxiliaryFields,omitempty"`
	BackFields      []Field `json:"backFields,omitempty"`
}

type Field struct {
	Key           string `json:"key"`
	Label         string `json:"label,omitempty"`
	Value         string `json:"value"`
	ChangeMessage string `json:"changeMessage,omitempty"`
}

type Barcode struct {
	Format          string `json:"format"`
	Message         string `json:"message"`
	MessageEncoding string `json:"messageEncoding"`
	AltText         string `json:"altText,omitempty"`
}

var rgbColorRe = regexp.MustCompile(`^rgb\(\d{1,3}, \d{1,3}, \d{1,3}\)$`)

func (p *PassDescriptor) Validate() error {
	switch {
	case p.FormatVersion != FormatVersion:
		return fmt.Errorf("%w: format version %d", ErrInvalidPass, p.FormatVersion)
	case p.PassTypeIdentifier == "":
		return fmt.Errorf("%w: missing pass type identifier", ErrInvalidPass)
	case p.TeamIdentifier == "":
		return fmt.Errorf("%w: missing team identifier", ErrInvalidPass)
	case p.SerialNumber == "":
		return fmt.Errorf("%w: missing serial number", ErrInvalidPass)
	case p.OrganizationName == "" || p.Description == "":
		return fmt.Errorf("%w: missing organization name or description", ErrInvalidPass)
	case p.StoreCard == nil:
		return fmt.Errorf("%w: missing store card", ErrInvalidPass)
	}
	if p.WebServiceURL != "" && len(p.AuthenticationToken) < minAuthenticationToken {
		return fmt.Errorf(
			"%w: authentication token shorter than %d characters",
			ErrInvalidPass,
			minAuthenticationToken,
		)
	}
	for _, c := range []string{p.ForegroundColor, p.BackgroundColor, p.LabelColor} {
		if c != "" && !rgbColorRe.MatchString(c) {
			return fmt.Errorf("%w: color %q", ErrInvalidPass, c)
		}
	}
	keys := map[string]struct{}{}
	for _, group := range [][]Field{
		p.StoreCard.HeaderFields,
		p.StoreCard.PrimaryFields,
		p.StoreCard.SecondaryFields,
		p.StoreCard.AuxiliaryFields,
		p.StoreCard.BackFields,
	} {
		for _, f := range group {
			if f.Key == "" {
				return fmt.Errorf("%w: field without key", ErrInvalidPass)
			}
			if _, ok := keys[f.Key]; ok {
				return fmt.Errorf("%w: duplicate field key %q", ErrInvalidPass, f.Key)
			}
			keys[f.Key] = struct{}{}
		}
	}
	return nil
}

// rgbColor converts "#rrggbb" to the "rgb(r, g, b)" form used in pass.json.
// Invalid input yields an empty string.
func rgbColor(hex string) string {
	if len(hex) != 7 || hex[0] != '#' {
		return ""
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("rgb(%d, %d, %d)", v>>16&0xff, v>>8&0xff, v&0xff)
}
