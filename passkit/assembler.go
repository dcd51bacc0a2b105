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
	"bytes"
	"cmp"
	"context"
	"crypto/sha1" //nolint:gosec // the manifest format mandates SHA-1
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smallstep/pkcs7"

	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/stripimage"
)

const (
	PassFile      = "pass.json"
	ManifestFile  = "manifest.json"
	SignatureFile = "signature"
)

var (
	iconSizes = []stripimage.Size{
		{Name: "icon.png", Width: 29, Height: 29, Scale: 1},
		{Name: "icon@2x.png", Width: 29, Height: 29, Scale: 2},
		{Name: "icon@3x.png", Width: 29, Height: 29, Scale: 3},
	}
	logoSizes = []stripimage.Size{
		{Name: "logo.png", Width: 160, Height: 50, Scale: 1},
		{Name: "logo@2x.png", Width: 160, Height: 50, Scale: 2},
	}
	stripFiles = map[string]string{
		stripimage.PassKitStrip1x.Name: "strip.png",
		stripimage.PassKitStrip2x.Name: "strip@2x.png",
		stripimage.PassKitStrip3x.Name: "strip@3x.png",
	}
	// archiveTime is the modification time stamped on every archive entry
	archiveTime = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// AssembleRequest is the customer state rendered into a pass
type AssembleRequest struct {
	CustomerID   string
	CustomerName string
	StampCount   int
	AuthToken    string
	Design       *loyalty.CardDesign
	Business     *loyalty.Business
}

// Assembler builds signed pass archives
type Assembler struct {
	logger        *slog.Logger
	promRegistry  prometheus.Registerer
	generator     *stripimage.Generator
	fetcher       AssetFetcher
	wwdr          *x509.Certificate
	webServiceURL string
	assembled     *prometheus.CounterVec
}

type AssemblerOptionFunc func(*Assembler)

func WithLogger(logger *slog.Logger) AssemblerOptionFunc {
	return func(a *Assembler) {
		a.logger = logger
	}
}

func WithPromRegistry(registry prometheus.Registerer) AssemblerOptionFunc {
	return func(a *Assembler) {
		a.promRegistry = registry
	}
}

func WithGenerator(generator *stripimage.Generator) AssemblerOptionFunc {
	return func(a *Assembler) {
		a.generator = generator
	}
}

func WithAssetFetcher(fetcher AssetFetcher) AssemblerOptionFunc {
	return func(a *Assembler) {
		a.fetcher = fetcher
	}
}

// WithWWDRCertificate sets the intermediate certificate included with every
// signature
func WithWWDRCertificate(cert *x509.Certificate) AssemblerOptionFunc {
	return func(a *Assembler) {
		a.wwdr = cert
	}
}

// WithWebServiceURL enables device registration and pass updates
func WithWebServiceURL(url string) AssemblerOptionFunc {
	return func(a *Assembler) {
		a.webServiceURL = url
	}
}

func NewAssembler(opts ...AssemblerOptionFunc) *Assembler {
	a := &Assembler{}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		a.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if a.generator == nil {
		a.generator = stripimage.NewGenerator(stripimage.WithLogger(a.logger))
	}
	if a.fetcher == nil {
		a.fetcher = NewHTTPFetcher(nil)
	}
	a.assembled = promauto.With(a.promRegistry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "passsync_passes_assembled_total",
			Help: "pass archives assembled by result",
		},
		[]string{"result"},
	)
	return a
}

// ParseCertificatePEM parses the first certificate of a PEM bundle
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("no PEM certificate found")
	}
	return x509.ParseCertificate(block.Bytes)
}

// Descriptor builds and validates pass.json for a request
func (a *Assembler) Descriptor(
	req AssembleRequest,
	material *certmanager.SigningMaterial,
) (*PassDescriptor, error) {
	if req.Design == nil {
		return nil, fmt.Errorf("%w: missing design", ErrInvalidPass)
	}
	design := req.Design
	count := design.ClampStamps(req.StampCount)
	organization := design.Name
	if req.Business != nil && req.Business.Name != "" {
		organization = req.Business.Name
	}
	strs := primaryStringsFor(req)
	desc := &PassDescriptor{
		FormatVersion:      FormatVersion,
		PassTypeIdentifier: material.PassTypeIdentifier,
		SerialNumber:       req.CustomerID,
		TeamIdentifier:     material.TeamID,
		OrganizationName:   organization,
		Description:        strs.Description,
		LogoText:           strs.ProgramName,
		ForegroundColor:    rgbColor(design.Colors.Foreground),
		BackgroundColor:    rgbColor(design.Colors.Background),
		LabelColor:         rgbColor(design.Colors.Label),
		SharingProhibited:  true,
		StoreCard: &StoreCard{
			HeaderFields: []Field{
				{
					Key:           "stamps",
					Label:         LabelStamps,
					Value:         fmt.Sprintf("%d / %d", count, design.TotalStamps),
					ChangeMessage: "%@",
				},
			},
		},
		Barcodes: []Barcode{
			{
				Format:          BarcodeFormatQR,
				Message:         req.CustomerID,
				MessageEncoding: BarcodeEncodingLatin1,
			},
		},
	}
	if strs.RewardText != "" {
		desc.StoreCard.SecondaryFields = append(desc.StoreCard.SecondaryFields, Field{
			Key:   "reward",
			Label: LabelReward,
			Value: strs.RewardText,
		})
	}
	if strs.CustomerName != "" {
		desc.StoreCard.AuxiliaryFields = append(desc.StoreCard.AuxiliaryFields, Field{
			Key:   "member",
			Label: LabelMember,
			Value: strs.CustomerName,
		})
	}
	desc.StoreCard.BackFields = append(desc.StoreCard.BackFields, Field{
		Key:   "program",
		Label: LabelProgram,
		Value: strs.Description,
	})
	if a.webServiceURL != "" {
		desc.WebServiceURL = a.webServiceURL
		desc.AuthenticationToken = req.AuthToken
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return desc, nil
}

func primaryStringsFor(req AssembleRequest) primaryStrings {
	design := req.Design
	programName := cmp.Or(design.ProgramName, design.Name)
	return primaryStrings{
		ProgramName:  programName,
		RewardText:   design.RewardText,
		Description:  cmp.Or(design.Description, programName+" loyalty card"),
		CustomerName: req.CustomerName,
	}
}

// Assemble builds the signed archive for a request. No archive is returned
// when signing fails.
func (a *Assembler) Assemble(
	ctx context.Context,
	req AssembleRequest,
	material *certmanager.SigningMaterial,
) ([]byte, error) {
	data, err := a.assemble(ctx, req, material)
	if err != nil {
		a.assembled.WithLabelValues("failed").Inc()
		a.logger.Error(
			"failed to assemble pass",
			"component", "passkit",
			"customer_id", req.CustomerID,
			"error", err,
		)
		return nil, err
	}
	a.assembled.WithLabelValues("ok").Inc()
	return data, nil
}

func (a *Assembler) assemble(
	ctx context.Context,
	req AssembleRequest,
	material *certmanager.SigningMaterial,
) ([]byte, error) {
	if material == nil {
		return nil, &CertificateError{Err: errors.New("no signing material")}
	}
	if a.wwdr == nil {
		return nil, &CertificateError{Err: errors.New("no intermediate certificate configured")}
	}
	if err := material.Validate(); err != nil {
		return nil, &CertificateError{Err: err}
	}
	cert, err := material.Certificate()
	if err != nil {
		return nil, &CertificateError{Err: err}
	}
	key, err := material.PrivateKey()
	if err != nil {
		return nil, &CertificateError{Err: err}
	}
	desc, err := a.Descriptor(req, material)
	if err != nil {
		return nil, err
	}
	files := map[string][]byte{}
	if files[PassFile], err = json.Marshal(desc); err != nil {
		return nil, err
	}
	count := req.Design.ClampStamps(req.StampCount)
	if err := a.addImages(ctx, req.Design, count, files); err != nil {
		return nil, err
	}
	if req.Design.Secondary != nil {
		table := localizedStrings(primaryStringsFor(req), req.Design.Secondary)
		if len(table) > 0 {
			path, err := lprojPath(req.Design.Secondary.Language)
			if err != nil {
				return nil, err
			}
			files[path] = encodeStrings(table)
		}
	}
	manifest, err := buildManifest(files)
	if err != nil {
		return nil, err
	}
	files[ManifestFile] = manifest
	signature, err := signManifest(manifest, cert, key, a.wwdr)
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	files[SignatureFile] = signature
	return writeArchive(files)
}

func (a *Assembler) fetch(ctx context.Context, url string, what string) []byte {
	if url == "" {
		return nil
	}
	data, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		a.logger.Warn(
			"failed to fetch custom asset, using built-in",
			"component", "passkit",
			"asset", what,
			"url", url,
			"error", err,
		)
		return nil
	}
	return data
}

func (a *Assembler) addImages(
	ctx context.Context,
	design *loyalty.CardDesign,
	count int,
	files map[string][]byte,
) error {
	logo := a.fetch(ctx, design.LogoURL, "logo")
	customIcon := a.fetch(ctx, design.CustomStampIconURL, "stamp icon")
	background := a.fetch(ctx, design.StripBackgroundURL, "strip background")

	for _, size := range iconSizes {
		data, err := stripimage.RenderIcon(design.StampIcon, design.Colors, size)
		if err != nil {
			return err
		}
		files[size.Name] = data
	}
	for _, size := range logoSizes {
		var data []byte
		var err error
		if logo != nil {
			data, err = stripimage.ScaleAsset(logo, size)
		}
		if logo == nil || err != nil {
			data, err = stripimage.RenderIcon(design.StampIcon, design.Colors, size)
		}
		if err != nil {
			return err
		}
		files[size.Name] = data
	}
	cfg := stripimage.ConfigFromDesign(design, customIcon, background)
	for _, size := range stripimage.PlatformSizes[loyalty.PlatformPassKit] {
		data, err := a.generator.Render(count, cfg, size)
		if err != nil {
			return err
		}
		files[stripFiles[size.Name]] = data
	}
	return nil
}

func buildManifest(files map[string][]byte) ([]byte, error) {
	manifest := make(map[string]string, len(files))
	for name, data := range files {
		if name == ManifestFile || name == SignatureFile {
			continue
		}
		sum := sha1.Sum(data) //nolint:gosec
		manifest[name] = hex.EncodeToString(sum[:])
	}
	return json.Marshal(manifest)
}

// signManifest produces a detached DER PKCS#7 signature over the manifest
func signManifest(
	manifest []byte,
	cert *x509.Certificate,
	key any,
	wwdr *x509.Certificate,
) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(manifest)
	if err != nil {
		return nil, err
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := sd.AddSignerChain(
		cert,
		key,
		[]*x509.Certificate{wwdr},
		pkcs7.SignerInfoConfig{},
	); err != nil {
		return nil, err
	}
	sd.Detach()
	return sd.Finish()
}

// writeArchive zips files with pass.json first and the signature last
func writeArchive(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		if name == PassFile || name == ManifestFile || name == SignatureFile {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	names = append([]string{PassFile}, names...)
	names = append(names, ManifestFile, SignatureFile)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: archiveTime,
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
