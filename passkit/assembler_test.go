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

package passkit_test

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/smallstep/pkcs7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/certmanager"
	"github.com/blinklabs-io/passsync/internal/test/testcert"
	"github.com/blinklabs-io/passsync/loyalty"
	"github.com/blinklabs-io/passsync/passkit"
)

type fakeFetcher map[string][]byte

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if data, ok := f[url]; ok {
		return data, nil
	}
	return nil, errors.New("not found")
}

func testMaterial(id *testcert.Identity) *certmanager.SigningMaterial {
	return &certmanager.SigningMaterial{
		PassTypeIdentifier: testcert.PassTypeIdentifier,
		TeamID:             testcert.TeamID,
		SignerCert:         id.CertPEM,
		SignerKey:          id.KeyPEM,
		PushCredential:     id.PushPEM,
	}
}

func testRequest() passkit.AssembleRequest {
	return passkit.AssembleRequest{
		CustomerID:   "c1",
		CustomerName: "Ada",
		StampCount:   4,
		AuthToken:    "0123456789abcdef0123",
		Design: &loyalty.CardDesign{
			ID:          "d1",
			BusinessID:  "b1",
			ProgramName: "Coffee Club",
			RewardText:  "Free coffee",
			TotalStamps: 10,
			Colors: loyalty.Colors{
				Background:  "#1d3557",
				Foreground:  "#f1faee",
				Label:       "#a8dadc",
				StampFilled: "#f1faee",
			},
			StampIcon:  "coffee",
			RewardIcon: "gift",
			LogoURL:    "https://assets.example.com/missing.png",
			Secondary: &loyalty.LocaleStrings{
				Language:    "fr",
				RewardText:  "Café offert",
				StampsLabel: "Tampons",
			},
		},
		Business: &loyalty.Business{ID: "b1", Name: "Beans"},
	}
}

func readArchive(t *testing.T, data []byte) ([]string, map[string][]byte) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		names = append(names, f.Name)
		files[f.Name] = content
	}
	return names, files
}

func TestAssemble(t *testing.T) {
	id := testcert.New(t)
	a := passkit.NewAssembler(
		passkit.WithWWDRCertificate(id.CA),
		passkit.WithWebServiceURL("https://passes.example.com/passkit"),
		passkit.WithAssetFetcher(fakeFetcher{}),
	)
	data, err := a.Assemble(context.Background(), testRequest(), testMaterial(id))
	require.NoError(t, err)

	names, files := readArchive(t, data)
	assert.Equal(t, passkit.PassFile, names[0])
	assert.Equal(t, passkit.SignatureFile, names[len(names)-1])
	for _, name := range []string{
		"icon.png", "icon@2x.png", "icon@3x.png",
		"logo.png", "logo@2x.png",
		"strip.png", "strip@2x.png", "strip@3x.png",
		"fr.lproj/pass.strings",
		passkit.ManifestFile,
	} {
		assert.Contains(t, files, name)
	}

	var desc passkit.PassDescriptor
	require.NoError(t, json.Unmarshal(files[passkit.PassFile], &desc))
	assert.Equal(t, "c1", desc.SerialNumber)
	assert.Equal(t, testcert.PassTypeIdentifier, desc.PassTypeIdentifier)
	assert.Equal(t, testcert.TeamID, desc.TeamIdentifier)
	assert.Equal(t, "Beans", desc.OrganizationName)
	assert.Equal(t, "https://passes.example.com/passkit", desc.WebServiceURL)
	assert.Equal(t, "0123456789abcdef0123", desc.AuthenticationToken)
	assert.Equal(t, "4 / 10", desc.StoreCard.HeaderFields[0].Value)

	strs := string(files["fr.lproj/pass.strings"])
	assert.Contains(t, strs, `"Free coffee" = "Café offert";`)
	assert.Contains(t, strs, `"Stamps" = "Tampons";`)
	assert.NotContains(t, strs, "Coffee Club")

	// The manifest covers every file except itself and the signature
	var manifest map[string]string
	require.NoError(t, json.Unmarshal(files[passkit.ManifestFile], &manifest))
	assert.Len(t, manifest, len(files)-2)
	for name, content := range files {
		if name == passkit.ManifestFile || name == passkit.SignatureFile {
			assert.NotContains(t, manifest, name)
			continue
		}
		sum := sha1.Sum(content) //nolint:gosec
		assert.Equal(t, hex.EncodeToString(sum[:]), manifest[name], name)
	}

	p7, err := pkcs7.Parse(files[passkit.SignatureFile])
	require.NoError(t, err)
	p7.Content = files[passkit.ManifestFile]
	require.NoError(t, p7.Verify())
	roots := x509.NewCertPool()
	roots.AddCert(id.CA)
	require.NoError(t, p7.VerifyWithChain(roots))
	require.NotNil(t, p7.GetOnlySigner())
	assert.Equal(t, id.Cert.Raw, p7.GetOnlySigner().Raw)
}

func TestAssembleDeterministicContent(t *testing.T) {
	id := testcert.New(t)
	a := passkit.NewAssembler(
		passkit.WithWWDRCertificate(id.CA),
		passkit.WithAssetFetcher(fakeFetcher{}),
	)
	first, err := a.Assemble(context.Background(), testRequest(), testMaterial(id))
	require.NoError(t, err)
	second, err := a.Assemble(context.Background(), testRequest(), testMaterial(id))
	require.NoError(t, err)
	_, firstFiles := readArchive(t, first)
	_, secondFiles := readArchive(t, second)
	assert.Equal(t, firstFiles[passkit.ManifestFile], secondFiles[passkit.ManifestFile])
	assert.Equal(t, firstFiles[passkit.PassFile], secondFiles[passkit.PassFile])
}

func TestAssembleStampCountChangesStrip(t *testing.T) {
	id := testcert.New(t)
	a := passkit.NewAssembler(
		passkit.WithWWDRCertificate(id.CA),
		passkit.WithAssetFetcher(fakeFetcher{}),
	)
	req := testRequest()
	first, err := a.Assemble(context.Background(), req, testMaterial(id))
	require.NoError(t, err)
	req.StampCount = 5
	second, err := a.Assemble(context.Background(), req, testMaterial(id))
	require.NoError(t, err)
	_, firstFiles := readArchive(t, first)
	_, secondFiles := readArchive(t, second)
	assert.NotEqual(t, firstFiles["strip.png"], secondFiles["strip.png"])
	assert.Equal(t, firstFiles["icon.png"], secondFiles["icon.png"])
}

func TestAssembleCertificateErrors(t *testing.T) {
	id := testcert.New(t)
	other := testcert.New(t)
	a := passkit.NewAssembler(
		passkit.WithWWDRCertificate(id.CA),
		passkit.WithAssetFetcher(fakeFetcher{}),
	)
	var certErr *passkit.CertificateError

	_, err := a.Assemble(context.Background(), testRequest(), nil)
	require.ErrorIs(t, err, passkit.ErrCertificate)

	mismatched := testMaterial(id)
	mismatched.SignerKey = other.KeyPEM
	_, err = a.Assemble(context.Background(), testRequest(), mismatched)
	require.True(t, errors.As(err, &certErr))

	corrupt := testMaterial(id)
	corrupt.SignerCert = []byte("garbage")
	data, err := a.Assemble(context.Background(), testRequest(), corrupt)
	require.ErrorIs(t, err, passkit.ErrCertificate)
	assert.Nil(t, data)

	noWWDR := passkit.NewAssembler(passkit.WithAssetFetcher(fakeFetcher{}))
	_, err = noWWDR.Assemble(context.Background(), testRequest(), testMaterial(id))
	require.ErrorIs(t, err, passkit.ErrCertificate)
}

func TestSigningErrorUnwraps(t *testing.T) {
	cause := errors.New("signer failed")
	var err error = &passkit.SigningError{Err: cause}
	require.ErrorIs(t, err, cause)
	var signingErr *passkit.SigningError
	require.True(t, errors.As(err, &signingErr))
}
