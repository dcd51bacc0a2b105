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

package asset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/passsync/database/plugin/asset"
)

func TestCleanKey(t *testing.T) {
	testDefs := []struct {
		key      string
		expected string
		invalid  bool
	}{
		{key: "strips/d1/0.png", expected: "strips/d1/0.png"},
		{key: "/strips//d1/./0.png", expected: "strips/d1/0.png"},
		{key: " logo.png ", expected: "logo.png"},
		{key: "", invalid: true},
		{key: "/", invalid: true},
		{key: "../etc/passwd", invalid: true},
		{key: "a/../../b", invalid: true},
	}
	for _, testDef := range testDefs {
		cleaned, err := asset.CleanKey(testDef.key)
		if testDef.invalid {
			require.ErrorIs(t, err, asset.ErrInvalidKey, testDef.key)
			continue
		}
		require.NoError(t, err, testDef.key)
		assert.Equal(t, testDef.expected, cleaned)
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", asset.ContentType("strips/a.PNG"))
	assert.Equal(t, "image/jpeg", asset.ContentType("bg.jpeg"))
	assert.Equal(t, "application/octet-stream", asset.ContentType("blob"))
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://x/assets/a.png", asset.JoinURL("https://x/assets/", "/a.png"))
	assert.Equal(t, "https://x/assets/a.png", asset.JoinURL("https://x/assets", "a.png"))
}
