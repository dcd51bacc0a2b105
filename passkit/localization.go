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
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/blinklabs-io/passsync/loyalty"
)

const (
	LabelStamps  = "Stamps"
	LabelReward  = "Reward"
	LabelMember  = "Member"
	LabelProgram = "About"
)

var languageRe = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)

// primaryStrings are the texts placed in pass.json
type primaryStrings struct {
	ProgramName  string
	RewardText   string
	Description  string
	CustomerName string
}

// localizedStrings pairs each primary text with its translation. Texts whose
// translation is missing or identical are left out.
func localizedStrings(primary primaryStrings, secondary *loyalty.LocaleStrings) map[string]string {
	ret := map[string]string{}
	add := func(from string, to string) {
		if from == "" || to == "" || from == to {
			return
		}
		ret[from] = to
	}
	add(primary.ProgramName, secondary.ProgramName)
	add(primary.RewardText, secondary.RewardText)
	add(primary.Description, secondary.Description)
	add(primary.CustomerName, secondary.CustomerName)
	add(LabelStamps, secondary.StampsLabel)
	add(LabelReward, secondary.RewardLabel)
	return ret
}

// lprojPath returns the bundle path of the string table for a language
func lprojPath(language string) (string, error) {
	if !languageRe.MatchString(language) {
		return "", fmt.Errorf("%w: language %q", ErrInvalidPass, language)
	}
	return language + ".lproj/pass.strings", nil
}

// encodeStrings renders a pass.strings table, sorted by key
func encodeStrings(table map[string]string) []byte {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "\"%s\" = \"%s\";\n", escapeString(k), escapeString(table[k]))
	}
	return buf.Bytes()
}

var stringsEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeString(s string) string {
	return stringsEscaper.Replace(s)
}
