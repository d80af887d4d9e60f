// Copyright 2025 Poiesic Systems
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

package openai

import (
	"encoding/json"
	"regexp"
)

var (
	// {summary": ...} where the model dropped the opening quote of a key.
	missingOpenQuote = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)":`)
	// {summary: ...} where the model forgot both quotes.
	bareKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	// [1, 2,] or {"a": 1,}
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// repairJSON fixes the key-quoting and trailing-comma mistakes small
// models make. Valid input is returned untouched so string values that
// happen to look like keys are never rewritten.
func repairJSON(s string) string {
	if json.Valid([]byte(s)) {
		return s
	}
	s = missingOpenQuote.ReplaceAllString(s, `$1"$2":`)
	s = bareKey.ReplaceAllString(s, `$1"$2":`)
	s = trailingComma.ReplaceAllString(s, "$1")
	return s
}
