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
	"fmt"
	"strings"

	"github.com/poiesic/mailkb/core"
)

const analysisResponseSchema = `{
  "type": "object",
  "properties": {
    "sensitivity": {"type": "string", "enum": [%s]},
    "department": {"type": "string", "enum": [%s]},
    "tags": {"type": "array", "items": {"type": "string"}, "minItems": 3, "maxItems": 5},
    "is_private": {"type": "boolean"},
    "pii_detected": {"type": "array", "items": {"type": "string", "enum": [%s]}},
    "recommended_action": {"type": "string", "enum": ["store", "exclude"]},
    "summary": {"type": "string"},
    "key_points": {"type": "array", "items": {"type": "string"}, "minItems": 3, "maxItems": 5}
  },
  "required": ["sensitivity", "department", "tags", "is_private", "pii_detected", "recommended_action", "summary", "key_points"],
  "additionalProperties": false
}`

const systemPromptTemplate = `You analyze emails to extract reusable company knowledge and to detect sensitive information.

For the email you are given, determine:
1. Sensitivity level: one of %s.
2. The department the knowledge belongs to: one of %s.
3. 3-5 short, lowercase tags categorizing the content.
4. Whether the email contains private or confidential information.
5. The kinds of personally identifiable information present: any of %s. Use an empty array if there are none.
6. The recommended action: "store" if the content is safe and useful to index for colleagues, "exclude" otherwise. Private emails should be excluded.
7. A summary of the content in 1-2 sentences.
8. 3-5 key knowledge points.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Example:
{
  "sensitivity": "medium",
  "department": "engineering",
  "tags": ["release", "deployment", "mobile app"],
  "is_private": false,
  "pii_detected": ["name"],
  "recommended_action": "store",
  "summary": "The 2.4 mobile release moves to Thursday because of a failing payment test.",
  "key_points": ["Release 2.4 is delayed to Thursday", "Payment integration tests are failing", "QA signs off on Wednesday"]
}`

const userPromptTemplate = `Please analyze this email content:

%s`

func quoted[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = `"` + string(v) + `"`
	}
	return strings.Join(parts, ", ")
}

// buildSystemPrompt creates the system prompt with the allowed values embedded.
func buildSystemPrompt() string {
	sens := quoted(core.Sensitivities)
	depts := quoted(core.Departments)
	pii := quoted(piiCategories())
	schema := fmt.Sprintf(analysisResponseSchema, sens, depts, pii)
	return fmt.Sprintf(systemPromptTemplate, sens, depts, pii, schema)
}

// piiCategories lists the PII types a model may report. "none" is
// expressed as an empty array instead.
func piiCategories() []core.PIIType {
	out := make([]core.PIIType, 0, len(core.PIITypes))
	for _, p := range core.PIITypes {
		if p != core.PIINone {
			out = append(out, p)
		}
	}
	return out
}

func buildUserPrompt(text string) string {
	return fmt.Sprintf(userPromptTemplate, text)
}
