package openai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "valid input untouched",
			input: `{"summary": "ratio, cost: 3"}`,
			want:  `{"summary": "ratio, cost: 3"}`,
		},
		{
			name:  "missing opening quote",
			input: `{"sensitivity": "low", department": "hr"}`,
			want:  `{"sensitivity": "low", "department": "hr"}`,
		},
		{
			name:  "bare keys",
			input: `{sensitivity: "low", is_private: false}`,
			want:  `{"sensitivity": "low", "is_private": false}`,
		},
		{
			name:  "trailing commas",
			input: `{"tags": ["a", "b",], "summary": "x",}`,
			want:  `{"tags": ["a", "b"], "summary": "x"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repairJSON(tt.input)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)))
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no fence", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fence on one line", "```{\"a\": 1}```", `{"a": 1}`},
		{"surrounding whitespace", "  \n```JSON\n{\"a\": 1}\n```  \n", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFence(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
