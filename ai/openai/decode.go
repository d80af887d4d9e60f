package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/mailkb/core"
)

// decodeAnalysis decodes a model response into an EmailAnalysis.
//
// The response must be a JSON object. Each field is decoded on its own;
// a missing field, a value of the wrong JSON type, or a value outside its
// enumeration gets the field's default instead of failing the whole
// response. recommended_action defaults to exclude for private emails and
// store otherwise. Unknown PII entries become "other".
func decodeAnalysis(data []byte) (*core.EmailAnalysis, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: response is not an object", ErrMalformedResponse)
	}

	a := &core.EmailAnalysis{
		Sensitivity: core.SensitivityLow,
		Department:  core.DepartmentGeneral,
		Tags:        []string{},
		PIIDetected: []core.PIIType{},
		KeyPoints:   []string{},
	}

	if s, ok := decodeField[string](fields, "sensitivity"); ok {
		if v := core.Sensitivity(normalizeEnum(s)); v.Valid() {
			a.Sensitivity = v
		}
	}
	if s, ok := decodeField[string](fields, "department"); ok {
		if v := core.Department(normalizeEnum(s)); v.Valid() {
			a.Department = v
		}
	}
	if tags, ok := decodeField[[]string](fields, "tags"); ok {
		a.Tags = cleanStrings(tags)
	}
	if private, ok := decodeField[bool](fields, "is_private"); ok {
		a.IsPrivate = private
	}
	if pii, ok := decodeField[[]string](fields, "pii_detected"); ok {
		for _, p := range cleanStrings(pii) {
			v := core.PIIType(normalizeEnum(p))
			if !v.Valid() {
				v = core.PIIOther
			}
			a.PIIDetected = append(a.PIIDetected, v)
		}
	}

	a.RecommendedAction = core.DefaultActionFor(a.IsPrivate)
	if s, ok := decodeField[string](fields, "recommended_action"); ok {
		if v := core.RecommendedAction(normalizeEnum(s)); v.Valid() {
			a.RecommendedAction = v
		}
	}

	if summary, ok := decodeField[string](fields, "summary"); ok {
		a.Summary = strings.TrimSpace(summary)
	}
	if points, ok := decodeField[[]string](fields, "key_points"); ok {
		a.KeyPoints = cleanStrings(points)
	}
	return a, nil
}

// decodeField decodes fields[name] as T. It reports false when the field
// is missing, null, or not a T.
func decodeField[T any](fields map[string]json.RawMessage, name string) (T, bool) {
	var v T
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

// normalizeEnum maps "Credit Card" and "credit-card" to "credit_card".
func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
