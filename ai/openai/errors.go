package openai

import "errors"

var (
	// ErrEmptyResponse indicates the model returned no choices.
	ErrEmptyResponse = errors.New("model returned no choices")

	// ErrMalformedResponse indicates the model's output is not a JSON object.
	ErrMalformedResponse = errors.New("malformed model response")
)
