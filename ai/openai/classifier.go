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
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/mailkb/ai"
	"github.com/poiesic/mailkb/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// maxParseAttempts is how often a malformed response is re-requested.
const maxParseAttempts = 3

// Classifier implements ai.EmailClassifier using OpenAI-compatible chat APIs.
type Classifier struct {
	client      llms.Model
	limiter     *rate.Limiter
	temperature float64
	logger      *slog.Logger
}

var _ ai.EmailClassifier = (*Classifier)(nil)

// newClassifier is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newClassifier(config *ai.Config) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ClassifierHost),
		openai.WithToken(config.Token()),
		openai.WithModel(config.ClassifierModel),
	)
	if err != nil {
		return nil, err
	}
	return newClassifierWithModel(client, config), nil
}

func newClassifierWithModel(client llms.Model, config *ai.Config) *Classifier {
	return &Classifier{
		client:      client,
		limiter:     newLimiter(config.RequestsPerSecond),
		temperature: config.Temperature,
		logger:      slog.Default().With("component", "openai-classifier"),
	}
}

// NewClassifier creates a new email classifier using the provided configuration.
//
// Returns ai.EmailClassifier interface to enforce abstraction.
func NewClassifier(config *ai.Config) (ai.EmailClassifier, error) {
	return newClassifier(config)
}

// ClassifyEmail asks the chat model to classify the composed email text.
// Transport errors are returned at once; responses that are not a JSON
// object are re-requested before giving up.
func (c *Classifier) ClassifyEmail(ctx context.Context, text string) (*core.EmailAnalysis, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(buildSystemPrompt()),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(buildUserPrompt(text)),
			},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= maxParseAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		response, err := c.client.GenerateContent(ctx, content, llms.WithTemperature(c.temperature), llms.WithJSONMode())
		if err != nil {
			c.logger.Error("failed to generate content", "attempt", attempt, "err", err)
			return nil, err
		}
		if len(response.Choices) < 1 {
			return nil, ErrEmptyResponse
		}

		responseText := repairJSON(stripCodeFence(response.Choices[0].Content))
		analysis, err := decodeAnalysis([]byte(responseText))
		if err != nil {
			lastErr = err
			c.logger.Warn("error parsing classifier response",
				"attempt", attempt,
				"response", truncate(responseText, 500),
				"err", err)
			continue
		}

		c.logger.Debug("classified email",
			"sensitivity", analysis.Sensitivity,
			"department", analysis.Department,
			"is_private", analysis.IsPrivate)
		return analysis, nil
	}

	c.logger.Error("failed to parse classifier response after retries", "err", lastErr)
	return nil, fmt.Errorf("after %d attempts: %w", maxParseAttempts, lastErr)
}

// newLimiter returns a limiter allowing rps calls per second, or an
// unlimited one when rps is zero.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
}
