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


package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/mailkb/ai"
	"github.com/poiesic/mailkb/core"
)

// DefaultTimeout bounds a single classification or embedding call.
const DefaultTimeout = 60 * time.Second

// Option configures a Classifier or SafeEmbedder.
type Option func(*options)

type options struct {
	timeout time.Duration
	logger  *slog.Logger
}

// WithTimeout bounds each upstream call. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{timeout: DefaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", component)
	return o
}

func (o options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// Classifier grades emails, failing closed.
type Classifier struct {
	client ai.EmailClassifier
	opts   options
}

// NewClassifier creates a classifier over client. A nil client is allowed
// and makes every email fail closed.
func NewClassifier(client ai.EmailClassifier, opts ...Option) *Classifier {
	return &Classifier{
		client: client,
		opts:   buildOptions("classifier", opts),
	}
}

// Classify returns the analysis of content. It never fails: any upstream
// error, timeout, or unusable answer yields core.FailClosedAnalysis.
func (c *Classifier) Classify(ctx context.Context, content *core.EmailContent) *core.EmailAnalysis {
	if c.client == nil {
		c.opts.logger.Warn("no classifier configured, failing closed")
		return core.FailClosedAnalysis()
	}

	ctx, cancel := c.opts.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	analysis, err := c.client.ClassifyEmail(ctx, ComposeText(content))
	if err != nil {
		c.opts.logger.Error("classification failed, failing closed",
			"email_id", emailID(content), "elapsed", time.Since(start), "err", err)
		return core.FailClosedAnalysis()
	}
	if analysis == nil {
		c.opts.logger.Error("classifier returned no analysis, failing closed", "email_id", emailID(content))
		return core.FailClosedAnalysis()
	}

	// Own the result so the caller may keep it.
	out := *analysis
	out.Tags = append([]string(nil), analysis.Tags...)
	out.PIIDetected = append([]core.PIIType(nil), analysis.PIIDetected...)
	out.KeyPoints = append([]string(nil), analysis.KeyPoints...)

	c.opts.logger.Debug("classified email",
		"email_id", emailID(content),
		"sensitivity", out.Sensitivity,
		"department", out.Department,
		"private", out.IsPrivate,
		"elapsed", time.Since(start))
	return core.SanitizeAnalysis(&out)
}

func emailID(content *core.EmailContent) string {
	if content == nil {
		return ""
	}
	return content.ID
}
