// Package analysis wraps the AI services with the failure contracts the
// review pipeline depends on.
//
// Classifier never returns an error: when the model cannot be reached,
// times out, or answers with something unusable, the email gets the
// fail-closed analysis from core.FailClosedAnalysis, which marks it private
// and recommends excluding it.
//
// SafeEmbedder always returns a vector of the configured dimension. Upstream
// failures yield a zero vector; a successful response of the wrong length is
// a configuration error and is returned as ErrDimensionMismatch.
//
// ComposeText renders an email into the text both services see.
package analysis
