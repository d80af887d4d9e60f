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

package core

import "fmt"

// ValidateEmailContent validates an EmailContent before it enters the pipeline.
//
// Validation rules:
//   - ID must not be empty
//
// Everything else is optional: mail sources routinely omit subjects,
// senders, and bodies.
func ValidateEmailContent(content *EmailContent) error {
	if content == nil {
		return fmt.Errorf("%w: content is nil", ErrInvalidEmail)
	}
	if content.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEmail, ErrEmptyEmailID)
	}
	return nil
}

// ValidateAnalysis checks that every enumerated field is in its domain.
func ValidateAnalysis(a *EmailAnalysis) error {
	if a == nil {
		return fmt.Errorf("%w: analysis is nil", ErrInvalidAnalysis)
	}
	if !a.Sensitivity.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidAnalysis, ErrInvalidSensitivity, a.Sensitivity)
	}
	if !a.Department.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidAnalysis, ErrInvalidDepartment, a.Department)
	}
	if !a.RecommendedAction.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidAnalysis, ErrInvalidAction, a.RecommendedAction)
	}
	for _, p := range a.PIIDetected {
		if !p.Valid() {
			return fmt.Errorf("%w: %w: %q", ErrInvalidAnalysis, ErrInvalidPIIType, p)
		}
	}
	return nil
}

// ValidateReview validates an EmailReview before it is stored.
//
// Validation rules:
//   - EmailID must not be empty and must match Content.ID when that is set
//   - Analysis must be valid
//   - Status, when set, must be valid
func ValidateReview(review *EmailReview) error {
	if review == nil {
		return fmt.Errorf("%w: review is nil", ErrInvalidReview)
	}
	if review.EmailID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidReview, ErrEmptyEmailID)
	}
	if review.Content.ID != "" && review.Content.ID != review.EmailID {
		return fmt.Errorf("%w: email id %q does not match content id %q", ErrInvalidReview, review.EmailID, review.Content.ID)
	}
	if err := ValidateAnalysis(&review.Analysis); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReview, err)
	}
	if review.Status != "" && !review.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidReview, ErrInvalidStatus, review.Status)
	}
	return nil
}

// ValidateVectorRecord validates a VectorRecord against the index dimension.
func ValidateVectorRecord(record *VectorRecord, dimension int) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidVectorRecord)
	}
	if record.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidVectorRecord, ErrEmptyVectorID)
	}
	if len(record.Vector) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(record.Vector), dimension)
	}
	return nil
}
