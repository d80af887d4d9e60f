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

import "errors"

// Domain validation errors
var (
	// ErrInvalidEmail indicates an EmailContent failed validation.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidReview indicates an EmailReview failed validation.
	ErrInvalidReview = errors.New("invalid review")

	// ErrInvalidAnalysis indicates an EmailAnalysis holds out-of-domain values.
	ErrInvalidAnalysis = errors.New("invalid analysis")

	// ErrInvalidVectorRecord indicates a VectorRecord failed validation.
	ErrInvalidVectorRecord = errors.New("invalid vector record")

	// ErrEmptyEmailID indicates the email ID is empty.
	ErrEmptyEmailID = errors.New("email id cannot be empty")

	// ErrEmptyVectorID indicates the vector record ID is empty.
	ErrEmptyVectorID = errors.New("vector id cannot be empty")

	// ErrInvalidSensitivity indicates an unknown Sensitivity value.
	ErrInvalidSensitivity = errors.New("invalid sensitivity")

	// ErrInvalidDepartment indicates an unknown Department value.
	ErrInvalidDepartment = errors.New("invalid department")

	// ErrInvalidPIIType indicates an unknown PIIType value.
	ErrInvalidPIIType = errors.New("invalid pii type")

	// ErrInvalidAction indicates an unknown RecommendedAction value.
	ErrInvalidAction = errors.New("invalid recommended action")

	// ErrInvalidStatus indicates an unknown ReviewStatus value.
	ErrInvalidStatus = errors.New("invalid review status")

	// ErrDimensionMismatch indicates a vector does not have the configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
