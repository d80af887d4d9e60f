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

import "slices"

// Sensitivity grades how sensitive an email's content is.
type Sensitivity string

const (
	SensitivityLow      Sensitivity = "low"
	SensitivityMedium   Sensitivity = "medium"
	SensitivityHigh     Sensitivity = "high"
	SensitivityCritical Sensitivity = "critical"
)

// Sensitivities lists every valid sensitivity in ascending order.
var Sensitivities = []Sensitivity{SensitivityLow, SensitivityMedium, SensitivityHigh, SensitivityCritical}

// Valid reports whether s is a known sensitivity.
func (s Sensitivity) Valid() bool {
	return slices.Contains(Sensitivities, s)
}

// Department is the organisational area an email is relevant to.
type Department string

const (
	DepartmentGeneral     Department = "general"
	DepartmentEngineering Department = "engineering"
	DepartmentProduct     Department = "product"
	DepartmentMarketing   Department = "marketing"
	DepartmentSales       Department = "sales"
	DepartmentFinance     Department = "finance"
	DepartmentHR          Department = "hr"
	DepartmentLegal       Department = "legal"
	DepartmentOther       Department = "other"
)

// Departments lists every valid department.
var Departments = []Department{
	DepartmentGeneral, DepartmentEngineering, DepartmentProduct, DepartmentMarketing,
	DepartmentSales, DepartmentFinance, DepartmentHR, DepartmentLegal, DepartmentOther,
}

// Valid reports whether d is a known department.
func (d Department) Valid() bool {
	return slices.Contains(Departments, d)
}

// PIIType names a category of personal information found in an email.
type PIIType string

const (
	PIINone        PIIType = "none"
	PIIName        PIIType = "name"
	PIIEmail       PIIType = "email"
	PIIPhone       PIIType = "phone"
	PIIAddress     PIIType = "address"
	PIISSN         PIIType = "ssn"
	PIIPassport    PIIType = "passport"
	PIICreditCard  PIIType = "credit_card"
	PIIBankAccount PIIType = "bank_account"
	PIIDateOfBirth PIIType = "date_of_birth"
	PIISalary      PIIType = "salary"
	PIIOther       PIIType = "other"
)

// PIITypes lists every valid PII category.
var PIITypes = []PIIType{
	PIINone, PIIName, PIIEmail, PIIPhone, PIIAddress, PIISSN, PIIPassport,
	PIICreditCard, PIIBankAccount, PIIDateOfBirth, PIISalary, PIIOther,
}

// Valid reports whether p is a known PII category.
func (p PIIType) Valid() bool {
	return slices.Contains(PIITypes, p)
}

// RecommendedAction is the classifier's advice on whether to index an email.
type RecommendedAction string

const (
	ActionStore   RecommendedAction = "store"
	ActionExclude RecommendedAction = "exclude"
)

// Valid reports whether a is a known action.
func (a RecommendedAction) Valid() bool {
	return a == ActionStore || a == ActionExclude
}

// DefaultActionFor is the recommended action used when the classifier
// did not give one: private emails are excluded, everything else stored.
func DefaultActionFor(isPrivate bool) RecommendedAction {
	if isPrivate {
		return ActionExclude
	}
	return ActionStore
}

// ReviewStatus is the state of an email in the review workflow.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusApproved ReviewStatus = "approved"
	StatusRejected ReviewStatus = "rejected"
)

// ReviewStatuses lists every valid review status.
var ReviewStatuses = []ReviewStatus{StatusPending, StatusApproved, StatusRejected}

// Valid reports whether s is a known status.
func (s ReviewStatus) Valid() bool {
	return slices.Contains(ReviewStatuses, s)
}

// FailClosedAnalysis is the analysis recorded when classification fails.
// It marks the email private and recommends excluding it, so nothing is
// indexed on the strength of a failed call.
func FailClosedAnalysis() *EmailAnalysis {
	return &EmailAnalysis{
		Sensitivity:       SensitivityLow,
		Department:        DepartmentGeneral,
		Tags:              []string{"error", "processing_failed"},
		IsPrivate:         true,
		PIIDetected:       []PIIType{},
		RecommendedAction: ActionExclude,
		Summary:           "Analysis failed. Please review manually.",
		KeyPoints:         []string{"Analysis failed due to an error."},
	}
}

// SanitizeAnalysis replaces out-of-domain values with their defaults and
// nil slices with empty ones. Unknown PII entries become PIIOther.
// An invalid recommended action is derived from IsPrivate.
func SanitizeAnalysis(a *EmailAnalysis) *EmailAnalysis {
	if a == nil {
		return FailClosedAnalysis()
	}
	if !a.Sensitivity.Valid() {
		a.Sensitivity = SensitivityLow
	}
	if !a.Department.Valid() {
		a.Department = DepartmentGeneral
	}
	if !a.RecommendedAction.Valid() {
		a.RecommendedAction = DefaultActionFor(a.IsPrivate)
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.KeyPoints == nil {
		a.KeyPoints = []string{}
	}
	pii := make([]PIIType, 0, len(a.PIIDetected))
	for _, p := range a.PIIDetected {
		if !p.Valid() {
			p = PIIOther
		}
		pii = append(pii, p)
	}
	a.PIIDetected = pii
	return a
}
