package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/mailkb/core"
)

// MockClassifier is a test double for ai.EmailClassifier.
type MockClassifier struct {
	// ClassifyFunc is called by ClassifyEmail if set.
	// If nil, uses the keyword-based default.
	ClassifyFunc func(ctx context.Context, text string) (*core.EmailAnalysis, error)

	mu        sync.Mutex
	callCount int
	texts     []string
}

// NewMockClassifier creates a mock classifier with keyword-based defaults.
// Note: Returns concrete type to allow test assertions.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// WithClassifyFunc sets ClassifyFunc and returns the mock for chaining.
func (m *MockClassifier) WithClassifyFunc(fn func(ctx context.Context, text string) (*core.EmailAnalysis, error)) *MockClassifier {
	m.ClassifyFunc = fn
	return m
}

// ClassifyEmail returns ClassifyFunc's result, or a keyword-based analysis:
// text mentioning "salary" is private HR material, "invoice" is finance,
// "deploy" is engineering, and anything else general and safe to store.
func (m *MockClassifier) ClassifyEmail(ctx context.Context, text string) (*core.EmailAnalysis, error) {
	m.mu.Lock()
	m.callCount++
	m.texts = append(m.texts, text)
	fn := m.ClassifyFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return KeywordAnalysis(text), nil
}

// CallCount returns the number of ClassifyEmail calls.
func (m *MockClassifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Texts returns every text passed to ClassifyEmail, in call order.
func (m *MockClassifier) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Reset clears recorded calls and injected behavior.
func (m *MockClassifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.texts = nil
	m.ClassifyFunc = nil
}

// KeywordAnalysis is the mock's default classification.
func KeywordAnalysis(text string) *core.EmailAnalysis {
	lower := strings.ToLower(text)
	a := &core.EmailAnalysis{
		Sensitivity:       core.SensitivityLow,
		Department:        core.DepartmentGeneral,
		Tags:              []string{"mock"},
		PIIDetected:       []core.PIIType{},
		RecommendedAction: core.ActionStore,
		Summary:           "mock summary",
		KeyPoints:         []string{"mock point"},
	}
	switch {
	case strings.Contains(lower, "salary"):
		a.Department = core.DepartmentHR
		a.Sensitivity = core.SensitivityHigh
		a.IsPrivate = true
		a.PIIDetected = []core.PIIType{core.PIISalary}
		a.RecommendedAction = core.ActionExclude
	case strings.Contains(lower, "invoice"):
		a.Department = core.DepartmentFinance
		a.Sensitivity = core.SensitivityMedium
	case strings.Contains(lower, "deploy"):
		a.Department = core.DepartmentEngineering
	}
	return a
}
