package llm

import (
	"context"
	"strings"
	"sync"

	"clientpulse/internal/domain"
)

// StubClassifier returns canned verdicts without calling a provider. Rules
// are checked in order against the lowercased request text; the first rule
// whose substring matches wins, otherwise Default is returned.
type StubClassifier struct {
	Rules   []StubRule
	Default domain.ClassificationVerdict
	// Errs are returned, one per call, before any verdict is produced.
	Errs []error

	mu    sync.Mutex
	calls int
}

type StubRule struct {
	Contains string
	Verdict  domain.ClassificationVerdict
}

func NewStubClassifier() *StubClassifier {
	return &StubClassifier{
		Default: domain.ClassificationVerdict{
			Category:       domain.CategoryAdvisory,
			EffortLevel:    domain.EffortLow,
			EstimatedHours: 1,
			Rationale:      "stub verdict",
		},
	}
}

func (s *StubClassifier) Classify(ctx context.Context, text string, meta RequestMetadata) (domain.ClassificationVerdict, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.ClassificationVerdict{}, &GatewayError{Kind: ErrUnavailable, Provider: "stub", Err: err}
	}
	if idx < len(s.Errs) && s.Errs[idx] != nil {
		return domain.ClassificationVerdict{}, s.Errs[idx]
	}

	lower := strings.ToLower(text)
	for _, r := range s.Rules {
		if r.Contains != "" && strings.Contains(lower, strings.ToLower(r.Contains)) {
			return r.Verdict, nil
		}
	}
	return s.Default, nil
}

// Calls reports how many times Classify has been invoked.
func (s *StubClassifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
