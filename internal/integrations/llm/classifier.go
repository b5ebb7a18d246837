// Package llm classifies client requests through a hosted language model.
package llm

import (
	"context"
	"errors"
	"fmt"

	"clientpulse/internal/config"
	"clientpulse/internal/domain"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o-mini"
)

var (
	ErrRateLimited       = errors.New("classifier rate limited")
	ErrQuotaExceeded     = errors.New("classifier quota exceeded")
	ErrUnavailable       = errors.New("classifier unavailable")
	ErrMalformedResponse = errors.New("classifier returned a malformed response")
)

// RequestMetadata is the context sent alongside the request text.
type RequestMetadata struct {
	Plan             string
	Environment      string
	DeclaredPriority string
	RequestType      string
}

// Classifier turns one client request into a verdict. Implementations return
// errors that match one of the Err* sentinels with errors.Is.
type Classifier interface {
	Classify(ctx context.Context, text string, meta RequestMetadata) (domain.ClassificationVerdict, error)
}

// GatewayError records which provider failed and how.
type GatewayError struct {
	Kind       error
	Provider   string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsTransient reports whether a failed call is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// New builds the classifier for the configured provider.
func New(cfg config.Config) (Classifier, error) {
	if err := cfg.ClassifierReady(); err != nil {
		return nil, err
	}
	switch cfg.LLMProvider {
	case "openai":
		model := cfg.LLMModel
		if model == "" {
			model = defaultOpenAIModel
		}
		return NewOpenAIClassifier(cfg.OpenAIAPIKey, model), nil
	default:
		model := cfg.LLMModel
		if model == "" {
			model = defaultAnthropicModel
		}
		return NewAnthropicClassifier(cfg.AnthropicAPIKey, model), nil
	}
}
