package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"clientpulse/internal/domain"
	"clientpulse/internal/httpx"
	"clientpulse/internal/logger"
)

const providerAnthropic = "anthropic"

type AnthropicClassifier struct {
	client anthropic.Client
	model  string
}

// NewAnthropicClassifier builds a classifier on the shared outbound HTTP
// client. SDK retries are disabled; the intake service owns retry policy.
func NewAnthropicClassifier(apiKey, model string, opts ...option.RequestOption) *AnthropicClassifier {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.ExternalHTTPClient()),
		option.WithMaxRetries(0),
	}
	return &AnthropicClassifier{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  model,
	}
}

func (c *AnthropicClassifier) Classify(ctx context.Context, text string, meta RequestMetadata) (domain.ClassificationVerdict, error) {
	systemPrompt, userPrompt := buildClassifyPrompts(text, meta)
	logger.Debugf("llm classify provider=anthropic model=%s plan=%s type=%s chars=%d", c.model, meta.Plan, meta.RequestType, len(text))

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		logger.Warnf("llm anthropic error: %v", err)
		return domain.ClassificationVerdict{}, mapAnthropicError(err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			logger.Infof("llm classify provider=anthropic response size=%d tokens_in=%d tokens_out=%d",
				len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			verdict, err := parseVerdict(block.Text)
			if err != nil {
				return domain.ClassificationVerdict{}, malformed(providerAnthropic, err)
			}
			return verdict, nil
		}
	}
	return domain.ClassificationVerdict{}, malformed(providerAnthropic, fmt.Errorf("no text content in Anthropic response"))
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &GatewayError{Kind: ErrUnavailable, Provider: providerAnthropic, Err: err}
	}
	gwErr := &GatewayError{Provider: providerAnthropic, StatusCode: apiErr.StatusCode, Err: err}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		gwErr.Kind = ErrRateLimited
	case apiErr.StatusCode == http.StatusPaymentRequired,
		strings.Contains(strings.ToLower(apiErr.Error()), "credit balance"):
		gwErr.Kind = ErrQuotaExceeded
	default:
		gwErr.Kind = ErrUnavailable
	}
	return gwErr
}
