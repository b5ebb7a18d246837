package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"clientpulse/internal/domain"
	"clientpulse/internal/httpx"
	"clientpulse/internal/logger"
)

const (
	providerOpenAI       = "openai"
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
)

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	ResponseFormat *openAIRespFormat `json:"response_format,omitempty"`
}

type openAIRespFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

type OpenAIClassifier struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewOpenAIClassifier(apiKey, model string) *OpenAIClassifier {
	return &OpenAIClassifier{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultOpenAIBaseURL,
		client:  httpx.ExternalHTTPClient(),
	}
}

// WithBaseURL points the classifier at a compatible endpoint.
func (c *OpenAIClassifier) WithBaseURL(baseURL string) *OpenAIClassifier {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string, meta RequestMetadata) (domain.ClassificationVerdict, error) {
	systemPrompt, userPrompt := buildClassifyPrompts(text, meta)
	logger.Debugf("llm classify provider=openai model=%s plan=%s type=%s chars=%d", c.model, meta.Plan, meta.RequestType, len(text))

	bodyBytes, err := json.Marshal(openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: &openAIRespFormat{Type: "json_object"},
	})
	if err != nil {
		return domain.ClassificationVerdict{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return domain.ClassificationVerdict{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Warnf("llm openai error: %v", err)
		return domain.ClassificationVerdict{}, &GatewayError{Kind: ErrUnavailable, Provider: providerOpenAI, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ClassificationVerdict{}, &GatewayError{Kind: ErrUnavailable, Provider: providerOpenAI, StatusCode: resp.StatusCode, Err: err}
	}

	var openAIResp openAIResponse
	jsonErr := json.Unmarshal(respBody, &openAIResp)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		code := ""
		if jsonErr == nil && openAIResp.Error != nil {
			msg = openAIResp.Error.Message
			code = openAIResp.Error.Code
		}
		logger.Warnf("llm openai api error status=%d code=%s msg=%s", resp.StatusCode, code, msg)
		return domain.ClassificationVerdict{}, &GatewayError{
			Kind:       openAIErrorKind(resp.StatusCode, code),
			Provider:   providerOpenAI,
			StatusCode: resp.StatusCode,
			Err:        errors.New(msg),
		}
	}
	if jsonErr != nil {
		return domain.ClassificationVerdict{}, malformed(providerOpenAI, fmt.Errorf("parsing OpenAI response: %w", jsonErr))
	}
	if len(openAIResp.Choices) == 0 {
		return domain.ClassificationVerdict{}, malformed(providerOpenAI, fmt.Errorf("no choices in OpenAI response"))
	}

	content := openAIResp.Choices[0].Message.Content
	if openAIResp.Usage != nil {
		logger.Infof("llm classify provider=openai response size=%d tokens_in=%d tokens_out=%d",
			len(content), openAIResp.Usage.PromptTokens, openAIResp.Usage.CompletionTokens)
	}
	verdict, err := parseVerdict(content)
	if err != nil {
		return domain.ClassificationVerdict{}, malformed(providerOpenAI, err)
	}
	return verdict, nil
}

func openAIErrorKind(status int, code string) error {
	switch {
	case code == "insufficient_quota" || status == http.StatusPaymentRequired:
		return ErrQuotaExceeded
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrUnavailable
	}
}
