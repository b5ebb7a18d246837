package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"clientpulse/internal/domain"
	"clientpulse/internal/logger"
)

const maxRequestChars = 8000

const classifySystemPrompt = `You triage requests sent by clients of a managed engineering service.
Classify the request and respond with a single JSON object, no prose:

{"category": "...", "effort_level": "...", "estimated_hours": 0, "risk_flags": [], "rationale": "..."}

category: one of advisory, execution, incident, out_of_scope.
- advisory: questions, reviews, guidance the client executes themselves.
- execution: hands-on work we would perform (setup, migration, implementation, optimization).
- incident: something is broken or degraded right now.
- out_of_scope: not covered by a service plan at all.
effort_level: one of low, medium, high.
estimated_hours: positive number of hours to resolve.
risk_flags: zero or more of scope_creep, potential_churn, upgrade_signal, margin_risk.
- scope_creep: asks for more than the plan covers.
- potential_churn: frustration, threats to cancel, comparing competitors.
- upgrade_signal: needs that a larger plan covers (SLA, compliance, volume).
- margin_risk: effort far above what the plan pays for.
rationale: one short sentence explaining the verdict.
The request may be written in English or Spanish.`

func buildClassifyPrompts(text string, meta RequestMetadata) (string, string) {
	text = strings.TrimSpace(text)
	if len(text) > maxRequestChars {
		text = truncateUTF8(text, maxRequestChars) + "\n...(truncated)"
	}

	var b strings.Builder
	writeMeta := func(label, value string) {
		if v := strings.TrimSpace(value); v != "" {
			b.WriteString(fmt.Sprintf("%s: %s\n", label, v))
		}
	}
	writeMeta("Plan", meta.Plan)
	writeMeta("Environment", meta.Environment)
	writeMeta("Declared priority", meta.DeclaredPriority)
	writeMeta("Request type", meta.RequestType)
	b.WriteString("\nRequest:\n")
	b.WriteString(text)
	return classifySystemPrompt, b.String()
}

type verdictResponse struct {
	Category       string   `json:"category"`
	EffortLevel    string   `json:"effort_level"`
	EstimatedHours float64  `json:"estimated_hours"`
	RiskFlags      []string `json:"risk_flags"`
	Rationale      string   `json:"rationale"`
}

// parseVerdict decodes a model response. Unknown risk flags are dropped; every
// other deviation makes the whole response malformed.
func parseVerdict(responseText string) (domain.ClassificationVerdict, error) {
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	responseText = strings.TrimSpace(responseText)

	var raw verdictResponse
	if err := json.Unmarshal([]byte(responseText), &raw); err != nil {
		return domain.ClassificationVerdict{}, fmt.Errorf("parsing classifier response: %w (response: %s)", err, responseText)
	}

	category, err := domain.ParseCategory(raw.Category)
	if err != nil {
		return domain.ClassificationVerdict{}, err
	}
	effort, err := domain.ParseEffortLevel(raw.EffortLevel)
	if err != nil {
		return domain.ClassificationVerdict{}, err
	}
	if raw.EstimatedHours <= 0 {
		return domain.ClassificationVerdict{}, fmt.Errorf("estimated_hours must be positive, got %v", raw.EstimatedHours)
	}

	flags := make([]domain.RiskFlag, 0, len(raw.RiskFlags))
	for _, s := range raw.RiskFlags {
		f, err := domain.ParseRiskFlag(s)
		if err != nil {
			logger.Warnf("llm classify dropped flag=%q", s)
			continue
		}
		flags = append(flags, f)
	}

	return domain.ClassificationVerdict{
		Category:       category,
		EffortLevel:    effort,
		EstimatedHours: raw.EstimatedHours,
		RiskFlags:      domain.NormalizeFlags(flags),
		Rationale:      strings.TrimSpace(raw.Rationale),
	}, nil
}

func malformed(provider string, err error) error {
	return &GatewayError{Kind: ErrMalformedResponse, Provider: provider, Err: err}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
