package upgrade

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keywords are the case-insensitive substrings each rule matches against a
// request's type and description. Lists are plain data so they can be
// reviewed and tuned without touching the rules.
type Keywords struct {
	SLA        []string `yaml:"sla"`
	Incident   []string `yaml:"incident"`
	Compliance []string `yaml:"compliance"`
	Execution  []string `yaml:"execution"`
}

func DefaultKeywords() Keywords {
	return Keywords{
		SLA: []string{
			"sla", "uptime", "service level", "availability guarantee", "guaranteed response",
			"response time guarantee", "99.9", "acuerdo de nivel", "disponibilidad",
		},
		Incident: []string{
			"incident", "emergency", "outage", "urgent", "production down", "site down",
			"critical bug", "incidente", "emergencia", "caída",
		},
		Compliance: []string{
			"soc2", "soc 2", "hipaa", "pci", "gdpr", "iso 27001", "audit", "compliance",
			"auditoría", "cumplimiento",
		},
		Execution: []string{
			"optimization", "implementation", "migration", "setup", "execution",
			"optimización", "implementación", "migración",
		},
	}
}

// LoadKeywords reads keyword lists from a YAML file. Lists missing from the
// file keep their defaults.
func LoadKeywords(path string) (Keywords, error) {
	kw := DefaultKeywords()
	if strings.TrimSpace(path) == "" {
		return kw, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return kw, fmt.Errorf("read upgrade keywords: %w", err)
	}
	var file Keywords
	if err := yaml.Unmarshal(data, &file); err != nil {
		return kw, fmt.Errorf("parse upgrade keywords yaml: %w", err)
	}
	if len(file.SLA) > 0 {
		kw.SLA = file.SLA
	}
	if len(file.Incident) > 0 {
		kw.Incident = file.Incident
	}
	if len(file.Compliance) > 0 {
		kw.Compliance = file.Compliance
	}
	if len(file.Execution) > 0 {
		kw.Execution = file.Execution
	}
	return kw.normalized(), nil
}

func (k Keywords) normalized() Keywords {
	return Keywords{
		SLA:        normalizeList(k.SLA),
		Incident:   normalizeList(k.Incident),
		Compliance: normalizeList(k.Compliance),
		Execution:  normalizeList(k.Execution),
	}
}

func normalizeList(list []string) []string {
	out := make([]string, 0, len(list))
	for _, term := range list {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			out = append(out, term)
		}
	}
	return out
}

func containsAny(text string, terms []string) bool {
	text = strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
