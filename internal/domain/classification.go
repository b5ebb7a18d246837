package domain

import (
	"fmt"
	"sort"
	"strings"
)

type Category string

const (
	CategoryAdvisory   Category = "advisory"
	CategoryExecution  Category = "execution"
	CategoryIncident   Category = "incident"
	CategoryOutOfScope Category = "out_of_scope"
)

type EffortLevel string

const (
	EffortLow    EffortLevel = "low"
	EffortMedium EffortLevel = "medium"
	EffortHigh   EffortLevel = "high"
)

type RiskFlag string

const (
	FlagScopeCreep     RiskFlag = "scope_creep"
	FlagPotentialChurn RiskFlag = "potential_churn"
	FlagUpgradeSignal  RiskFlag = "upgrade_signal"
	FlagMarginRisk     RiskFlag = "margin_risk"
)

// KnownRiskFlags lists every flag in a stable order.
var KnownRiskFlags = []RiskFlag{FlagScopeCreep, FlagPotentialChurn, FlagUpgradeSignal, FlagMarginRisk}

// ClassificationVerdict is the structured result of classifying one client
// request. It is built once and never mutated.
type ClassificationVerdict struct {
	Category       Category
	EffortLevel    EffortLevel
	EstimatedHours float64
	RiskFlags      []RiskFlag
	Rationale      string
}

func ParseCategory(s string) (Category, error) {
	switch c := Category(normalizeToken(s)); c {
	case CategoryAdvisory, CategoryExecution, CategoryIncident, CategoryOutOfScope:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

func ParseEffortLevel(s string) (EffortLevel, error) {
	switch e := EffortLevel(normalizeToken(s)); e {
	case EffortLow, EffortMedium, EffortHigh:
		return e, nil
	}
	return "", fmt.Errorf("unknown effort level %q", s)
}

func ParseRiskFlag(s string) (RiskFlag, error) {
	f := RiskFlag(normalizeToken(s))
	for _, known := range KnownRiskFlags {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown risk flag %q", s)
}

// NormalizeFlags drops duplicates and returns the flags in KnownRiskFlags order.
func NormalizeFlags(flags []RiskFlag) []RiskFlag {
	seen := make(map[RiskFlag]bool, len(flags))
	for _, f := range flags {
		seen[f] = true
	}
	out := make([]RiskFlag, 0, len(seen))
	for _, known := range KnownRiskFlags {
		if seen[known] {
			out = append(out, known)
		}
	}
	return out
}

func (v ClassificationVerdict) Validate() error {
	if _, err := ParseCategory(string(v.Category)); err != nil {
		return err
	}
	if _, err := ParseEffortLevel(string(v.EffortLevel)); err != nil {
		return err
	}
	if v.EstimatedHours <= 0 {
		return fmt.Errorf("estimated_hours must be positive, got %v", v.EstimatedHours)
	}
	for _, f := range v.RiskFlags {
		if _, err := ParseRiskFlag(string(f)); err != nil {
			return err
		}
	}
	return nil
}

func (v ClassificationVerdict) HasFlag(flag RiskFlag) bool {
	for _, f := range v.RiskFlags {
		if f == flag {
			return true
		}
	}
	return false
}

func JoinFlags(flags []RiskFlag) string {
	parts := make([]string, 0, len(flags))
	for _, f := range flags {
		parts = append(parts, string(f))
	}
	return strings.Join(parts, ",")
}

// SplitFlags parses a comma-separated flag column, skipping unknown values.
func SplitFlags(s string) []RiskFlag {
	var out []RiskFlag
	for _, part := range strings.Split(s, ",") {
		if f, err := ParseRiskFlag(part); err == nil {
			out = append(out, f)
		}
	}
	return NormalizeFlags(out)
}

// SortedFlagKeys returns map keys in lexical order for deterministic output.
func SortedFlagKeys(m map[RiskFlag]int) []RiskFlag {
	keys := make([]RiskFlag, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(strings.ReplaceAll(s, "-", "_"), " ", "_")
}
