// Package health derives a client's health record from its signal history.
// Everything here is a pure function of the history snapshot: no clock, no
// I/O and no counters carried between calls.
package health

import (
	"fmt"
	"strings"

	"clientpulse/internal/domain"
)

const (
	churnWeight     = 0.20
	expansionWeight = 0.25
	marginWeight    = 0.20
	maxProbability  = 0.99

	highThreshold     = 0.5
	elevatedThreshold = 0.2
)

// FlagCounts holds the number of retained events carrying each flag.
// A flag repeated inside one event counts once.
type FlagCounts struct {
	Churn   int
	Upgrade int
	Margin  int
}

func Count(history domain.SignalHistory) FlagCounts {
	var c FlagCounts
	for _, ev := range history.RiskFlagEvents {
		for _, f := range domain.NormalizeFlags(ev.Flags) {
			switch f {
			case domain.FlagPotentialChurn:
				c.Churn++
			case domain.FlagUpgradeSignal:
				c.Upgrade++
			case domain.FlagMarginRisk:
				c.Margin++
			}
		}
	}
	return c
}

func probability(count int, weight float64) float64 {
	p := float64(count) * weight
	if p > maxProbability {
		return maxProbability
	}
	return p
}

// DeriveStatus applies the fixed precedence: churn, margin, expansion, at risk.
func DeriveStatus(churn, margin, expansion float64) domain.HealthStatus {
	switch {
	case churn > highThreshold:
		return domain.StatusChurnRisk
	case margin > highThreshold:
		return domain.StatusMarginRisk
	case expansion > highThreshold:
		return domain.StatusExpansionReady
	case churn > elevatedThreshold || margin > elevatedThreshold:
		return domain.StatusAtRisk
	default:
		return domain.StatusHealthy
	}
}

// Score recomputes the full health record for a history. UpdatedAt is left
// zero; the store stamps it when persisting.
func Score(history domain.SignalHistory) domain.HealthRecord {
	counts := Count(history)
	rec := domain.HealthRecord{
		ClientEmail:          history.ClientEmail,
		ChurnProbability:     probability(counts.Churn, churnWeight),
		ExpansionProbability: probability(counts.Upgrade, expansionWeight),
		MarginRiskScore:      probability(counts.Margin, marginWeight),
		ActiveFlags:          domain.NormalizeFlags(history.LatestRiskFlags()),
		EventCount:           len(history.ClassificationEvents),
		Rationale:            Rationale(history),
	}
	if cat, ok := history.LatestCategory(); ok {
		rec.LastCategory = cat
	}
	rec.Status = DeriveStatus(rec.ChurnProbability, rec.MarginRiskScore, rec.ExpansionProbability)
	return rec
}

func Rationale(history domain.SignalHistory) string {
	cat, ok := history.LatestCategory()
	if !ok {
		return "No classified requests yet."
	}
	flags := domain.NormalizeFlags(history.LatestRiskFlags())
	if len(flags) == 0 {
		return fmt.Sprintf("Latest request classified as %s with no risk flags.", humanize(string(cat)))
	}
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		names = append(names, humanize(string(f)))
	}
	return fmt.Sprintf("Latest request classified as %s; flags: %s.", humanize(string(cat)), strings.Join(names, ", "))
}

func humanize(token string) string {
	return strings.ReplaceAll(token, "_", " ")
}
