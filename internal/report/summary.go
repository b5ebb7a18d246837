// Package report rolls per-client health records up into fleet summaries.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"clientpulse/internal/domain"
)

// RiskSummary is a fleet-wide view of client health. StatusCounts always has
// an entry for every status; Buckets only lists non-healthy statuses that
// have at least one client.
type RiskSummary struct {
	Total         int
	StatusCounts  map[domain.HealthStatus]int
	FlagFrequency map[domain.RiskFlag]int
	Buckets       map[domain.HealthStatus][]string
}

// Summarize counts statuses and currently firing flags. Emails inside each
// bucket are sorted so repeated runs produce identical output.
func Summarize(records []domain.HealthRecord) RiskSummary {
	s := RiskSummary{
		Total:         len(records),
		StatusCounts:  make(map[domain.HealthStatus]int, len(domain.AllStatuses)),
		FlagFrequency: make(map[domain.RiskFlag]int),
		Buckets:       make(map[domain.HealthStatus][]string),
	}
	for _, status := range domain.AllStatuses {
		s.StatusCounts[status] = 0
	}

	for _, rec := range records {
		s.StatusCounts[rec.Status]++
		for _, f := range domain.NormalizeFlags(rec.ActiveFlags) {
			s.FlagFrequency[f]++
		}
		if rec.Status != domain.StatusHealthy {
			s.Buckets[rec.Status] = append(s.Buckets[rec.Status], rec.ClientEmail)
		}
	}
	for status := range s.Buckets {
		sort.Strings(s.Buckets[status])
	}
	return s
}

// AtRisk returns every client outside the healthy and expansion_ready
// statuses, sorted by email.
func (s RiskSummary) AtRisk() []string {
	var out []string
	for _, status := range []domain.HealthStatus{domain.StatusChurnRisk, domain.StatusMarginRisk, domain.StatusAtRisk} {
		out = append(out, s.Buckets[status]...)
	}
	sort.Strings(out)
	return out
}

func (s RiskSummary) ExpansionReady() []string {
	return s.Buckets[domain.StatusExpansionReady]
}

func statusLabel(status domain.HealthStatus) string {
	switch status {
	case domain.StatusChurnRisk:
		return "Churn risk"
	case domain.StatusMarginRisk:
		return "Margin risk"
	case domain.StatusExpansionReady:
		return "Expansion ready"
	case domain.StatusAtRisk:
		return "At risk"
	default:
		return "Healthy"
	}
}

// RenderText formats the summary as a plain-text digest for chat delivery.
func RenderText(s RiskSummary, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Client health digest (%s)\n", now.Format("2006-01-02 15:04 MST")))
	b.WriteString(fmt.Sprintf("Tracked clients: %d\n", s.Total))
	if s.Total == 0 {
		b.WriteString("No classified client requests yet.\n")
		return b.String()
	}

	b.WriteString("\nStatus\n")
	for _, status := range domain.AllStatuses {
		b.WriteString(fmt.Sprintf("- %s: %d\n", statusLabel(status), s.StatusCounts[status]))
	}

	if len(s.FlagFrequency) > 0 {
		b.WriteString("\nActive flags\n")
		for _, f := range domain.SortedFlagKeys(s.FlagFrequency) {
			b.WriteString(fmt.Sprintf("- %s: %d\n", strings.ReplaceAll(string(f), "_", " "), s.FlagFrequency[f]))
		}
	}

	for _, status := range domain.AllStatuses {
		emails := s.Buckets[status]
		if len(emails) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("\n%s\n", statusLabel(status)))
		for _, email := range emails {
			b.WriteString(fmt.Sprintf("- %s\n", email))
		}
	}
	return b.String()
}
