package notify

import (
	"context"
	"fmt"

	"clientpulse/internal/domain"
	"clientpulse/internal/signals"
)

var _ signals.Observer = (*Alerts)(nil)

// Alerts posts a line whenever a client's health status changes. A first
// record is only announced when it is not healthy.
type Alerts struct {
	notifiers []Notifier
}

func NewAlerts(notifiers ...Notifier) *Alerts {
	return &Alerts{notifiers: notifiers}
}

// Enabled reports whether any notifier is configured.
func (a *Alerts) Enabled() bool { return len(a.notifiers) > 0 }

func (a *Alerts) HealthChanged(ctx context.Context, previous *domain.HealthRecord, current domain.HealthRecord) {
	if !shouldAlert(previous, current) {
		return
	}
	_ = Broadcast(ctx, a.notifiers, FormatTransition(previous, current))
}

func shouldAlert(previous *domain.HealthRecord, current domain.HealthRecord) bool {
	if previous == nil {
		return current.Status != domain.StatusHealthy
	}
	return previous.Status != current.Status
}

func FormatTransition(previous *domain.HealthRecord, current domain.HealthRecord) string {
	from := "new"
	if previous != nil {
		from = string(previous.Status)
	}
	return fmt.Sprintf("Client %s: %s -> %s (churn %.2f, expansion %.2f, margin %.2f). %s",
		current.ClientEmail, from, current.Status,
		current.ChurnProbability, current.ExpansionProbability, current.MarginRiskScore,
		current.Rationale)
}
