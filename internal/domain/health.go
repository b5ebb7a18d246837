package domain

import "time"

type HealthStatus string

const (
	StatusHealthy        HealthStatus = "healthy"
	StatusAtRisk         HealthStatus = "at_risk"
	StatusChurnRisk      HealthStatus = "churn_risk"
	StatusExpansionReady HealthStatus = "expansion_ready"
	StatusMarginRisk     HealthStatus = "margin_risk"
)

// AllStatuses is ordered by scoring precedence, healthy last.
var AllStatuses = []HealthStatus{StatusChurnRisk, StatusMarginRisk, StatusExpansionReady, StatusAtRisk, StatusHealthy}

func (s HealthStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// HealthRecord is the derived per-client health view, rebuilt in full from the
// signal history on every classification.
type HealthRecord struct {
	ClientEmail          string
	Status               HealthStatus
	ChurnProbability     float64
	ExpansionProbability float64
	MarginRiskScore      float64
	ActiveFlags          []RiskFlag // flags of the most recent classification
	LastCategory         Category
	EventCount           int
	Rationale            string
	UpdatedAt            time.Time
}
