package health

import (
	"reflect"
	"testing"
	"time"

	"clientpulse/internal/domain"
)

func historyWith(flagSets ...[]domain.RiskFlag) domain.SignalHistory {
	h := domain.SignalHistory{ClientEmail: "client@example.com"}
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i, flags := range flagSets {
		at := base.Add(time.Duration(i) * time.Hour)
		h.RiskFlagEvents = append(h.RiskFlagEvents, domain.RiskFlagEvent{Flags: flags, At: at})
		h.ClassificationEvents = append(h.ClassificationEvents, domain.ClassificationEvent{Category: domain.CategoryExecution, At: at})
	}
	return h
}

func repeat(flags []domain.RiskFlag, n int) [][]domain.RiskFlag {
	out := make([][]domain.RiskFlag, n)
	for i := range out {
		out[i] = flags
	}
	return out
}

func TestScoreEmptyHistoryIsHealthy(t *testing.T) {
	rec := Score(domain.SignalHistory{ClientEmail: "new@example.com"})
	if rec.Status != domain.StatusHealthy {
		t.Fatalf("expected healthy, got %s", rec.Status)
	}
	if rec.ChurnProbability != 0 || rec.ExpansionProbability != 0 || rec.MarginRiskScore != 0 {
		t.Fatalf("expected zero probabilities, got %+v", rec)
	}
	if rec.Rationale != "No classified requests yet." {
		t.Fatalf("unexpected rationale %q", rec.Rationale)
	}
}

func TestScoreStatusPrecedence(t *testing.T) {
	churn := []domain.RiskFlag{domain.FlagPotentialChurn}
	margin := []domain.RiskFlag{domain.FlagMarginRisk}
	upgrade := []domain.RiskFlag{domain.FlagUpgradeSignal}
	both := []domain.RiskFlag{domain.FlagPotentialChurn, domain.FlagMarginRisk}

	tests := []struct {
		name   string
		events [][]domain.RiskFlag
		want   domain.HealthStatus
	}{
		{"churn beats margin", repeat(both, 3), domain.StatusChurnRisk},
		{"margin beats expansion", append(repeat(margin, 3), repeat(upgrade, 3)...), domain.StatusMarginRisk},
		{"expansion ready", repeat(upgrade, 3), domain.StatusExpansionReady},
		{"two churn flags is at risk", repeat(churn, 2), domain.StatusAtRisk},
		{"two margin flags is at risk", repeat(margin, 2), domain.StatusAtRisk},
		{"one churn flag stays healthy", repeat(churn, 1), domain.StatusHealthy},
		{"scope creep alone stays healthy", repeat([]domain.RiskFlag{domain.FlagScopeCreep}, 10), domain.StatusHealthy},
	}
	for _, tt := range tests {
		rec := Score(historyWith(tt.events...))
		if rec.Status != tt.want {
			t.Fatalf("%s: status = %s, want %s (record %+v)", tt.name, rec.Status, tt.want, rec)
		}
	}
}

func TestScoreMonotonicAndClamped(t *testing.T) {
	flags := []domain.RiskFlag{domain.FlagPotentialChurn, domain.FlagUpgradeSignal, domain.FlagMarginRisk}
	var prev domain.HealthRecord
	for n := 0; n <= 10; n++ {
		rec := Score(historyWith(repeat(flags, n)...))
		if rec.ChurnProbability < prev.ChurnProbability ||
			rec.ExpansionProbability < prev.ExpansionProbability ||
			rec.MarginRiskScore < prev.MarginRiskScore {
			t.Fatalf("scores decreased at n=%d: prev=%+v cur=%+v", n, prev, rec)
		}
		for _, p := range []float64{rec.ChurnProbability, rec.ExpansionProbability, rec.MarginRiskScore} {
			if p < 0 || p > 0.99 {
				t.Fatalf("score out of range at n=%d: %v", n, p)
			}
		}
		prev = rec
	}
	if prev.ChurnProbability != 0.99 || prev.ExpansionProbability != 0.99 || prev.MarginRiskScore != 0.99 {
		t.Fatalf("expected all scores clamped to 0.99, got %+v", prev)
	}
}

func TestScoreCountsFlagOncePerEvent(t *testing.T) {
	h := historyWith([]domain.RiskFlag{domain.FlagPotentialChurn, domain.FlagPotentialChurn})
	c := Count(h)
	if c.Churn != 1 {
		t.Fatalf("expected duplicated flag to count once, got %d", c.Churn)
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	h := historyWith(
		[]domain.RiskFlag{domain.FlagMarginRisk},
		[]domain.RiskFlag{domain.FlagUpgradeSignal, domain.FlagScopeCreep},
	)
	first := Score(h)
	second := Score(h)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("scorer is not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestRationaleNamesLatestEvent(t *testing.T) {
	h := historyWith(
		[]domain.RiskFlag{domain.FlagPotentialChurn},
		[]domain.RiskFlag{domain.FlagMarginRisk, domain.FlagScopeCreep},
	)
	h.ClassificationEvents[1].Category = domain.CategoryOutOfScope
	got := Rationale(h)
	want := "Latest request classified as out of scope; flags: scope creep, margin risk."
	if got != want {
		t.Fatalf("Rationale = %q, want %q", got, want)
	}
	rec := Score(h)
	if rec.LastCategory != domain.CategoryOutOfScope {
		t.Fatalf("unexpected last category %s", rec.LastCategory)
	}
	if !reflect.DeepEqual(rec.ActiveFlags, []domain.RiskFlag{domain.FlagScopeCreep, domain.FlagMarginRisk}) {
		t.Fatalf("unexpected active flags %v", rec.ActiveFlags)
	}
}
