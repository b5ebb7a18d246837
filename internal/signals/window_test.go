package signals

import (
	"testing"
	"time"

	"clientpulse/internal/domain"
)

func TestAppendBoundedNeverExceedsCapacity(t *testing.T) {
	var events []int
	for i := 0; i < 25; i++ {
		events = appendBounded(events, i, 10)
		if len(events) > 10 {
			t.Fatalf("len=%d after %d appends", len(events), i+1)
		}
	}
	if events[0] != 15 || events[9] != 24 {
		t.Fatalf("unexpected window contents %v", events)
	}
}

func TestAppendBoundedShrinksOversizedInput(t *testing.T) {
	events := []int{1, 2, 3, 4, 5}
	got := appendBounded(events, 6, 3)
	if len(got) != 3 || got[0] != 4 || got[2] != 6 {
		t.Fatalf("unexpected result %v", got)
	}
	if events[0] != 1 {
		t.Fatal("input slice was modified")
	}
}

func TestAppendVerdictDoesNotMutateInput(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := domain.SignalHistory{ClientEmail: "a@example.com"}
	v := domain.ClassificationVerdict{
		Category:       domain.CategoryIncident,
		EffortLevel:    domain.EffortHigh,
		EstimatedHours: 8,
		RiskFlags:      []domain.RiskFlag{domain.FlagMarginRisk, domain.FlagMarginRisk},
	}
	out := AppendVerdict(h, "id-1", v, at, 10)
	if len(h.RiskFlagEvents) != 0 {
		t.Fatal("input history was modified")
	}
	if len(out.RiskFlagEvents[0].Flags) != 1 {
		t.Fatalf("expected duplicate flags collapsed, got %v", out.RiskFlagEvents[0].Flags)
	}
	if out.ClassificationEvents[0].Category != domain.CategoryIncident || out.ClassificationEvents[0].ID != "id-1" {
		t.Fatalf("unexpected classification event %+v", out.ClassificationEvents[0])
	}
}
