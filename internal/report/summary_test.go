package report

import (
	"strings"
	"testing"
	"time"

	"clientpulse/internal/domain"
)

func rec(email string, status domain.HealthStatus, flags ...domain.RiskFlag) domain.HealthRecord {
	return domain.HealthRecord{ClientEmail: email, Status: status, ActiveFlags: flags}
}

func fixtureRecords() []domain.HealthRecord {
	return []domain.HealthRecord{
		rec("zoe@acme.io", domain.StatusChurnRisk, domain.FlagPotentialChurn),
		rec("amy@acme.io", domain.StatusChurnRisk, domain.FlagPotentialChurn, domain.FlagScopeCreep),
		rec("bob@beta.dev", domain.StatusHealthy),
		rec("cat@beta.dev", domain.StatusHealthy),
		rec("dan@gamma.co", domain.StatusHealthy),
		rec("eve@gamma.co", domain.StatusExpansionReady, domain.FlagUpgradeSignal),
		rec("fay@delta.org", domain.StatusMarginRisk, domain.FlagMarginRisk, domain.FlagScopeCreep),
		rec("gus@delta.org", domain.StatusAtRisk),
	}
}

func TestSummarizeExactCounts(t *testing.T) {
	s := Summarize(fixtureRecords())

	if s.Total != 8 {
		t.Fatalf("expected 8 clients, got %d", s.Total)
	}
	wantStatus := map[domain.HealthStatus]int{
		domain.StatusChurnRisk:      2,
		domain.StatusMarginRisk:     1,
		domain.StatusExpansionReady: 1,
		domain.StatusAtRisk:         1,
		domain.StatusHealthy:        3,
	}
	for status, want := range wantStatus {
		if got := s.StatusCounts[status]; got != want {
			t.Fatalf("status %s: got %d, want %d", status, got, want)
		}
	}
	wantFlags := map[domain.RiskFlag]int{
		domain.FlagPotentialChurn: 2,
		domain.FlagScopeCreep:     2,
		domain.FlagUpgradeSignal:  1,
		domain.FlagMarginRisk:     1,
	}
	if len(s.FlagFrequency) != len(wantFlags) {
		t.Fatalf("unexpected flag map %v", s.FlagFrequency)
	}
	for f, want := range wantFlags {
		if got := s.FlagFrequency[f]; got != want {
			t.Fatalf("flag %s: got %d, want %d", f, got, want)
		}
	}

	churn := s.Buckets[domain.StatusChurnRisk]
	if len(churn) != 2 || churn[0] != "amy@acme.io" || churn[1] != "zoe@acme.io" {
		t.Fatalf("expected sorted churn bucket, got %v", churn)
	}
	if _, ok := s.Buckets[domain.StatusHealthy]; ok {
		t.Fatalf("healthy clients should not be bucketed")
	}
	atRisk := s.AtRisk()
	if strings.Join(atRisk, ",") != "amy@acme.io,fay@delta.org,gus@delta.org,zoe@acme.io" {
		t.Fatalf("unexpected at-risk list %v", atRisk)
	}
	if exp := s.ExpansionReady(); len(exp) != 1 || exp[0] != "eve@gamma.co" {
		t.Fatalf("unexpected expansion list %v", exp)
	}
}

func TestSummarizeEmptyFleet(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || len(s.FlagFrequency) != 0 || len(s.Buckets) != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if len(s.StatusCounts) != len(domain.AllStatuses) {
		t.Fatalf("expected a zero count for every status, got %v", s.StatusCounts)
	}
}

func TestSummarizeIsOrderIndependent(t *testing.T) {
	records := fixtureRecords()
	reversed := make([]domain.HealthRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if RenderText(Summarize(records), now) != RenderText(Summarize(reversed), now) {
		t.Fatalf("rendered digest depends on input order")
	}
}

func TestRenderText(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := RenderText(Summarize(fixtureRecords()), now)

	for _, want := range []string{
		"Client health digest (2026-03-02 09:00 UTC)",
		"Tracked clients: 8",
		"- Churn risk: 2",
		"- Healthy: 3",
		"- potential churn: 2",
		"Margin risk\n- fay@delta.org",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("digest missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "bob@beta.dev") {
		t.Fatalf("healthy clients should not be listed:\n%s", out)
	}

	empty := RenderText(Summarize(nil), now)
	if !strings.Contains(empty, "No classified client requests yet.") {
		t.Fatalf("unexpected empty digest:\n%s", empty)
	}
}
