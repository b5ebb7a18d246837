package signals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"clientpulse/internal/domain"
)

type stepClock struct {
	mu  sync.Mutex
	t   time.Time
	inc time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.inc)
	return c.t
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	clock := &stepClock{t: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC), inc: time.Minute}
	seq := 0
	var seqMu sync.Mutex
	base := []Option{
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("ev-%03d", seq)
		}),
	}
	return NewStore(repo, append(base, opts...)...), repo
}

func verdict(flags ...domain.RiskFlag) domain.ClassificationVerdict {
	return domain.ClassificationVerdict{
		Category:       domain.CategoryExecution,
		EffortLevel:    domain.EffortMedium,
		EstimatedHours: 3,
		RiskFlags:      flags,
	}
}

func TestAppendKeepsMostRecentTen(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var history domain.SignalHistory
	var err error
	for i := 0; i < 11; i++ {
		history, err = store.Append(ctx, "Client@Example.com", verdict())
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		if len(history.RiskFlagEvents) > 10 || len(history.ClassificationEvents) > 10 {
			t.Fatalf("history exceeded window after %d appends", i+1)
		}
	}
	if len(history.ClassificationEvents) != 10 || len(history.RiskFlagEvents) != 10 {
		t.Fatalf("expected 10 retained events, got %d/%d", len(history.ClassificationEvents), len(history.RiskFlagEvents))
	}
	if history.ClassificationEvents[0].ID != "ev-002" || history.ClassificationEvents[9].ID != "ev-011" {
		t.Fatalf("expected oldest event evicted, got first=%s last=%s",
			history.ClassificationEvents[0].ID, history.ClassificationEvents[9].ID)
	}
	if history.ClientEmail != "client@example.com" {
		t.Fatalf("expected normalized client key, got %q", history.ClientEmail)
	}
}

func TestEvictionLowersScores(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.AppendAndRecompute(ctx, "a@example.com", verdict(domain.FlagPotentialChurn)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	rec, err := store.GetHealthRecord(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetHealthRecord: %v", err)
	}
	if rec.Status != domain.StatusChurnRisk {
		t.Fatalf("expected churn_risk, got %s", rec.Status)
	}

	for i := 0; i < 9; i++ {
		rec, err = store.AppendAndRecompute(ctx, "a@example.com", verdict())
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	// Two of the three churn events have been evicted.
	if rec.ChurnProbability != 0.2 || rec.Status != domain.StatusHealthy {
		t.Fatalf("expected eviction to lower churn score, got %+v", rec)
	}
}

func TestGetHealthRecordNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.GetHealthRecord(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetHealthRecord(context.Background(), "  "); !errors.Is(err, ErrInvalidClientKey) {
		t.Fatalf("expected ErrInvalidClientKey, got %v", err)
	}
}

func TestAppendRejectsInvalidVerdict(t *testing.T) {
	store, repo := newTestStore(t)
	bad := verdict()
	bad.EstimatedHours = -1
	if _, err := store.AppendAndRecompute(context.Background(), "a@example.com", bad); err == nil {
		t.Fatal("expected invalid verdict to be rejected")
	}
	if recs, _ := repo.ListHealthRecords(context.Background()); len(recs) != 0 {
		t.Fatalf("expected no records after rejected verdict, got %d", len(recs))
	}
}

func TestConcurrentAppendsSameClientDoNotLoseUpdates(t *testing.T) {
	store, _ := newTestStore(t, WithWindow(1000))
	ctx := context.Background()

	const writers = 64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Append(ctx, "busy@example.com", verdict(domain.FlagUpgradeSignal)); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	history, err := store.History(ctx, "busy@example.com")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history.ClassificationEvents) != writers {
		t.Fatalf("expected %d events, got %d (lost update)", writers, len(history.ClassificationEvents))
	}
	for i := 1; i < len(history.ClassificationEvents); i++ {
		if history.ClassificationEvents[i].At.Before(history.ClassificationEvents[i-1].At) {
			t.Fatalf("timestamps decreased at index %d", i)
		}
	}
}

func TestTimestampsStayNonDecreasing(t *testing.T) {
	times := []time.Time{
		time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
	i := 0
	store := NewStore(NewMemoryRepository(), WithClock(func() time.Time {
		ts := times[i]
		i++
		return ts
	}))
	ctx := context.Background()
	if _, err := store.Append(ctx, "a@example.com", verdict()); err != nil {
		t.Fatalf("append: %v", err)
	}
	h, err := store.Append(ctx, "a@example.com", verdict())
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if h.ClassificationEvents[1].At.Before(h.ClassificationEvents[0].At) {
		t.Fatalf("expected clamped timestamp, got %v then %v", h.ClassificationEvents[0].At, h.ClassificationEvents[1].At)
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []*domain.HealthRecord
}

func (r *recordingObserver) HealthChanged(_ context.Context, previous *domain.HealthRecord, _ domain.HealthRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, previous)
}

func TestObserverSeesPreviousRecord(t *testing.T) {
	obs := &recordingObserver{}
	store, _ := newTestStore(t, WithObserver(obs))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.AppendAndRecompute(ctx, "a@example.com", verdict()); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if len(obs.calls) != 2 {
		t.Fatalf("expected 2 observer calls, got %d", len(obs.calls))
	}
	if obs.calls[0] != nil {
		t.Fatal("expected nil previous record on first classification")
	}
	if obs.calls[1] == nil || obs.calls[1].EventCount != 1 {
		t.Fatalf("expected previous record with 1 event, got %+v", obs.calls[1])
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := km.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}

	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	unlockB, err := km.Lock(short, "b")
	if err != nil {
		t.Fatalf("lock b should not wait on a: %v", err)
	}
	unlockB()

	blocked, cancelBlocked := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelBlocked()
	if _, err := km.Lock(blocked, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second lock on a to time out, got %v", err)
	}

	unlockA()
	unlockA() // second call is a no-op
	if km.held() != 0 {
		t.Fatalf("expected all lock entries released, got %d", km.held())
	}
}

func TestAppendFailsWhenLockUnavailable(t *testing.T) {
	store, _ := newTestStore(t)
	unlock, err := store.locks.Lock(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := store.AppendAndRecompute(ctx, "a@example.com", verdict()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected lock timeout, got %v", err)
	}
}

func TestMemoryRepositoryReturnsDetachedRecords(t *testing.T) {
	store, repo := newTestStore(t)
	ctx := context.Background()
	if _, err := store.AppendAndRecompute(ctx, "a@example.com", verdict(domain.FlagMarginRisk)); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec, err := repo.GetHealthRecord(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetHealthRecord: %v", err)
	}
	rec.ActiveFlags[0] = domain.FlagUpgradeSignal

	listed, err := repo.ListHealthRecords(ctx)
	if err != nil {
		t.Fatalf("ListHealthRecords: %v", err)
	}
	if listed[0].ActiveFlags[0] != domain.FlagMarginRisk {
		t.Fatalf("stored flags changed through a returned record: %v", listed[0].ActiveFlags)
	}
	listed[0].ActiveFlags[0] = domain.FlagUpgradeSignal

	again, err := repo.GetHealthRecord(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetHealthRecord: %v", err)
	}
	if len(again.ActiveFlags) != 1 || again.ActiveFlags[0] != domain.FlagMarginRisk {
		t.Fatalf("stored flags changed through a listed record: %v", again.ActiveFlags)
	}
}
