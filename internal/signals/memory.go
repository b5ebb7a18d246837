package signals

import (
	"context"
	"sort"
	"sync"

	"clientpulse/internal/domain"
)

// MemoryRepository is an in-process Repository, used by tests and by the CLI
// when no database is wanted.
type MemoryRepository struct {
	mu        sync.RWMutex
	histories map[string]domain.SignalHistory
	records   map[string]domain.HealthRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		histories: make(map[string]domain.SignalHistory),
		records:   make(map[string]domain.HealthRecord),
	}
}

func (m *MemoryRepository) LoadHistory(_ context.Context, email string) (domain.SignalHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.histories[email]
	if !ok {
		return domain.SignalHistory{ClientEmail: email}, nil
	}
	return h.Clone(), nil
}

// Update holds the write lock while fn runs.
func (m *MemoryRepository) Update(_ context.Context, email string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := domain.SignalHistory{ClientEmail: email}
	if h, ok := m.histories[email]; ok {
		history = h.Clone()
	}
	var previous *domain.HealthRecord
	if rec, ok := m.records[email]; ok {
		rec = copyRecord(rec)
		previous = &rec
	}

	next, record, err := fn(history, previous)
	if err != nil {
		return err
	}
	m.histories[email] = next.Clone()
	m.records[email] = copyRecord(record)
	return nil
}

func (m *MemoryRepository) GetHealthRecord(_ context.Context, email string) (domain.HealthRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[email]
	if !ok {
		return domain.HealthRecord{}, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *MemoryRepository) ListHealthRecords(_ context.Context) ([]domain.HealthRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.HealthRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientEmail < out[j].ClientEmail })
	return out, nil
}

func copyRecord(rec domain.HealthRecord) domain.HealthRecord {
	rec.ActiveFlags = append([]domain.RiskFlag(nil), rec.ActiveFlags...)
	return rec
}
