// Package signals keeps the bounded per-client signal history and the health
// record derived from it. Mutations for one client are serialized; different
// clients proceed independently.
package signals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clientpulse/internal/domain"
	"clientpulse/internal/health"
	"clientpulse/internal/logger"
)

var (
	ErrNotFound         = errors.New("health record not found")
	ErrInvalidClientKey = errors.New("client email is required")
)

// UpdateFunc derives the next history and record from the stored ones.
// previous is nil when the client has no record yet.
type UpdateFunc func(history domain.SignalHistory, previous *domain.HealthRecord) (domain.SignalHistory, domain.HealthRecord, error)

// Repository persists histories and health records. Update must read, call fn
// and write both results under one exclusive transaction, so two stores
// sharing the same backing data cannot interleave a read and a write.
type Repository interface {
	LoadHistory(ctx context.Context, email string) (domain.SignalHistory, error)
	Update(ctx context.Context, email string, fn UpdateFunc) error
	GetHealthRecord(ctx context.Context, email string) (domain.HealthRecord, error)
	ListHealthRecords(ctx context.Context) ([]domain.HealthRecord, error)
}

// Observer is told about every recomputed record after it has been saved.
// previous is nil for a client's first classification.
type Observer interface {
	HealthChanged(ctx context.Context, previous *domain.HealthRecord, current domain.HealthRecord)
}

type Store struct {
	repo      Repository
	locks     *KeyedMutex
	window    int
	now       func() time.Time
	newID     func() string
	observers []Observer
}

type Option func(*Store)

func WithWindow(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.window = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

func NewStore(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		locks:  NewKeyedMutex(),
		window: domain.DefaultSignalWindow,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NormalizeClientKey(email string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if key == "" {
		return "", ErrInvalidClientKey
	}
	return key, nil
}

// Append records a verdict for the client and returns the updated history.
// The health record is recomputed and saved in the same step.
func (s *Store) Append(ctx context.Context, email string, verdict domain.ClassificationVerdict) (domain.SignalHistory, error) {
	history, _, err := s.mutate(ctx, email, verdict)
	return history, err
}

// AppendAndRecompute records a verdict and returns the recomputed health record.
func (s *Store) AppendAndRecompute(ctx context.Context, email string, verdict domain.ClassificationVerdict) (domain.HealthRecord, error) {
	_, record, err := s.mutate(ctx, email, verdict)
	return record, err
}

func (s *Store) mutate(ctx context.Context, email string, verdict domain.ClassificationVerdict) (domain.SignalHistory, domain.HealthRecord, error) {
	key, err := NormalizeClientKey(email)
	if err != nil {
		return domain.SignalHistory{}, domain.HealthRecord{}, err
	}
	if err := verdict.Validate(); err != nil {
		return domain.SignalHistory{}, domain.HealthRecord{}, fmt.Errorf("invalid verdict: %w", err)
	}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return domain.SignalHistory{}, domain.HealthRecord{}, fmt.Errorf("acquire client lock %s: %w", key, err)
	}
	history, previous, record, err := s.recompute(ctx, key, verdict)
	unlock()
	if err != nil {
		return domain.SignalHistory{}, domain.HealthRecord{}, err
	}

	for _, o := range s.observers {
		o.HealthChanged(ctx, previous, record)
	}
	return history, record, nil
}

// recompute runs with the client lock held.
func (s *Store) recompute(ctx context.Context, key string, verdict domain.ClassificationVerdict) (domain.SignalHistory, *domain.HealthRecord, domain.HealthRecord, error) {
	var (
		updated  domain.SignalHistory
		previous *domain.HealthRecord
		record   domain.HealthRecord
	)
	err := s.repo.Update(ctx, key, func(history domain.SignalHistory, prev *domain.HealthRecord) (domain.SignalHistory, domain.HealthRecord, error) {
		history.ClientEmail = key
		now := s.now().UTC()
		updated = AppendVerdict(history, s.newID(), verdict, now, s.window)
		record = health.Score(updated)
		record.UpdatedAt = now
		previous = prev
		return updated, record, nil
	})
	if err != nil {
		return domain.SignalHistory{}, nil, domain.HealthRecord{}, fmt.Errorf("update %s: %w", key, err)
	}
	logger.Infof("signals append email=%s category=%s flags=%s events=%d status=%s",
		key, verdict.Category, domain.JoinFlags(verdict.RiskFlags), len(updated.ClassificationEvents), record.Status)
	return updated, previous, record, nil
}

func (s *Store) GetHealthRecord(ctx context.Context, email string) (domain.HealthRecord, error) {
	key, err := NormalizeClientKey(email)
	if err != nil {
		return domain.HealthRecord{}, err
	}
	return s.repo.GetHealthRecord(ctx, key)
}

func (s *Store) History(ctx context.Context, email string) (domain.SignalHistory, error) {
	key, err := NormalizeClientKey(email)
	if err != nil {
		return domain.SignalHistory{}, err
	}
	return s.repo.LoadHistory(ctx, key)
}

func (s *Store) ListHealthRecords(ctx context.Context) ([]domain.HealthRecord, error) {
	return s.repo.ListHealthRecords(ctx)
}
