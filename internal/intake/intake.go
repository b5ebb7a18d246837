// Package intake classifies an incoming client request and records the
// verdict against the client's signal history.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clientpulse/internal/domain"
	"clientpulse/internal/integrations/llm"
	"clientpulse/internal/logger"
	"clientpulse/internal/signals"
)

var ErrEmptyRequest = errors.New("request text is empty")

// Recorder is the part of signals.Store the service writes through.
type Recorder interface {
	AppendAndRecompute(ctx context.Context, email string, verdict domain.ClassificationVerdict) (domain.HealthRecord, error)
}

type Request struct {
	ClientEmail string
	Text        string
	Metadata    llm.RequestMetadata
}

type Result struct {
	Verdict  domain.ClassificationVerdict
	Record   domain.HealthRecord
	Attempts int
}

type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

type Service struct {
	classifier llm.Classifier
	recorder   Recorder
	opts       Options
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewService(classifier llm.Classifier, recorder Recorder, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	return &Service{classifier: classifier, recorder: recorder, opts: opts, sleep: sleepCtx}
}

// Submit classifies the request and appends the verdict. Rate limits and
// provider outages are retried with exponential backoff; any other classifier
// error ends the attempt. Nothing is recorded unless classification succeeds.
func (s *Service) Submit(ctx context.Context, req Request) (Result, error) {
	email, err := signals.NormalizeClientKey(req.ClientEmail)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(req.Text) == "" {
		return Result{}, ErrEmptyRequest
	}

	verdict, attempts, err := s.classify(ctx, req.Text, req.Metadata)
	if err != nil {
		logger.Warnf("intake classify failed email=%s attempts=%d err=%v", email, attempts, err)
		return Result{Attempts: attempts}, fmt.Errorf("classify request for %s: %w", email, err)
	}

	record, err := s.recorder.AppendAndRecompute(ctx, email, verdict)
	if err != nil {
		return Result{Verdict: verdict, Attempts: attempts}, fmt.Errorf("record verdict for %s: %w", email, err)
	}
	logger.Infof("intake classified email=%s category=%s effort=%s hours=%.1f attempts=%d status=%s",
		email, verdict.Category, verdict.EffortLevel, verdict.EstimatedHours, attempts, record.Status)
	return Result{Verdict: verdict, Record: record, Attempts: attempts}, nil
}

func (s *Service) classify(ctx context.Context, text string, meta llm.RequestMetadata) (domain.ClassificationVerdict, int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		verdict, err := s.classifier.Classify(callCtx, text, meta)
		cancel()
		if err == nil {
			return verdict, attempt, nil
		}
		lastErr = err
		if !llm.IsTransient(err) || attempt == s.opts.MaxAttempts {
			return domain.ClassificationVerdict{}, attempt, lastErr
		}

		delay := s.opts.Backoff << (attempt - 1)
		logger.Warnf("intake classify retry attempt=%d/%d delay=%s err=%v", attempt, s.opts.MaxAttempts, delay, err)
		if err := s.sleep(ctx, delay); err != nil {
			return domain.ClassificationVerdict{}, attempt, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
	return domain.ClassificationVerdict{}, s.opts.MaxAttempts, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
