// Package digest posts the fleet health summary on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"clientpulse/internal/config"
	"clientpulse/internal/domain"
	"clientpulse/internal/logger"
	"clientpulse/internal/notify"
	"clientpulse/internal/report"
)

type RecordLister interface {
	ListHealthRecords(ctx context.Context) ([]domain.HealthRecord, error)
}

// RunOnce summarizes every stored health record and sends the rendered
// digest to the notifiers. With no notifiers it only builds the summary.
func RunOnce(ctx context.Context, lister RecordLister, notifiers []notify.Notifier, now time.Time) (report.RiskSummary, error) {
	records, err := lister.ListHealthRecords(ctx)
	if err != nil {
		return report.RiskSummary{}, fmt.Errorf("list health records: %w", err)
	}
	summary := report.Summarize(records)
	logger.Infof("digest built clients=%d at_risk=%d expansion_ready=%d",
		summary.Total, len(summary.AtRisk()), len(summary.ExpansionReady()))
	if len(notifiers) == 0 {
		return summary, nil
	}
	return summary, notify.Broadcast(ctx, notifiers, report.RenderText(summary, now))
}

// StartScheduler runs the digest in the background on cfg.DigestSchedule
// until ctx is cancelled. It returns false when no schedule or destination
// is configured.
func StartScheduler(ctx context.Context, cfg config.Config, lister RecordLister, notifiers []notify.Notifier) (bool, error) {
	schedule := strings.TrimSpace(cfg.DigestSchedule)
	if schedule == "" {
		logger.Infof("Digest disabled (digest_schedule is empty)")
		return false, nil
	}
	if len(notifiers) == 0 {
		logger.Infof("Digest disabled: neither Slack nor Telegram is configured")
		return false, nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return false, fmt.Errorf("invalid digest_schedule '%s': %w", schedule, err)
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	names := make([]string, 0, len(notifiers))
	for _, n := range notifiers {
		names = append(names, n.Name())
	}
	logger.Infof("Digest scheduled (cron: %s) to %s", schedule, strings.Join(names, " + "))

	go runLoop(ctx, sched, loc, func(now time.Time) {
		if _, err := RunOnce(ctx, lister, notifiers, now); err != nil {
			logger.Errorf("Digest error: %v", err)
		}
	})
	return true, nil
}

func runLoop(ctx context.Context, sched cron.Schedule, loc *time.Location, job func(time.Time)) {
	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		wait := next.Sub(now)
		logger.Debugf("Next digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		job(time.Now().In(loc))
	}
}
