package signals

import (
	"time"

	"clientpulse/internal/domain"
)

// appendBounded returns a new slice holding events plus ev, keeping at most
// capacity entries by dropping the oldest ones first.
func appendBounded[T any](events []T, ev T, capacity int) []T {
	if capacity < 1 {
		capacity = 1
	}
	if len(events) >= capacity {
		events = events[len(events)-capacity+1:]
	}
	out := make([]T, 0, len(events)+1)
	out = append(out, events...)
	return append(out, ev)
}

// AppendVerdict adds one classification outcome to a history and returns the
// new snapshot. The input history is not modified.
func AppendVerdict(history domain.SignalHistory, id string, verdict domain.ClassificationVerdict, at time.Time, capacity int) domain.SignalHistory {
	out := history.Clone()
	if n := len(out.ClassificationEvents); n > 0 && at.Before(out.ClassificationEvents[n-1].At) {
		at = out.ClassificationEvents[n-1].At
	}
	out.RiskFlagEvents = appendBounded(out.RiskFlagEvents, domain.RiskFlagEvent{
		ID:    id,
		Flags: domain.NormalizeFlags(verdict.RiskFlags),
		At:    at,
	}, capacity)
	out.ClassificationEvents = appendBounded(out.ClassificationEvents, domain.ClassificationEvent{
		ID:       id,
		Category: verdict.Category,
		At:       at,
	}, capacity)
	return out
}
