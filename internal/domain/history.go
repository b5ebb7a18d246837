package domain

import "time"

// DefaultSignalWindow is the number of classification outcomes retained per client.
const DefaultSignalWindow = 10

type RiskFlagEvent struct {
	ID    string
	Flags []RiskFlag
	At    time.Time
}

type ClassificationEvent struct {
	ID       string
	Category Category
	At       time.Time
}

// SignalHistory is the bounded per-client record of past classifications.
// Both sequences are ordered oldest first.
type SignalHistory struct {
	ClientEmail          string
	RiskFlagEvents       []RiskFlagEvent
	ClassificationEvents []ClassificationEvent
}

// Clone returns a deep copy so callers never share backing arrays with a store.
func (h SignalHistory) Clone() SignalHistory {
	out := SignalHistory{ClientEmail: h.ClientEmail}
	if len(h.RiskFlagEvents) > 0 {
		out.RiskFlagEvents = make([]RiskFlagEvent, len(h.RiskFlagEvents))
		for i, ev := range h.RiskFlagEvents {
			ev.Flags = append([]RiskFlag(nil), ev.Flags...)
			out.RiskFlagEvents[i] = ev
		}
	}
	if len(h.ClassificationEvents) > 0 {
		out.ClassificationEvents = append([]ClassificationEvent(nil), h.ClassificationEvents...)
	}
	return out
}

func (h SignalHistory) LatestRiskFlags() []RiskFlag {
	if len(h.RiskFlagEvents) == 0 {
		return nil
	}
	return h.RiskFlagEvents[len(h.RiskFlagEvents)-1].Flags
}

func (h SignalHistory) LatestCategory() (Category, bool) {
	if len(h.ClassificationEvents) == 0 {
		return "", false
	}
	return h.ClassificationEvents[len(h.ClassificationEvents)-1].Category, true
}
