// Package upgrade decides whether a client should be offered a higher plan.
// Analysis is a pure function of the snapshot it is given; it never reads or
// writes the signal store.
package upgrade

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"clientpulse/internal/logger"
)

type Plan string

const (
	PlanStarter    Plan = "starter"
	PlanGrowth     Plan = "growth"
	PlanEnterprise Plan = "enterprise"
)

type Target string

const (
	TargetNone       Target = "none"
	TargetGrowth     Target = "growth"
	TargetEnterprise Target = "enterprise"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

type SignalType string

const (
	SignalHighUsage         SignalType = "high_usage"
	SignalExecutionRequests SignalType = "execution_requests"
	SignalExtraHoursAddon   SignalType = "extra_hours_addon"
	SignalSLARequest        SignalType = "sla_request"
	SignalIncidentPattern   SignalType = "incident_pattern"
	SignalComplianceRequest SignalType = "compliance_request"
	SignalUrgentAddonUsage  SignalType = "urgent_addon_usage"
)

// enterpriseSignals move a client straight to the enterprise tier.
var enterpriseSignals = map[SignalType]bool{
	SignalSLARequest:        true,
	SignalComplianceRequest: true,
	SignalIncidentPattern:   true,
	SignalUrgentAddonUsage:  true,
}

const (
	usageThreshold          = 80.0
	highUsageMonthsRequired = 2
	executionRequestsMin    = 3
	extraHoursAddonMin      = 2
	incidentRequestsMin     = 2
	urgentAddonMin          = 2
)

// Description carries the English and Spanish copy shown with a signal.
type Description struct {
	EN string `json:"en" yaml:"en"`
	ES string `json:"es" yaml:"es"`
}

type Signal struct {
	Type        SignalType  `json:"type" yaml:"type"`
	Description Description `json:"description" yaml:"description"`
	Priority    Priority    `json:"priority" yaml:"priority"`
}

type Request struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Priority    string `yaml:"priority"`
	Status      string `yaml:"status"`
}

// MonthlySummary is one month of usage. Month is "YYYY-MM"; summaries may
// arrive in any order.
type MonthlySummary struct {
	Month        string  `yaml:"month"`
	UsagePercent float64 `yaml:"usage_percent"`
}

type AddonCounts struct {
	ExtraHours   int `yaml:"extra_hours"`
	IncidentPack int `yaml:"incident_pack"`
}

type Input struct {
	Plan         Plan             `yaml:"plan"`
	UsagePercent float64          `yaml:"usage_percent"`
	Requests     []Request        `yaml:"requests"`
	Summaries    []MonthlySummary `yaml:"summaries"`
	Addons       *AddonCounts     `yaml:"addons"`
}

type Analysis struct {
	Signals           []Signal `json:"signals" yaml:"signals"`
	ShouldShowUpgrade bool     `json:"should_show_upgrade" yaml:"should_show_upgrade"`
	Target            Target   `json:"upgrade_target" yaml:"upgrade_target"`
	PrimaryReason     *Signal  `json:"primary_reason,omitempty" yaml:"primary_reason,omitempty"`
}

var ErrInvalidInput = errors.New("invalid upgrade input")

type Analyzer struct {
	keywords Keywords
}

func NewAnalyzer(keywords Keywords) *Analyzer {
	return &Analyzer{keywords: keywords.normalized()}
}

var defaultAnalyzer = NewAnalyzer(DefaultKeywords())

// Analyze runs the analyzer with the built-in keyword lists.
func Analyze(in Input) (Analysis, error) {
	return defaultAnalyzer.Analyze(in)
}

func validate(in Input) error {
	switch in.Plan {
	case PlanStarter, PlanGrowth, PlanEnterprise:
	case "":
		return fmt.Errorf("%w: plan is required", ErrInvalidInput)
	default:
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, in.Plan)
	}
	if math.IsNaN(in.UsagePercent) || math.IsInf(in.UsagePercent, 0) {
		return fmt.Errorf("%w: usage percent must be a finite number", ErrInvalidInput)
	}
	if in.UsagePercent < 0 {
		return fmt.Errorf("%w: usage percent must not be negative, got %v", ErrInvalidInput, in.UsagePercent)
	}
	for _, s := range in.Summaries {
		if s.UsagePercent < 0 || math.IsNaN(s.UsagePercent) {
			return fmt.Errorf("%w: monthly summary %q has invalid usage %v", ErrInvalidInput, s.Month, s.UsagePercent)
		}
	}
	if in.Addons != nil && (in.Addons.ExtraHours < 0 || in.Addons.IncidentPack < 0) {
		return fmt.Errorf("%w: add-on counts must not be negative", ErrInvalidInput)
	}
	return nil
}

func (a *Analyzer) Analyze(in Input) (Analysis, error) {
	if err := validate(in); err != nil {
		return Analysis{Target: TargetNone}, err
	}

	var addons AddonCounts
	if in.Addons != nil {
		addons = *in.Addons
	}

	var signals []Signal
	if in.Plan == PlanStarter {
		if s, ok := highUsageSignal(in.UsagePercent, in.Summaries); ok {
			signals = append(signals, s)
		}
		if s, ok := a.executionSignal(in.Requests); ok {
			signals = append(signals, s)
		}
		if addons.ExtraHours >= extraHoursAddonMin {
			signals = append(signals, Signal{
				Type:     SignalExtraHoursAddon,
				Priority: PriorityHigh,
				Description: Description{
					EN: fmt.Sprintf("Extra hours purchased %d times; a larger plan includes them.", addons.ExtraHours),
					ES: fmt.Sprintf("Horas extra compradas %d veces; un plan mayor ya las incluye.", addons.ExtraHours),
				},
			})
		}
	}
	if in.Plan == PlanStarter || in.Plan == PlanGrowth {
		if s, ok := a.slaSignal(in.Requests); ok {
			signals = append(signals, s)
		}
		if s, ok := a.incidentSignal(in.Requests); ok {
			signals = append(signals, s)
		}
		if s, ok := a.complianceSignal(in.Requests); ok {
			signals = append(signals, s)
		}
		if addons.IncidentPack >= urgentAddonMin {
			signals = append(signals, Signal{
				Type:     SignalUrgentAddonUsage,
				Priority: PriorityHigh,
				Description: Description{
					EN: fmt.Sprintf("Urgent incident add-on used %d times; enterprise includes priority response.", addons.IncidentPack),
					ES: fmt.Sprintf("Complemento de incidentes urgentes usado %d veces; enterprise incluye respuesta prioritaria.", addons.IncidentPack),
				},
			})
		}
	}

	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Priority.rank() < signals[j].Priority.rank()
	})

	out := Analysis{
		Signals:           signals,
		ShouldShowUpgrade: len(signals) > 0,
		Target:            resolveTarget(in.Plan, signals),
	}
	if len(signals) > 0 {
		primary := signals[0]
		out.PrimaryReason = &primary
	}
	return out, nil
}

// Recommend runs Analyzer.Recommend with the built-in keyword lists.
func Recommend(in Input) Analysis {
	return defaultAnalyzer.Recommend(in)
}

// Recommend is the entry point for upgrade prompts: invalid input is logged
// and treated as "no recommendation" instead of surfacing an error.
func (a *Analyzer) Recommend(in Input) Analysis {
	analysis, err := a.Analyze(in)
	if err != nil {
		logger.Warnf("upgrade analyze skipped plan=%q err=%v", in.Plan, err)
		return Analysis{Target: TargetNone}
	}
	return analysis
}

func resolveTarget(plan Plan, signals []Signal) Target {
	if len(signals) == 0 {
		return TargetNone
	}
	enterprise := false
	for _, s := range signals {
		if enterpriseSignals[s.Type] {
			enterprise = true
			break
		}
	}
	switch plan {
	case PlanStarter:
		if enterprise {
			return TargetEnterprise
		}
		return TargetGrowth
	case PlanGrowth:
		if enterprise {
			return TargetEnterprise
		}
	}
	return TargetNone
}

// highUsageSignal fires on current usage above the threshold or on enough
// high months in the summaries. It is high priority only when two
// consecutive months are both above the threshold.
func highUsageSignal(usage float64, summaries []MonthlySummary) (Signal, bool) {
	ordered := append([]MonthlySummary(nil), summaries...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Month < ordered[j].Month })

	highMonths, consecutive := 0, false
	for i, s := range ordered {
		if s.UsagePercent <= usageThreshold {
			continue
		}
		highMonths++
		if i > 0 && ordered[i-1].UsagePercent > usageThreshold && adjacentMonths(ordered[i-1].Month, s.Month) {
			consecutive = true
		}
	}
	if usage <= usageThreshold && highMonths < highUsageMonthsRequired {
		return Signal{}, false
	}

	sig := Signal{Type: SignalHighUsage, Priority: PriorityMedium}
	if consecutive {
		sig.Priority = PriorityHigh
	}
	if highMonths >= highUsageMonthsRequired {
		sig.Description = Description{
			EN: fmt.Sprintf("Usage above %.0f%% in %d recent months.", usageThreshold, highMonths),
			ES: fmt.Sprintf("Uso superior al %.0f%% en %d meses recientes.", usageThreshold, highMonths),
		}
		return sig, true
	}
	sig.Description = Description{
		EN: fmt.Sprintf("Usage at %.0f%% of included hours this period.", usage),
		ES: fmt.Sprintf("Uso al %.0f%% de las horas incluidas en este periodo.", usage),
	}
	return sig, true
}

// adjacentMonths reports whether b is the calendar month after a. Labels
// that are not "YYYY-MM" count as adjacent when they are neighbours in order.
func adjacentMonths(a, b string) bool {
	ta, errA := time.Parse("2006-01", a)
	tb, errB := time.Parse("2006-01", b)
	if errA != nil || errB != nil {
		return true
	}
	return ta.AddDate(0, 1, 0).Equal(tb)
}

func requestText(r Request) string {
	return r.Type + " " + r.Description
}

func isAdvisory(r Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Type), "advisory")
}

func isHighPriority(r Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.Priority), "high")
}

func (a *Analyzer) executionSignal(requests []Request) (Signal, bool) {
	n := 0
	for _, r := range requests {
		if !isAdvisory(r) && containsAny(requestText(r), a.keywords.Execution) {
			n++
		}
	}
	if n < executionRequestsMin {
		return Signal{}, false
	}
	return Signal{
		Type:     SignalExecutionRequests,
		Priority: PriorityMedium,
		Description: Description{
			EN: fmt.Sprintf("%d hands-on execution requests; growth includes implementation work.", n),
			ES: fmt.Sprintf("%d solicitudes de ejecución; growth incluye trabajo de implementación.", n),
		},
	}, true
}

func (a *Analyzer) slaSignal(requests []Request) (Signal, bool) {
	for _, r := range requests {
		if containsAny(requestText(r), a.keywords.SLA) {
			return Signal{
				Type:     SignalSLARequest,
				Priority: PriorityHigh,
				Description: Description{
					EN: "Requested SLA or uptime commitments, available on enterprise.",
					ES: "Solicitó compromisos de SLA o disponibilidad, disponibles en enterprise.",
				},
			}, true
		}
	}
	return Signal{}, false
}

func (a *Analyzer) incidentSignal(requests []Request) (Signal, bool) {
	n := 0
	for _, r := range requests {
		if isHighPriority(r) || containsAny(requestText(r), a.keywords.Incident) {
			n++
		}
	}
	if n < incidentRequestsMin {
		return Signal{}, false
	}
	return Signal{
		Type:     SignalIncidentPattern,
		Priority: PriorityHigh,
		Description: Description{
			EN: fmt.Sprintf("%d urgent or incident requests; enterprise adds priority incident response.", n),
			ES: fmt.Sprintf("%d solicitudes urgentes o de incidentes; enterprise agrega respuesta prioritaria.", n),
		},
	}, true
}

func (a *Analyzer) complianceSignal(requests []Request) (Signal, bool) {
	for _, r := range requests {
		if containsAny(requestText(r), a.keywords.Compliance) {
			return Signal{
				Type:     SignalComplianceRequest,
				Priority: PriorityHigh,
				Description: Description{
					EN: "Compliance work requested (SOC2, HIPAA, PCI, GDPR or audits).",
					ES: "Solicitó trabajo de cumplimiento (SOC2, HIPAA, PCI, GDPR o auditorías).",
				},
			}, true
		}
	}
	return Signal{}, false
}
