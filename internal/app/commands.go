package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"clientpulse/internal/digest"
	"clientpulse/internal/domain"
	"clientpulse/internal/intake"
	"clientpulse/internal/integrations/llm"
	"clientpulse/internal/report"
	"clientpulse/internal/signals"
	"clientpulse/internal/upgrade"
)

// ClassifyCmd returns the classify command
func ClassifyCmd() *cobra.Command {
	var (
		email string
		text  string
		meta  llm.RequestMetadata
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a client request and update the client's health",
		Long: `Send one client request to the configured language model, append the
verdict to the client's signal window and print the recomputed health record.
Rate limits and provider outages are retried with backoff.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			classifier, err := newClassifier(rt.cfg)
			if err != nil {
				return err
			}
			svc := intake.NewService(classifier, rt.store, intake.Options{
				Timeout:     rt.cfg.ClassifierTimeout(),
				MaxAttempts: rt.cfg.ClassifierMaxAttempts,
				Backoff:     rt.cfg.ClassifierBackoff(),
			})

			res, err := svc.Submit(cmd.Context(), intake.Request{ClientEmail: email, Text: text, Metadata: meta})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printVerdict(out, res.Verdict)
			fmt.Fprintln(out)
			printHealth(out, res.Record)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Client email (required)")
	cmd.Flags().StringVar(&text, "text", "", "Request text (required)")
	cmd.Flags().StringVar(&meta.Plan, "plan", "", "Client plan (starter, growth, enterprise)")
	cmd.Flags().StringVar(&meta.Environment, "env", "", "Environment the request concerns")
	cmd.Flags().StringVar(&meta.DeclaredPriority, "priority", "", "Priority declared by the client")
	cmd.Flags().StringVar(&meta.RequestType, "type", "", "Request type chosen by the client")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

// HealthCmd returns the health command
func HealthCmd() *cobra.Command {
	var (
		email       string
		showHistory bool
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show a client's health record",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(false)
			if err != nil {
				return err
			}
			defer rt.close()

			out := cmd.OutOrStdout()
			rec, err := rt.store.GetHealthRecord(cmd.Context(), email)
			if errors.Is(err, signals.ErrNotFound) {
				fmt.Fprintf(out, "No health record for %s yet.\n", strings.ToLower(strings.TrimSpace(email)))
				return nil
			}
			if err != nil {
				return err
			}
			printHealth(out, rec)

			if showHistory {
				history, err := rt.store.History(cmd.Context(), email)
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				printHistory(out, history)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Client email (required)")
	cmd.Flags().BoolVar(&showHistory, "history", false, "Also list the retained signal events")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// SummaryCmd returns the summary command
func SummaryCmd() *cobra.Command {
	var post bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize health across every tracked client",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(post)
			if err != nil {
				return err
			}
			defer rt.close()

			if post && len(rt.notifiers) == 0 {
				return fmt.Errorf("--post needs Slack or Telegram to be configured")
			}
			now := time.Now()
			if rt.cfg.Location != nil {
				now = now.In(rt.cfg.Location)
			}
			notifiers := rt.notifiers
			if !post {
				notifiers = nil
			}
			summary, err := digest.RunOnce(cmd.Context(), rt.store, notifiers, now)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.RenderText(summary, now))
			return nil
		},
	}

	cmd.Flags().BoolVar(&post, "post", false, "Also send the digest to the configured notifiers")
	return cmd
}

// UpgradeCmd returns the upgrade command
func UpgradeCmd() *cobra.Command {
	var (
		inputPath string
		asYAML    bool
	)

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Evaluate a client snapshot for a plan upgrade",
		Long: `Read a YAML snapshot (plan, usage_percent, requests, summaries, addons)
and print the upgrade signals it raises and the recommended target plan.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := setup()

			data, err := os.ReadFile(inputPath)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			var in upgrade.Input
			if err := yaml.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse snapshot yaml: %w", err)
			}
			keywords, err := upgrade.LoadKeywords(cfg.UpgradeKeywordsPath)
			if err != nil {
				return err
			}

			analysis, err := upgrade.NewAnalyzer(keywords).Analyze(in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asYAML {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(analysis); err != nil {
					return err
				}
				return enc.Close()
			}
			printAnalysis(out, in.Plan, analysis)
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Path to the snapshot YAML file (required)")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print the analysis as YAML")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled health digest until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(true)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			started, err := digest.StartScheduler(ctx, rt.cfg, rt.store, rt.notifiers)
			if err != nil {
				return err
			}
			if !started {
				return fmt.Errorf("nothing to serve: set digest_schedule and a Slack or Telegram destination")
			}
			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "Shutting down.")
			return nil
		},
	}
}

func statusColor(status domain.HealthStatus) *color.Color {
	switch status {
	case domain.StatusChurnRisk, domain.StatusMarginRisk:
		return color.New(color.FgRed, color.Bold)
	case domain.StatusAtRisk:
		return color.New(color.FgYellow)
	case domain.StatusExpansionReady:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgGreen)
	}
}

func printVerdict(out io.Writer, v domain.ClassificationVerdict) {
	fmt.Fprintf(out, "Verdict: %s (effort %s, %.1fh)\n", v.Category, v.EffortLevel, v.EstimatedHours)
	if len(v.RiskFlags) > 0 {
		fmt.Fprintf(out, "  Flags: %s\n", domain.JoinFlags(v.RiskFlags))
	}
	if v.Rationale != "" {
		fmt.Fprintf(out, "  %s\n", v.Rationale)
	}
}

func printHealth(out io.Writer, rec domain.HealthRecord) {
	fmt.Fprintf(out, "Client: %s [%s]\n", rec.ClientEmail, statusColor(rec.Status).Sprint(rec.Status))
	fmt.Fprintf(out, "  Churn: %.2f  Expansion: %.2f  Margin risk: %.2f\n",
		rec.ChurnProbability, rec.ExpansionProbability, rec.MarginRiskScore)
	fmt.Fprintf(out, "  Events: %d", rec.EventCount)
	if !rec.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "  Updated: %s", rec.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %s\n", rec.Rationale)
}

func printHistory(out io.Writer, h domain.SignalHistory) {
	fmt.Fprintf(out, "Signal window (%d events, oldest first):\n", len(h.ClassificationEvents))
	for i, ev := range h.ClassificationEvents {
		flags := "-"
		if i < len(h.RiskFlagEvents) && len(h.RiskFlagEvents[i].Flags) > 0 {
			flags = domain.JoinFlags(h.RiskFlagEvents[i].Flags)
		}
		fmt.Fprintf(out, "  %s  %-12s %s\n", ev.At.Format("2006-01-02 15:04"), ev.Category, flags)
	}
}

func printAnalysis(out io.Writer, plan upgrade.Plan, a upgrade.Analysis) {
	if !a.ShouldShowUpgrade {
		fmt.Fprintf(out, "No upgrade recommended for the %s plan.\n", plan)
		return
	}
	fmt.Fprintf(out, "Recommend upgrade: %s -> %s\n", plan, color.New(color.FgCyan, color.Bold).Sprint(a.Target))
	for _, s := range a.Signals {
		fmt.Fprintf(out, "  [%s] %s: %s\n", s.Priority, s.Type, s.Description.EN)
	}
}
