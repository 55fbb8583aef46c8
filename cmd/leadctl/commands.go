package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"leadflow_backend/internal/followup"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/qualification"
	"leadflow_backend/internal/routing"
	"leadflow_backend/platform/httpkit"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type scoreOutput struct {
	Score           float64                `json:"score"`
	Strategy        qualification.Strategy `json:"strategy"`
	Priority        qualification.Priority `json:"priority"`
	Rank            qualification.Rank     `json:"rank,omitempty"`
	Recommendations []string               `json:"recommendations"`
}

func newScoreCmd(opts *rootOptions) *cobra.Command {
	var (
		signal  qualification.LeadSignal
		weights = qualification.DefaultWeights()
		fit     float64
		intent  float64
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a lead from signals",
		Example: `  leadctl score --company-size 120 --engagement 0.6 --budget-amount 25000 --industry technology --email
  leadctl score --fit 0.8 --intent 0.9 --timeline "need this ASAP" --budget "around $20k"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("fit") {
				signal.AIFitScore = &fit
			}
			if cmd.Flags().Changed("intent") {
				signal.IntentScore = &intent
			}
			selector, err := qualification.NewSelector(weights)
			if err != nil {
				return err
			}

			score, priority, recs := qualification.Evaluate(selector, signal)
			out := scoreOutput{
				Score:           score.Value,
				Strategy:        score.Strategy,
				Priority:        priority,
				Rank:            score.Rank,
				Recommendations: recs,
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), out)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Score", "Strategy", "Priority", "Rank"})
			tw.AppendRow(table.Row{fmt.Sprintf("%.1f", out.Score), out.Strategy, out.Priority, out.Rank})
			tw.Render()
			for _, r := range recs {
				fmt.Fprintln(cmd.OutOrStdout(), "- "+r)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&fit, "fit", 0, "AI fit score in [0,1]")
	f.Float64Var(&intent, "intent", 0, "intent score in [0,1]")
	f.StringVar(&signal.TimelineText, "timeline", "", "timeline statement")
	f.StringVar(&signal.BudgetText, "budget", "", "budget statement")
	f.IntVar(&signal.CompanySize, "company-size", 0, "employee count")
	f.Float64Var(&signal.EngagementRate, "engagement", 0, "engagement rate in [0,1]")
	f.Float64Var(&signal.BudgetAmount, "budget-amount", 0, "budget amount")
	f.StringVar(&signal.Industry, "industry", "", "industry")
	f.BoolVar(&signal.HasEmail, "email", false, "lead has an email address")
	f.BoolVar(&signal.HasPhone, "phone", false, "lead has a phone number")
	f.Float64Var(&weights.Fit, "w-fit", weights.Fit, "fit weight")
	f.Float64Var(&weights.Timeline, "w-timeline", weights.Timeline, "timeline weight")
	f.Float64Var(&weights.Budget, "w-budget", weights.Budget, "budget weight")
	f.Float64Var(&weights.Intent, "w-intent", weights.Intent, "intent weight")
	return cmd
}

type routeOutput struct {
	Team     string                 `json:"team"`
	TaskType string                 `json:"taskType"`
	Priority qualification.Priority `json:"priority"`
	DueAt    time.Time              `json:"dueAt"`
}

func newRouteCmd(opts *rootOptions) *cobra.Command {
	var rulesFile string
	cmd := &cobra.Command{
		Use:   "route <content>",
		Short: "Show which team a message routes to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := routing.LoadRules(rulesFile)
			if err != nil {
				return err
			}
			route := rt.Match(strings.Join(args, " "))
			out := routeOutput{
				Team:     route.Team,
				TaskType: route.TaskType,
				Priority: route.Priority,
				DueAt:    routing.DueAt(route.Priority, time.Now().UTC()),
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), out)
			}
			renderRoute(cmd, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rule file (defaults to the built-in table)")
	return cmd
}

func renderRoute(cmd *cobra.Command, out routeOutput) {
	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.AppendHeader(table.Row{"Team", "Task Type", "Priority", "Due"})
	tw.AppendRow(table.Row{out.Team, out.TaskType, out.Priority, out.DueAt.Format(time.RFC3339)})
	tw.Render()
}

func newRulesCmd(opts *rootOptions) *cobra.Command {
	var rulesFile string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the routing rule table in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := routing.LoadRules(rulesFile)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), rt.Rules())
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"#", "Name", "Keywords", "Team", "Priority"})
			for i, r := range rt.Rules() {
				keywords := strings.Join(r.Keywords, ", ")
				if r.IsCatchAll() {
					keywords = "(catch-all)"
				}
				tw.AppendRow(table.Row{i + 1, r.Name, keywords, r.Team, r.Priority})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rule file (defaults to the built-in table)")
	return cmd
}

func newSequenceCmd(opts *rootOptions) *cobra.Command {
	seq := &cobra.Command{Use: "sequence", Short: "Inspect follow-up sequences"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List sequence templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs := followup.Definitions()
			if opts.json {
				return printJSON(cmd.OutOrStdout(), defs)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Sequence", "Step", "Offset", "Template"})
			for _, d := range defs {
				for _, s := range d.Steps {
					tw.AppendRow(table.Row{d.Name, s.Key, s.Offset(), s.Template})
				}
				tw.AppendSeparator()
			}
			tw.Render()
			return nil
		},
	}

	var (
		base    string
		channel string
	)
	preview := &cobra.Command{
		Use:   "preview <sequence>",
		Short: "Show when each follow-up of a sequence would be sent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := followup.Lookup(args[0])
			if err != nil {
				return err
			}
			if !leads.IsKnownChannel(channel) {
				return fmt.Errorf("unsupported channel: %s", channel)
			}
			at := time.Now().UTC()
			if base != "" {
				if at, err = time.Parse(time.RFC3339, base); err != nil {
					return fmt.Errorf("invalid --base: %w", err)
				}
			}

			planned := followup.Plan(def, uuid.Nil, channel, at)
			if opts.json {
				return printJSON(cmd.OutOrStdout(), planned)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Scheduled At", "Channel", "Content"})
			for _, e := range planned {
				tw.AppendRow(table.Row{e.ScheduledAt.Format(time.RFC3339), e.Channel, e.Content})
			}
			tw.Render()
			return nil
		},
	}
	preview.Flags().StringVar(&base, "base", "", "base time (RFC3339, default now)")
	preview.Flags().StringVar(&channel, "channel", leads.ChannelEmail, "delivery channel")

	seq.AddCommand(list, preview)
	return seq
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		secret   string
		operator string
		roles    []string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator access token for the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := uuid.New()
			if operator != "" {
				parsed, err := uuid.Parse(operator)
				if err != nil {
					return fmt.Errorf("invalid --operator: %w", err)
				}
				id = parsed
			}
			token, err := httpkit.IssueAccessToken(secret, id, roles, ttl)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"operatorId": id,
					"roles":      roles,
					"expiresIn":  ttl.String(),
					"token":      token,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_ACCESS_SECRET"), "signing secret (default $JWT_ACCESS_SECRET)")
	cmd.Flags().StringVar(&operator, "operator", "", "operator id (random when empty)")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"operator"}, "granted roles")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
