package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shaiso/Mender/internal/audit"
	"github.com/shaiso/Mender/internal/classify"
	"github.com/spf13/cobra"
)

// NewErrorsCmd создаёт группу команд для журнала сбоев.
func NewErrorsCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Inspect recorded step failures",
	}

	cmd.AddCommand(
		newErrorsListCmd(env),
		newErrorsAnalyzeCmd(env),
	)
	return cmd
}

func newErrorsListCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			a, err := env.local(nil)
			if err != nil {
				return err
			}

			errs, err := a.Audit.ListErrors(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"ID", "TIME", "KIND", "SEVERITY", "STEP", "MESSAGE"}
			rows := make([][]string, len(errs))
			for i, e := range errs {
				rows[i] = []string{
					e.ID,
					e.Timestamp.Format(time.RFC3339),
					string(e.Kind),
					string(e.Severity),
					e.Step.ID,
					e.Message,
				}
			}
			out.Print(headers, rows, errs)
			return nil
		},
	}
}

func newErrorsAnalyzeCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Summarize failure kinds and healing outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			a, err := env.local(nil)
			if err != nil {
				return err
			}

			errs, err := a.Audit.ListErrors(cmd.Context())
			if err != nil {
				return err
			}
			sessions, err := a.Audit.ListHealing(cmd.Context())
			if err != nil {
				return err
			}

			report := classify.Analyze(errs, sessions)
			if out.JSONMode() {
				out.JSON(report)
				return nil
			}

			rows := [][]string{
				{"total errors", strconv.Itoa(report.TotalErrors)},
				{"healable", strconv.Itoa(report.HealableCount)},
				{"healing sessions", strconv.Itoa(report.HealingSessions)},
				{"healing success rate", fmt.Sprintf("%.1f%%", report.HealingSuccessRate*100)},
				{"most common", string(report.MostCommonKind)},
			}
			for kind, n := range report.KindDistribution {
				rows = append(rows, []string{"kind " + string(kind), strconv.Itoa(n)})
			}
			for sev, n := range report.SeverityDistribution {
				rows = append(rows, []string{"severity " + string(sev), strconv.Itoa(n)})
			}
			out.Table([]string{"METRIC", "VALUE"}, rows)
			return nil
		},
	}
}

// NewExecutionsCmd создаёт группу команд для локальной истории выполнений.
func NewExecutionsCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executions",
		Short: "Inspect local execution history",
	}

	cmd.AddCommand(
		newExecutionsListCmd(env),
		newExecutionsCleanupCmd(env),
	)
	return cmd
}

func newExecutionsListCmd(env Env) *cobra.Command {
	var (
		workflow string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			a, err := env.local(nil)
			if err != nil {
				return err
			}

			items, err := a.Audit.ListExecutions(cmd.Context(), audit.ExecutionFilter{
				WorkflowName: workflow,
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "WORKFLOW", "STATUS", "STARTED", "DURATION", "SUCCESS_RATE", "BATCH"}
			rows := make([][]string, len(items))
			for i, e := range items {
				rows[i] = []string{
					e.ID,
					e.WorkflowName,
					string(e.Status),
					e.StartTime.Format(time.RFC3339),
					formatMs(e.DurationMs),
					fmt.Sprintf("%.0f%%", e.SuccessRate*100),
					strconv.FormatBool(e.IsBatch),
				}
			}
			out.Print(headers, rows, items)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflow, "workflow", "", "Filter by workflow name")
	cmd.Flags().IntVar(&limit, "limit", audit.DefaultListLimit, "Maximum number of results")
	return cmd
}

func newExecutionsCleanupCmd(env Env) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit records older than N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			a, err := env.local(nil)
			if err != nil {
				return err
			}
			if days <= 0 {
				days = a.Config.Storage.RetentionDays
			}

			removed, err := a.Audit.Cleanup(cmd.Context(), days)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Removed %d %s older than %d days", removed, plural(removed, "record"), days))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default from config)")
	return cmd
}
