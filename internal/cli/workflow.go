package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Mender/internal/engine"
	"github.com/spf13/cobra"
)

// NewValidateCmd создаёт команду проверки документа workflow.
func NewValidateCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "validate WORKFLOW_FILE",
		Short: "Validate a workflow document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			a, err := env.local(nil)
			if err != nil {
				return err
			}

			wf, err := engine.LoadFile(a.FS, args[0])
			if err != nil {
				return err
			}
			if err := engine.Validate(wf); err != nil {
				return err
			}

			result := a.Mutator.Validate(wf)
			if out.JSONMode() {
				out.JSON(result)
			} else {
				rows := make([][]string, 0, len(result.Errors)+len(result.Warnings))
				for _, e := range result.Errors {
					rows = append(rows, []string{"error", e})
				}
				for _, w := range result.Warnings {
					rows = append(rows, []string{"warning", w})
				}
				out.Table([]string{"LEVEL", "MESSAGE"}, rows)
			}

			if !result.Accepted() {
				return fmt.Errorf("workflow rejected: score %.2f, %d errors", result.Score, len(result.Errors))
			}
			out.Success(fmt.Sprintf("Workflow %q is valid (%d steps, score %.2f)", wf.Name, len(wf.Steps), result.Score))
			return nil
		},
	}
}

// NewRollbackCmd создаёт команду отката документа к резервной копии.
func NewRollbackCmd(env Env) *cobra.Command {
	var latest bool

	cmd := &cobra.Command{
		Use:   "rollback WORKFLOW_FILE [BACKUP_FILE]",
		Short: "Restore a workflow from a backup",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			a, err := env.local(nil)
			if err != nil {
				return err
			}

			path := args[0]
			var backup string
			switch {
			case len(args) == 2:
				backup = args[1]
			case latest:
				backups, err := a.Mutator.ListBackups(path)
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					return fmt.Errorf("no backups found for %s", path)
				}
				backup = backups[0].Path
			default:
				return fmt.Errorf("specify BACKUP_FILE or --latest")
			}

			if err := a.Mutator.Rollback(cmd.Context(), path, backup); err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Workflow %s restored from %s", path, backup))
			return nil
		},
	}

	cmd.Flags().BoolVar(&latest, "latest", false, "Use the most recent backup")
	return cmd
}

// NewHistoryCmd создаёт команду просмотра журнала лечения документа.
func NewHistoryCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "history WORKFLOW_FILE",
		Short: "Show the healing history of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			a, err := env.local(nil)
			if err != nil {
				return err
			}

			entries, err := a.Mutator.History(args[0])
			if err != nil {
				return err
			}

			headers := []string{"TIME", "STEP_INDEX", "ORIGINAL_STEP", "NEW_STEPS", "ACTION"}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{
					e.Timestamp.Format(time.RFC3339),
					strconv.Itoa(e.FailedStepIndex),
					e.OriginalStep.ID,
					strconv.Itoa(e.NewStepsCount),
					e.Action,
				}
			}
			out.Print(headers, rows, entries)
			return nil
		},
	}
}

// NewBackupsCmd создаёт группу команд для резервных копий.
func NewBackupsCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Manage workflow backups",
	}

	cmd.AddCommand(
		newBackupsListCmd(env),
		newBackupsCleanupCmd(env),
	)
	return cmd
}

func newBackupsListCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list [WORKFLOW_FILE]",
		Short: "List backups, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			a, err := env.local(nil)
			if err != nil {
				return err
			}

			var path string
			if len(args) == 1 {
				path = args[0]
			}
			backups, err := a.Mutator.ListBackups(path)
			if err != nil {
				return err
			}

			headers := []string{"PATH", "MODIFIED", "SIZE"}
			rows := make([][]string, len(backups))
			for i, b := range backups {
				rows[i] = []string{b.Path, b.ModTime.Format(time.RFC3339), strconv.FormatInt(b.Size, 10)}
			}
			out.Print(headers, rows, backups)
			return nil
		},
	}
}

func newBackupsCleanupCmd(env Env) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete backups older than N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			a, err := env.local(nil)
			if err != nil {
				return err
			}
			if days <= 0 {
				days = a.Config.Storage.RetentionDays
			}

			removed, err := a.Mutator.CleanupBackups(days)
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Removed %d %s older than %d days", removed, plural(removed, "backup"), days))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default from config)")
	return cmd
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return strings.TrimSuffix(word, "s") + "s"
}
