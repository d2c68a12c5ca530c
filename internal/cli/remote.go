package cli

import (
	"fmt"
	"strconv"

	"github.com/shaiso/Mender/internal/engine"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// NewRemoteCmd создаёт группу команд для работы через mender-api.
func NewRemoteCmd(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Submit and inspect executions through the API",
	}

	cmd.AddCommand(
		newRemoteSubmitCmd(env),
		newRemoteListCmd(env),
		newRemoteShowCmd(env),
		newRemoteHealingCmd(env),
	)
	return cmd
}

func newRemoteSubmitCmd(env Env) *cobra.Command {
	var (
		varsJSON    string
		varsFile    string
		batchFile   string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "submit WORKFLOW_FILE",
		Short: "Queue a workflow execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := env.Client()
			out := env.Output()
			fsys := afero.NewOsFs()

			wf, err := engine.LoadFile(fsys, args[0])
			if err != nil {
				return err
			}

			req := SubmitRequest{
				Workflow:     wf,
				WorkflowPath: args[0],
				Concurrency:  concurrency,
			}
			if batchFile != "" {
				if req.Batch, err = parseBatchInputs(fsys, batchFile); err != nil {
					return err
				}
			} else if req.Inputs, err = parseVars(fsys, varsJSON, varsFile); err != nil {
				return err
			}

			accepted, err := client.SubmitExecution(cmd.Context(), req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution queued: %s", accepted.ExecutionID))
			out.Print(
				[]string{"ID", "WORKFLOW", "BATCH", "STATUS"},
				[][]string{{accepted.ExecutionID, accepted.WorkflowName, strconv.FormatBool(accepted.IsBatch), accepted.Status}},
				accepted,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&varsJSON, "vars", "", "Input variables as a JSON object")
	cmd.Flags().StringVar(&varsFile, "vars-file", "", "JSON file with input variables")
	cmd.Flags().StringVar(&batchFile, "batch-file", "", "JSON file with an array of variable sets")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Concurrent executions for a batch")

	return cmd
}

func newRemoteListCmd(env Env) *cobra.Command {
	var (
		workflow string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := env.Client()
			out := env.Output()

			items, err := client.ListExecutions(cmd.Context(), workflow, limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "WORKFLOW", "STATUS", "STARTED", "SUCCESS_RATE", "BATCH"}
			rows := make([][]string, len(items))
			for i, e := range items {
				rows[i] = []string{
					e.ID,
					e.WorkflowName,
					e.Status,
					e.StartTime,
					fmt.Sprintf("%.0f%%", e.SuccessRate*100),
					strconv.FormatBool(e.IsBatch),
				}
			}
			out.Print(headers, rows, items)
			return nil
		},
	}

	cmd.Flags().StringVar(&workflow, "workflow", "", "Filter by workflow name")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	return cmd
}

func newRemoteShowCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an execution or a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := env.Client()
			out := env.Output()

			detail, err := client.GetExecution(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			switch {
			case detail.Execution != nil:
				printExecution(out, detail.Execution)
			case detail.Batch != nil:
				printBatch(out, detail.Batch)
			default:
				return fmt.Errorf("empty response for %s", args[0])
			}
			return nil
		},
	}
}

func newRemoteHealingCmd(env Env) *cobra.Command {
	return &cobra.Command{
		Use:   "healing ID",
		Short: "List healing sessions started by an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := env.Client()
			out := env.Output()

			sessions, err := client.ListExecutionHealing(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			headers := []string{"SESSION", "STATUS", "TIER", "ERROR_KIND", "STEP", "NEW_STEPS", "REASON"}
			rows := make([][]string, len(sessions))
			for i, s := range sessions {
				rows[i] = []string{
					s.ID,
					s.Status,
					s.Tier,
					s.ErrorKind,
					s.StepID,
					strconv.Itoa(len(s.NewSteps)),
					s.Reason,
				}
			}
			out.Print(headers, rows, sessions)
			return nil
		},
	}
}
