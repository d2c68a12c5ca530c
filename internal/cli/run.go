package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Mender/internal/config"
	"github.com/shaiso/Mender/internal/domain"
	"github.com/shaiso/Mender/internal/executor"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Доля успешных выполнений, ниже которой пакет считается неудачным.
const batchFailThreshold = 0.5

// runFlags — флаги браузера и лечения, общие для run и batch.
type runFlags struct {
	headless bool
	timeout  time.Duration
	noHeal   bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.headless, "headless", true, "Run the browser without a window")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Default step timeout (e.g. 30s)")
	cmd.Flags().BoolVar(&f.noHeal, "no-heal", false, "Disable self-healing")
}

// apply переносит явно заданные флаги в конфигурацию.
func (f *runFlags) apply(cmd *cobra.Command) func(cfg *config.Config) {
	return func(cfg *config.Config) {
		if cmd.Flags().Changed("headless") {
			cfg.Browser.Headless = f.headless
		}
		if f.timeout > 0 {
			cfg.Executor.DefaultTimeout = f.timeout
		}
		if f.noHeal {
			cfg.Executor.HealingEnabled = false
		}
	}
}

// NewRunCmd создаёт команду выполнения workflow.
func NewRunCmd(env Env) *cobra.Command {
	var (
		flags    runFlags
		varsJSON string
		varsFile string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "run WORKFLOW_FILE",
		Short: "Run a workflow with self-healing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			a, err := env.local(flags.apply(cmd))
			if err != nil {
				return err
			}

			inputs, err := parseVars(a.FS, varsJSON, varsFile)
			if err != nil {
				return err
			}
			wf, err := a.LoadWorkflow(args[0])
			if err != nil {
				return err
			}

			res, err := a.Runner.Run(cmd.Context(), wf, executor.RunOptions{
				WorkflowPath: args[0],
				Inputs:       inputs,
			})
			if err != nil {
				return err
			}

			printExecution(out, res)
			if output != "" {
				if err := writeJSON(a.FS, output, res); err != nil {
					return err
				}
				out.Success("Result saved to " + output)
			}

			if res.Status != domain.ExecutionCompleted {
				return fmt.Errorf("%w: %s: %s", ErrExecutionFailed, res.Status, res.Error)
			}
			out.Success(fmt.Sprintf("Execution %s completed (%d/%d steps)", res.ExecutionID, res.SuccessfulSteps, res.TotalSteps))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&varsJSON, "vars", "", "Input variables as a JSON object")
	cmd.Flags().StringVar(&varsFile, "vars-file", "", "JSON file with input variables")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the execution result to a JSON file")

	return cmd
}

// NewBatchCmd создаёт команду пакетного выполнения.
func NewBatchCmd(env Env) *cobra.Command {
	var (
		flags       runFlags
		varsFile    string
		concurrency int
		outputDir   string
		stopOnError bool
	)

	cmd := &cobra.Command{
		Use:   "batch WORKFLOW_FILE",
		Short: "Run a workflow once per variable set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			if concurrency < 0 {
				return fmt.Errorf("invalid concurrency %d", concurrency)
			}
			a, err := env.local(flags.apply(cmd))
			if err != nil {
				return err
			}

			inputs, err := parseBatchInputs(a.FS, varsFile)
			if err != nil {
				return err
			}
			wf, err := a.LoadWorkflow(args[0])
			if err != nil {
				return err
			}

			b, err := a.Runner.Batch(cmd.Context(), wf, executor.BatchOptions{
				WorkflowPath: args[0],
				Inputs:       inputs,
				Concurrency:  concurrency,
			})
			if err != nil {
				return err
			}

			printBatch(out, b)
			if outputDir != "" {
				if err := saveBatch(a.FS, outputDir, b); err != nil {
					return err
				}
				out.Success("Results saved to " + outputDir)
			}

			out.Success(fmt.Sprintf("Batch %s: %d/%d executions completed (%.1f%%)",
				b.BatchID, b.CompletedExecutions, b.TotalExecutions, b.SuccessRate*100))
			if stopOnError && b.SuccessRate <= batchFailThreshold {
				return fmt.Errorf("%w: batch success rate %.2f", ErrExecutionFailed, b.SuccessRate)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&varsFile, "vars-file", "", "JSON file with an array of variable sets")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Concurrent executions (default from config)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Write batch and execution results to a directory")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "Exit non-zero when at most half of the executions succeed")
	_ = cmd.MarkFlagRequired("vars-file")

	return cmd
}

func saveBatch(fsys afero.Fs, dir string, b *domain.BatchExecutionResult) error {
	for _, r := range b.Executions {
		if err := writeJSON(fsys, filepath.Join(dir, r.ExecutionID+".json"), r); err != nil {
			return err
		}
	}
	return writeJSON(fsys, filepath.Join(dir, "batch_"+b.BatchID+".json"), b)
}

func printExecution(out *Output, r *domain.WorkflowExecutionResult) {
	if out.JSONMode() {
		out.JSON(r)
		return
	}

	out.Fields([][2]string{
		{"Execution", r.ExecutionID},
		{"Workflow", r.WorkflowName},
		{"Status", string(r.Status)},
		{"Duration", formatMs(r.DurationMs)},
		{"Healing", strings.Join(r.HealingSessions, ", ")},
		{"Error", r.Error},
	})

	headers := []string{"STEP", "TYPE", "STATUS", "DURATION", "HEALED", "ERROR"}
	rows := make([][]string, len(r.StepResults))
	for i, s := range r.StepResults {
		rows[i] = []string{
			s.StepID,
			string(s.StepType),
			string(s.Status),
			formatMs(s.DurationMs),
			strconv.FormatBool(s.HealingApplied()),
			s.Error,
		}
	}
	out.Table(headers, rows)
}

func printBatch(out *Output, b *domain.BatchExecutionResult) {
	if out.JSONMode() {
		out.JSON(b)
		return
	}

	out.Fields([][2]string{
		{"Batch", b.BatchID},
		{"Workflow", b.WorkflowName},
		{"Status", string(b.Status)},
		{"Duration", formatMs(b.DurationMs)},
	})

	headers := []string{"EXECUTION", "STATUS", "STEPS", "SUCCESS_RATE", "DURATION", "ERROR"}
	rows := make([][]string, len(b.Executions))
	for i, r := range b.Executions {
		rows[i] = []string{
			r.ExecutionID,
			string(r.Status),
			fmt.Sprintf("%d/%d", r.SuccessfulSteps, r.TotalSteps),
			fmt.Sprintf("%.0f%%", r.SuccessRate*100),
			formatMs(r.DurationMs),
			r.Error,
		}
	}
	out.Table(headers, rows)
}

func formatMs(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
