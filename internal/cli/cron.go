package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Mender/internal/scheduler"
	"github.com/spf13/cobra"
)

// Сколько ждать выполняющиеся запуски при остановке.
const cronShutdownTimeout = 30 * time.Second

// NewCronCmd создаёт команду периодического выполнения workflow.
func NewCronCmd(env Env) *cobra.Command {
	var (
		flags    runFlags
		varsJSON string
		varsFile string
		next     int
	)

	cmd := &cobra.Command{
		Use:   "cron EXPR WORKFLOW_FILE",
		Short: "Run a workflow on a cron schedule until interrupted",
		Example: `  mender cron "*/15 * * * *" workflows/search.json --vars '{"query":"go"}'
  mender cron "@hourly" workflows/search.json --next 5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := env.Output()
			expr, path := args[0], args[1]

			if next > 0 {
				runs, err := scheduler.NextRuns(expr, time.Now(), next)
				if err != nil {
					return err
				}
				rows := make([][]string, len(runs))
				for i, t := range runs {
					rows[i] = []string{t.Format(time.RFC3339)}
				}
				out.Print([]string{"NEXT_RUN"}, rows, runs)
				return nil
			}

			a, err := env.local(flags.apply(cmd))
			if err != nil {
				return err
			}
			inputs, err := parseVars(a.FS, varsJSON, varsFile)
			if err != nil {
				return err
			}
			wf, err := a.LoadWorkflow(path)
			if err != nil {
				return err
			}

			sched := scheduler.New(scheduler.Config{
				Runner:        a.Runner,
				MaxConcurrent: 1,
				Logger:        a.Logger,
			})
			c := scheduler.NewCron(sched, a.Logger)
			if _, err := c.Add(expr, scheduler.Request{
				Workflow:     wf,
				WorkflowPath: path,
				Inputs:       inputs,
			}); err != nil {
				_ = sched.Close(context.Background())
				return err
			}

			c.Start()
			out.Success(fmt.Sprintf("Scheduled %q with %q, press Ctrl+C to stop", wf.Name, expr))

			<-cmd.Context().Done()

			ctx, cancel := context.WithTimeout(context.Background(), cronShutdownTimeout)
			defer cancel()
			if err := c.Stop(ctx); err != nil {
				a.Logger.Warn("cron stop timed out", "error", err)
			}
			return sched.Close(ctx)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&varsJSON, "vars", "", "Input variables as a JSON object")
	cmd.Flags().StringVar(&varsFile, "vars-file", "", "JSON file with input variables")
	cmd.Flags().IntVar(&next, "next", 0, "Print the next N run times and exit")

	return cmd
}
