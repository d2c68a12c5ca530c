// Mender CLI — воспроизведение браузерных workflow с самолечением.
//
// Использование:
//
//	mender [--json] [--api-url URL] <command> [flags]
//
// Команды:
//
//	run         Выполнить workflow
//	batch       Выполнить workflow для набора переменных
//	validate    Проверить документ workflow
//	rollback    Восстановить документ из резервной копии
//	history     История лечения документа
//	backups     Резервные копии документа
//	errors      Журнал ошибок и анализ
//	executions  Журнал выполнений
//	cron        Запуск по расписанию
//	remote      Работа с mender-api
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/shaiso/Mender/internal/app"
	"github.com/shaiso/Mender/internal/cli"
	"github.com/shaiso/Mender/internal/config"
	"github.com/shaiso/Mender/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "mender",
		Short:         "Mender — self-healing browser workflow runner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API server URL (default from MENDER_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	// логи в stderr, stdout остаётся для данных
	logger := func() *slog.Logger {
		level := telemetry.LogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		format := os.Getenv("LOG_FORMAT")
		if format == "" {
			format = "text"
		}
		return telemetry.NewLogger(os.Stderr, format, level)
	}

	env := cli.Env{
		Config: config.Load,
		App: func(cfg *config.Config) *app.App {
			return app.New(app.Options{
				Config: cfg,
				Logger: logger(),
				FS:     afero.NewOsFs(),
			})
		},
		Client: func() *cli.Client {
			if apiURL != "" {
				return cli.NewClient(apiURL)
			}
			url := config.Default().APIURL
			if cfg, err := config.Load(); err == nil {
				url = cfg.APIURL
			}
			return cli.NewClient(url)
		},
		Output: func() *cli.Output { return cli.NewOutput(jsonOutput) },
	}

	rootCmd.AddCommand(
		cli.NewRunCmd(env),
		cli.NewBatchCmd(env),
		cli.NewValidateCmd(env),
		cli.NewRollbackCmd(env),
		cli.NewHistoryCmd(env),
		cli.NewBackupsCmd(env),
		cli.NewErrorsCmd(env),
		cli.NewExecutionsCmd(env),
		cli.NewCronCmd(env),
		cli.NewRemoteCmd(env),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
