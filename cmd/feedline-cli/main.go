// Feedline CLI — отправка feeds и просмотр результатов.
//
// Использование:
//
//	feedline [--env FILE] [--local] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	entry  Отправка и просмотр entries
//	reap   Разовый проход reaper
//	rules  Список правил
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Feedline/internal/cli"
	"github.com/shaiso/Feedline/internal/config"
	"github.com/shaiso/Feedline/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var envFile string
	var local bool
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "feedline",
		Short:         "Feedline CLI — transit feed validation and conversion",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Environment file")
	rootCmd.PersistentFlags().BoolVar(&local, "local", false, "Run the whole pipeline in-process, without database and broker")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	backendFn := func(ctx context.Context) (*cli.Backend, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return nil, err
		}
		// stdout занят данными, логи идут в stderr.
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: telemetry.ParseLevel(cfg.LogLevel),
		}))
		return cli.OpenBackend(ctx, cfg, local, logger)
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewEntryCmd(backendFn, outputFn),
		cli.NewReapCmd(backendFn, outputFn),
		cli.NewRulesCmd(backendFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
