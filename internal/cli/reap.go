package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewReapCmd создаёт команду "reap": разовый проход reaper.
func NewReapCmd(backendFn BackendFunc, outputFn func() *Output) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Recover stuck tasks and entries once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			b, err := backendFn(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			stats, err := b.Orchestrator.ReapStale(cmd.Context(), olderThan)

			out := outputFn()
			out.Print(
				[]string{"TASKS FAILED", "ENTRIES DELEGATED", "ENTRIES ADVANCED"},
				[][]string{{
					strconv.Itoa(stats.TasksFailed),
					strconv.Itoa(stats.EntriesDelegated),
					strconv.Itoa(stats.EntriesAdvanced),
				}},
				stats,
			)
			return err
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 2*time.Hour, "Treat work untouched for this long as stuck")

	return cmd
}
