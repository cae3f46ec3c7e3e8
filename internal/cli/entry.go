package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Feedline/internal/delegator"
	"github.com/shaiso/Feedline/internal/domain"
	"github.com/shaiso/Feedline/internal/findings"
	"github.com/shaiso/Feedline/internal/jobs"
	"github.com/shaiso/Feedline/internal/orchestrator"
)

// BackendFunc открывает Backend после парсинга флагов.
type BackendFunc func(ctx context.Context) (*Backend, error)

// NewEntryCmd создаёт группу команд "entry".
func NewEntryCmd(backendFn BackendFunc, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Submit and inspect entries",
	}

	cmd.AddCommand(
		newEntrySubmitCmd(backendFn, outputFn),
		newEntryShowCmd(backendFn, outputFn),
		newEntryFindingsCmd(backendFn, outputFn),
		newEntryReportCmd(backendFn, outputFn),
	)

	return cmd
}

func newEntrySubmitCmd(backendFn BackendFunc, outputFn func() *Output) *cobra.Command {
	var (
		sub     orchestrator.Submission
		tasks   []string
		configs []string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a feed for processing",
		Example: `  feedline entry submit --format gtfs --url https://example.com/gtfs.zip \
    --task gtfs.canonical --task gtfs2netex \
    --config 'gtfs2netex={"codespace":"FIN"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := taskSpecs(tasks, configs)
			if err != nil {
				return err
			}
			sub.Tasks = specs

			b, err := backendFn(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			entry, err := b.Orchestrator.Submit(cmd.Context(), sub)
			if err != nil {
				return err
			}

			out := outputFn()
			if b.Local() {
				if err := b.Settle(cmd.Context()); err != nil {
					return err
				}
				return printEntry(cmd.Context(), b, out, entry.PublicID)
			}

			if out.JSONMode() {
				out.JSON(entry)
			} else {
				out.Fields([][2]string{
					{"Public ID", entry.PublicID},
					{"Status", string(entry.Status)},
					{"Tasks", strconv.Itoa(len(specs))},
				})
			}
			out.Success(fmt.Sprintf("Entry %s submitted", entry.PublicID))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&sub.PublicID, "public-id", "", "Public ID (generated if empty)")
	f.StringVar(&sub.Format, "format", "", "Feed format (gtfs, netex, ...)")
	f.StringVar(&sub.URL, "url", "", "Feed URL")
	f.StringVar(&sub.Etag, "etag", "", "Source etag")
	f.StringVar(&sub.BusinessID, "business-id", "", "Owning organization")
	f.StringVar(&sub.Name, "name", "", "Human-readable name")
	f.StringArrayVar(&sub.Notifications, "notify", nil, "Webhook URL to call on completion (repeatable)")
	f.StringArrayVar(&tasks, "task", nil, "Rule to run (repeatable)")
	f.StringArrayVar(&configs, "config", nil, "Rule configuration as RULE=JSON (repeatable)")

	cmd.MarkFlagRequired("format")
	cmd.MarkFlagRequired("url")

	return cmd
}

// taskSpecs собирает TaskSpec из флагов --task и --config.
func taskSpecs(tasks, configs []string) ([]delegator.TaskSpec, error) {
	bodies := make(map[string]json.RawMessage, len(configs))
	for _, c := range configs {
		name, body, ok := strings.Cut(c, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --config %q: expected RULE=JSON", c)
		}
		if !json.Valid([]byte(body)) {
			return nil, fmt.Errorf("invalid --config %q: body is not JSON", c)
		}
		bodies[name] = json.RawMessage(body)
	}

	specs := make([]delegator.TaskSpec, 0, len(tasks))
	for _, name := range tasks {
		spec := delegator.TaskSpec{Name: name}
		if body, ok := bodies[name]; ok {
			raw, err := json.Marshal(jobs.Envelope{Type: name, Body: body})
			if err != nil {
				return nil, err
			}
			spec.Configuration = raw
			delete(bodies, name)
		}
		specs = append(specs, spec)
	}

	if len(bodies) > 0 {
		names := slices.Sorted(maps.Keys(bodies))
		return nil, fmt.Errorf("--config given for %s, which is not a --task", strings.Join(names, ", "))
	}
	return specs, nil
}

func newEntryShowCmd(backendFn BackendFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show PUBLIC_ID",
		Short: "Show entry status and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := backendFn(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			return printEntry(cmd.Context(), b, outputFn(), args[0])
		},
	}
}

func printEntry(ctx context.Context, b *Backend, out *Output, publicID string) error {
	entry, err := b.Entries.GetByPublicID(ctx, publicID)
	if err != nil {
		return err
	}
	tasks, err := b.Tasks.ListByEntry(ctx, entry.ID)
	if err != nil {
		return err
	}
	entry.Tasks = tasks

	if out.JSONMode() {
		out.JSON(entry)
		return nil
	}

	out.Fields([][2]string{
		{"Public ID", entry.PublicID},
		{"Format", entry.Format},
		{"URL", entry.URL},
		{"Status", string(entry.Status)},
		{"Created", formatTime(&entry.CreatedAt)},
		{"Completed", formatTime(entry.CompletedAt)},
	})

	if len(tasks) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			t.Name,
			string(t.Category),
			strconv.Itoa(t.Priority),
			string(t.Status),
			orDash(t.Error),
		})
	}
	fmt.Fprintln(out.w)
	out.Table([]string{"TASK", "CATEGORY", "PRIORITY", "STATUS", "ERROR"}, rows)
	return nil
}

func newEntryFindingsCmd(backendFn BackendFunc, outputFn func() *Output) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "findings PUBLIC_ID",
		Short: "List findings of an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := backendFn(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			ctx := cmd.Context()
			entry, err := b.Entries.GetByPublicID(ctx, args[0])
			if err != nil {
				return err
			}
			list, err := b.Findings.ListByEntry(ctx, entry.ID)
			if err != nil {
				return err
			}

			if !raw {
				for i, f := range list {
					list[i] = findings.Effective(f)
				}
			}

			rows := make([][]string, 0, len(list))
			for _, f := range list {
				rows = append(rows, []string{f.Ruleset, string(f.Severity), f.Code, f.Message})
			}
			if list == nil {
				list = []domain.Finding{}
			}
			outputFn().Print([]string{"RULESET", "SEVERITY", "CODE", "MESSAGE"}, rows, list)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Show severities as reported by rules")

	return cmd
}

func newEntryReportCmd(backendFn BackendFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "report PUBLIC_ID TASK",
		Short: "Show the stored report of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := backendFn(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			if b.Reports == nil {
				return errors.New("report storage is not configured (set MINIO_ENDPOINT)")
			}

			ctx := cmd.Context()
			entry, err := b.Entries.GetByPublicID(ctx, args[0])
			if err != nil {
				return err
			}
			tasks, err := b.Tasks.ListByEntry(ctx, entry.ID)
			if err != nil {
				return err
			}
			i := slices.IndexFunc(tasks, func(t domain.Task) bool { return t.Name == args[1] })
			if i < 0 {
				return fmt.Errorf("entry %s has no task %q", entry.PublicID, args[1])
			}
			if tasks[i].ResultRef == "" {
				return fmt.Errorf("task %q has no stored report (status %s)", args[1], tasks[i].Status)
			}

			report, err := b.Reports.Get(ctx, tasks[i].ResultRef)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(report.Findings))
			for _, f := range report.Findings {
				rows = append(rows, []string{string(f.Severity), f.Code, f.Message})
			}
			outputFn().Print([]string{"SEVERITY", "CODE", "MESSAGE"}, rows, report)
			return nil
		},
	}
}
