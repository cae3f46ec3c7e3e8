package cli

import (
	"github.com/spf13/cobra"
)

// NewRulesCmd создаёт команду "rules": список зарегистрированных правил.
func NewRulesCmd(backendFn BackendFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List registered rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := backendFn(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			type ruleInfo struct {
				Name     string `json:"name"`
				Format   string `json:"format"`
				Category string `json:"category"`
			}

			list := make([]ruleInfo, 0, b.Rules.Count())
			rows := make([][]string, 0, b.Rules.Count())
			for _, r := range b.Rules.Rules() {
				info := ruleInfo{Name: r.Name(), Format: r.Format(), Category: string(r.Category())}
				list = append(list, info)
				rows = append(rows, []string{info.Name, info.Format, info.Category})
			}
			outputFn().Print([]string{"NAME", "FORMAT", "CATEGORY"}, rows, list)
			return nil
		},
	}
}
