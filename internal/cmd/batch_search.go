package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/govbatch/govbatch/internal/gov"
	"github.com/govbatch/govbatch/internal/output"
)

var (
	searchAttribute string
	searchFile      string
)

var batchSearchCmd = &cobra.Command{
	Use:   "search [values...]",
	Short: "Look up users by a profile attribute",
	Long: `Look up users by a profile attribute, one search per value.

Values come from positional arguments or --file (one per line, "-" for
stdin). The attribute defaults to email.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := resolveValues(args, searchFile)
		if err != nil {
			return err
		}

		searches := make([]gov.UserSearch, 0, len(values))
		for _, value := range values {
			searches = append(searches, gov.UserSearch{Attribute: searchAttribute, Value: value})
		}
		tasks, err := gov.SearchUserTasks(searches)
		if err != nil {
			return err
		}

		rt, err := newBatchRuntime()
		if err != nil {
			return err
		}

		result, err := rt.run(cmd.Context(), "search", tasks)
		if err != nil {
			return err
		}

		report := gov.BuildSearchReport(result.Outcomes)
		format, err := output.ParseFormat(rt.cfg.Output)
		if err != nil {
			return err
		}
		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		if err := rt.render(result); err != nil {
			return err
		}
		fmt.Printf("Found %d, not found %d, errors %d\n",
			len(report.Found), len(report.NotFound), len(report.Errors))
		return nil
	},
}

func init() {
	batchCmd.AddCommand(batchSearchCmd)
	batchSearchCmd.Flags().StringVarP(&searchAttribute, "attribute", "a", "email", "profile attribute to match")
	batchSearchCmd.Flags().StringVarP(&searchFile, "file", "f", "", "file with one value per line (\"-\" for stdin)")
}
