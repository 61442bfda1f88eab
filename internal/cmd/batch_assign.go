package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/govbatch/govbatch/internal/gov"
	"github.com/govbatch/govbatch/internal/output"
)

var (
	assignAppID string
	assignFile  string
)

var batchAssignCmd = &cobra.Command{
	Use:   "assign [user-ids...]",
	Short: "Assign users to an application",
	Long: `Assign users to an application, one assignment per user id.

A 409 conflict from the remote API means the user was already assigned
and is reported separately, not as a failure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userIDs, err := resolveValues(args, assignFile)
		if err != nil {
			return err
		}

		tasks, err := gov.AssignUserTasks(assignAppID, userIDs)
		if err != nil {
			return err
		}

		rt, err := newBatchRuntime()
		if err != nil {
			return err
		}

		result, err := rt.run(cmd.Context(), "assign", tasks)
		if err != nil {
			return err
		}

		report := gov.BuildAssignReport(assignAppID, result.Outcomes)
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
		fmt.Printf("Assigned %d, already assigned %d, failed %d\n",
			len(report.Assigned), len(report.AlreadyAssigned), len(report.Failed))
		return nil
	},
}

func init() {
	batchCmd.AddCommand(batchAssignCmd)
	batchAssignCmd.Flags().StringVar(&assignAppID, "app", "", "application id (required)")
	batchAssignCmd.Flags().StringVarP(&assignFile, "file", "f", "", "file with one user id per line (\"-\" for stdin)")
	_ = batchAssignCmd.MarkFlagRequired("app")
}
