package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all stored rate window observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		removed, err := db.ResetRateObservations(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Removed %d observations\n", removed)
		return nil
	},
}

func init() {
	rateLimitCmd.AddCommand(rateLimitResetCmd)
}
