package cmd

import (
	"github.com/spf13/cobra"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single fetch and publish cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()
		return svc.RunOnce(ctx)
	},
}

func init() {
	rootCmd.AddCommand(onceCmd)
}
