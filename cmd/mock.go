package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/kenter-mqtt/kenter/kentermock"
)

var mockAddr string

var mockCmd = &cobra.Command{
	Use:   "mock-api",
	Short: "Serve a fake Kenter API and token endpoint for local testing",
	Long: `Serve a fake Kenter API generating quarter-hour readings for any day.
Point KENTER_API_URL at the server and KENTER_TOKEN_URL at <url>/connect/token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return kentermock.New(mockAddr).Start(ctx)
	},
}

func init() {
	mockCmd.Flags().StringVar(&mockAddr, "addr", "127.0.0.1:8085", "listen address")
	rootCmd.AddCommand(mockCmd)
}
