package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/kenter-mqtt/auth"
	"github.com/kilianp07/kenter-mqtt/config"
	"github.com/kilianp07/kenter-mqtt/infra/logger"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Check the Kenter credentials by requesting an access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		logger.Configure(cfg.Log.Level, cfg.Log.Format)

		ctx, stop := signalContext()
		defer stop()

		tokens := auth.NewClientCred(cfg.Kenter.AuthConf(), auth.WithLogger(logger.New("auth")))
		tok, err := tokens.GetToken(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if tok.Expiry.IsZero() {
			_, err = fmt.Fprintln(out, "token ok, no expiry")
			return err
		}
		_, err = fmt.Fprintf(out, "token ok, expires %s (in %s)\n",
			tok.Expiry.Format(time.RFC3339), time.Until(tok.Expiry).Round(time.Second))
		return err
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
