package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/kenter-mqtt/auth"
	"github.com/kilianp07/kenter-mqtt/config"
	"github.com/kilianp07/kenter-mqtt/infra/logger"
	"github.com/kilianp07/kenter-mqtt/kenter"
	"github.com/kilianp07/kenter-mqtt/pkg/export"
)

var (
	fetchDay    string
	fetchFormat string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch one day of readings and print them without publishing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		logger.Configure(cfg.Log.Level, cfg.Log.Format)
		sc, err := cfg.Scheduler.Build(cfg.Kenter.Query())
		if err != nil {
			return err
		}
		day := sc.PollDay(time.Now())
		if fetchDay != "" {
			day, err = time.ParseInLocation("2006-01-02", fetchDay, sc.Location)
			if err != nil {
				return fmt.Errorf("invalid --day: %w", err)
			}
		}

		ctx, stop := signalContext()
		defer stop()

		tokens := auth.NewClientCred(cfg.Kenter.AuthConf(), auth.WithLogger(logger.New("auth")))
		client := kenter.NewClient(cfg.Kenter.APIURL, cfg.Kenter.RequestTimeout, logger.New("kenter"))
		fetcher := kenter.NewFetcher(client, tokens, cfg.Kenter.Retry, logger.New("fetcher"))
		ms, err := fetcher.Fetch(ctx, sc.Query, day)
		if err != nil {
			return err
		}
		return export.Write(cmd.OutOrStdout(), fetchFormat, ms)
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDay, "day", "", "day to fetch as YYYY-MM-DD (default: the day the poller would fetch)")
	fetchCmd.Flags().StringVarP(&fetchFormat, "format", "f", "json", "output format: json or csv")
	rootCmd.AddCommand(fetchCmd)
}
