package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pevans/newsharvest/config"
	"github.com/pevans/newsharvest/crawl"
	"github.com/spf13/cobra"
)

func newRunCommand(opts *globalOptions) *cobra.Command {
	var (
		mode     string
		maxPages int
		output   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest new items once and exit",
		Long: `Run walks the archive once. In incremental mode it stops at the item
recorded by the previous run; in full mode it reads every page (or up to
--max-pages). New items are prepended to the store and the ledger is updated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts, func(cfg *config.Config) {
				if output != "" {
					cfg.Storage.Store = output
				}
				if cmd.Flags().Changed("max-pages") {
					cfg.Source.MaxPages = maxPages
				}
			})
			if err != nil {
				return err
			}
			defer a.close()

			runner, err := a.newRunner()
			if err != nil {
				return err
			}

			// Cancelling aborts before anything is written
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := runner.Run(ctx, crawl.RunOptions{
				Mode:     mode,
				MaxPages: a.cfg.Source.MaxPages,
			})
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}

			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", crawl.ModeIncremental, "run mode: incremental or full")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum pages to fetch (0 = no limit)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "store file (overrides storage.store)")

	return cmd
}
