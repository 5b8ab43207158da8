package main

import (
	"fmt"
	"time"

	"github.com/pevans/newsharvest/history"
	"github.com/pevans/newsharvest/newsfeed"
	"github.com/spf13/cobra"
)

func newItemsCommand(opts *globalOptions) *cobra.Command {
	var (
		limit    int
		dateFrom string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List stored items, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := loadApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.close()

			items, err := a.store.Load()
			if err != nil {
				return err
			}
			filtered := newsfeed.Filter(items, newsfeed.ListFilter{DateFrom: dateFrom, Limit: limit})

			out := cmd.OutOrStdout()
			if format == formatJSON {
				return printJSON(out, map[string]any{"total": len(filtered), "data": filtered})
			}
			printItemsTable(out, filtered, len(items))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum items to show (0 = all)")
	cmd.Flags().StringVar(&dateFrom, "date-from", "", "only items dated at or after this ISO 8601 prefix")
	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table or json")

	return cmd
}

func newLatestCommand(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the newest stored item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := loadApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.close()

			item, err := a.store.Latest()
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("no items stored yet")
			}

			if format == formatJSON {
				return printJSON(cmd.OutOrStdout(), item)
			}
			printItem(cmd.OutOrStdout(), *item)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table or json")

	return cmd
}

func newNewCommand(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "List the items added by the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := loadApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			wm, err := a.ledger.Load()
			if err != nil {
				return err
			}
			if wm == nil {
				fmt.Fprintln(out, "No run has been recorded yet.")
				return nil
			}

			items, err := a.store.Load()
			if err != nil {
				return err
			}
			fresh := newsfeed.Newest(items, wm.NewItems)

			if format == formatJSON {
				return printJSON(out, map[string]any{
					"total":     len(fresh),
					"new_items": wm.NewItems,
					"last_run":  wm,
					"data":      fresh,
				})
			}
			printItemsTable(out, fresh, len(items))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table or json")

	return cmd
}

func newStatusCommand(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the ledger left by the last successful run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := loadApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			wm, err := a.ledger.Load()
			if err != nil {
				return err
			}
			if format == formatJSON {
				return printJSON(out, wm)
			}
			if wm == nil {
				fmt.Fprintln(out, "No run has been recorded yet.")
				return nil
			}
			printWatermark(out, wm, time.Now())
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table or json")

	return cmd
}

func newRunsCommand(opts *globalOptions) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			a, err := loadApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.close()

			runs := []history.Run{}
			if j := a.openJournal(); j != nil {
				runs, err = j.List(limit)
				if err != nil {
					return err
				}
			}

			if format == formatJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"total": len(runs), "data": runs})
			}
			printRunsTable(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum runs to show (0 = all)")
	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table or json")

	return cmd
}
