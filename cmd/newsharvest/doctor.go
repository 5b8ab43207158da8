package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pevans/newsharvest/history"
	"github.com/pevans/newsharvest/newsfeed"
	"github.com/spf13/cobra"
)

func newDoctorCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the store, ledger and history are usable",
		Long: `Doctor reads every file a run depends on and reports problems. A corrupt
store or ledger does not stop a run (it falls back to a full harvest), but
it is worth knowing about.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Checking newsharvest storage health...")
			fmt.Fprintln(out)

			hasErrors := false
			hasWarnings := false

			// Check item store
			fmt.Fprintln(out, "Item store:")
			fmt.Fprintf(out, "  Path: %s\n", a.store.Path())
			items, err := a.store.Load()
			switch {
			case errors.Is(err, newsfeed.ErrCorruptStore):
				fmt.Fprintf(out, "  ✗ Store is corrupt: %v\n", err)
				fmt.Fprintln(out, "    The next run will rebuild it from a full harvest")
				hasErrors = true
			case err != nil:
				fmt.Fprintf(out, "  ✗ Cannot read store: %v\n", err)
				hasErrors = true
			default:
				fmt.Fprintf(out, "  ✓ %d items\n", len(items))
				if dupes := len(items) - len(newsfeed.DedupeByURL(items)); dupes > 0 {
					fmt.Fprintf(out, "  ⚠ Warning: %d items share a URL with a newer item\n", dupes)
					hasWarnings = true
				}
				if checkPermissions(out, a.store.Path()) {
					hasWarnings = true
				}
			}
			fmt.Fprintln(out)

			// Check ledger
			fmt.Fprintln(out, "Ledger:")
			fmt.Fprintf(out, "  Path: %s\n", a.ledger.Path())
			wm, err := a.ledger.Load()
			switch {
			case err != nil:
				fmt.Fprintf(out, "  ✗ %v\n", err)
				fmt.Fprintln(out, "    The next incremental run will fall back to full")
				hasErrors = true
			case wm == nil:
				fmt.Fprintln(out, "  • No run recorded yet")
			default:
				fmt.Fprintf(out, "  ✓ Watermark: %s\n", wm.URL)
				if !newsfeed.ContainsURL(items, wm.URL) {
					fmt.Fprintln(out, "  ⚠ Warning: watermark is not in the store")
					fmt.Fprintln(out, "    The next incremental run will fall back to full")
					hasWarnings = true
				}
			}
			fmt.Fprintln(out)

			// Check run history
			fmt.Fprintln(out, "Run history:")
			fmt.Fprintf(out, "  Path: %s\n", a.cfg.Storage.History)
			if a.cfg.Storage.History == "" {
				fmt.Fprintln(out, "  • Disabled")
			} else if _, err := os.Stat(a.cfg.Storage.History); os.IsNotExist(err) {
				fmt.Fprintln(out, "  • No runs recorded yet")
			} else if j, err := history.Open(a.cfg.Storage.History); err != nil {
				fmt.Fprintf(out, "  ⚠ Warning: %v\n", err)
				hasWarnings = true
			} else {
				runs, err := j.List(0)
				j.Close()
				if err != nil {
					fmt.Fprintf(out, "  ⚠ Warning: could not list runs: %v\n", err)
					hasWarnings = true
				} else {
					fmt.Fprintf(out, "  ✓ %d runs recorded\n", len(runs))
				}
			}
			fmt.Fprintln(out)

			switch {
			case hasErrors:
				return fmt.Errorf("storage has errors")
			case hasWarnings:
				fmt.Fprintln(out, "Storage is usable, with warnings.")
			default:
				fmt.Fprintln(out, "Storage is healthy.")
			}
			return nil
		},
	}
}

// checkPermissions warns when a data file is readable by group or others.
func checkPermissions(out io.Writer, path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	perm := stat.Mode().Perm()
	if perm&0o077 == 0 {
		return false
	}
	fmt.Fprintln(out, "  ⚠ Warning: file has overly permissive permissions")
	fmt.Fprintf(out, "    Current: %o, expected: 600\n", perm)
	return true
}
