package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pevans/newsharvest/crawl"
	"github.com/pevans/newsharvest/history"
	"github.com/pevans/newsharvest/ledger"
	"github.com/pevans/newsharvest/newsfeed"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func checkFormat(format string) error {
	if format != formatTable && format != formatJSON {
		return fmt.Errorf("invalid format %q (use table or json)", format)
	}
	return nil
}

// printItemsTable prints items in human-readable table format
func printItemsTable(w io.Writer, items []newsfeed.Item, total int) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No items to display.")
		return
	}

	fmt.Fprintf(w, "Showing %d of %d items\n\n", len(items), total)
	for _, item := range items {
		printItem(w, item)
	}
}

func printItem(w io.Writer, item newsfeed.Item) {
	// Truncate title for display
	title := item.Title
	if len([]rune(title)) > 90 {
		title = string([]rune(title)[:87]) + "..."
	}

	fmt.Fprintf(w, "• %s\n", title)
	date := item.Date
	if date == "" {
		date = "unknown date"
	}
	if item.Category != "" {
		fmt.Fprintf(w, "   %s | %s\n", date, item.Category)
	} else {
		fmt.Fprintf(w, "   %s\n", date)
	}
	fmt.Fprintf(w, "   URL: %s\n", item.URL)
	fmt.Fprintln(w)
}

// printJSON prints v as indented JSON
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printResult(w io.Writer, res *crawl.Result) {
	fmt.Fprintf(w, "Run %s finished (%s", res.RunID, res.Mode)
	if res.EffectiveMode != res.Mode {
		fmt.Fprintf(w, ", ran as %s", res.EffectiveMode)
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "  Stop reason:   %s\n", res.Reason)
	fmt.Fprintf(w, "  Pages fetched: %d\n", res.PagesFetched)
	fmt.Fprintf(w, "  New items:     %d\n", res.NewItems)
	fmt.Fprintf(w, "  Total items:   %d\n", res.TotalItems)
	fmt.Fprintf(w, "  Elapsed:       %s\n", formatDuration(res.FinishedAt.Sub(res.StartedAt)))
}

func printWatermark(w io.Writer, wm *ledger.Watermark, now time.Time) {
	fmt.Fprintln(w, "Last run:")
	fmt.Fprintf(w, "  When:      %s (%s ago)\n",
		wm.Timestamp.Format("2006-01-02 15:04:05"), formatDuration(now.Sub(wm.Timestamp)))
	fmt.Fprintf(w, "  Mode:      %s\n", wm.Mode)
	fmt.Fprintf(w, "  New items: %d\n", wm.NewItems)
	fmt.Fprintln(w, "Watermark:")
	fmt.Fprintf(w, "  Title: %s\n", wm.Title)
	fmt.Fprintf(w, "  URL:   %s\n", wm.URL)
	if wm.Date != "" {
		fmt.Fprintf(w, "  Date:  %s\n", wm.Date)
	}
}

func printRunsTable(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	for _, run := range runs {
		marker := "✓"
		if !run.Succeeded() {
			marker = "✗"
		}
		fmt.Fprintf(w, "%s %s  %s  %-11s pages=%d new=%d total=%d  %s\n",
			marker,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.RunID.String()[:8],
			run.Mode,
			run.PagesFetched,
			run.NewItems,
			run.TotalItems,
			run.StopReason,
		)
		if run.Error != nil {
			fmt.Fprintf(w, "    error: %s\n", *run.Error)
		}
	}
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	return fmt.Sprintf("%dd", days)
}
