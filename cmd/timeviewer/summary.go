package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/timeviewer/backend/internal/session"
	"github.com/timeviewer/backend/internal/store"
	"github.com/timeviewer/backend/internal/timeline"
)

func newSummaryCmd(configPath *string) *cobra.Command {
	var dbPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print today's totals straight from the segment database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.Store.Path = dbPath
			}

			st, err := store.Open(cmd.Context(), cfg.Store.Path)
			if err != nil {
				return err
			}
			defer shutdownStore(st)

			now := time.Now()
			since := session.DayStart(now, cfg.Tracker.DayBoundaryHour)
			segments, err := st.QueryRecent(cmd.Context(), since)
			if err != nil {
				return err
			}

			summary := timeline.Summarize(segments, since, now)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "override segment database path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printSummary(w io.Writer, s timeline.Summary) {
	total := time.Duration(s.TotalSeconds * float64(time.Second))
	fmt.Fprintf(w, "Since %s: %s tracked\n", s.Since.Local().Format("Mon 15:04"), timeline.FormatDuration(total))
	printTotals(w, "Apps", s.Apps)
	printTotals(w, "Sites", s.Hosts)
}

func printTotals(w io.Writer, heading string, totals []timeline.Total) {
	if len(totals) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", heading)
	for _, t := range totals {
		fmt.Fprintf(w, "  %-30s %10s\n", t.Key, timeline.FormatDuration(t.Duration))
	}
}
