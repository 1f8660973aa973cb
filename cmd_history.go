package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sd_backend/db"
)

type historyOptions struct {
	*globalOptions

	Limit     int
	RequestID string
	JSON      bool
	Prune     bool
}

// newHistoryCommand creates the history command.
//
// Usage:
//
//	sd_backend history [--limit N] [--request ID] [--json] [--prune]
func newHistoryCommand(globalOpts *globalOptions) *cobra.Command {
	opts := &historyOptions{globalOptions: globalOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent generation requests",
		Long: `Show generation requests recorded in the history database, newest first.
With --prune, rows older than HISTORY_RETENTION_DAYS are deleted first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := db.Open(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			if opts.Prune {
				result, err := database.Cleanup(cmd.Context(), cfg.HistoryRetentionDays)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d rows older than %d days\n", result.Deleted, cfg.HistoryRetentionDays)
			}

			repo := db.NewRepository(database)
			var records []db.GenerationRecord
			if opts.RequestID != "" {
				records, err = repo.QueryGenerationsByRequestID(cmd.Context(), opts.RequestID)
			} else {
				records, err = repo.QueryRecentGenerations(cmd.Context(), opts.Limit)
			}
			if err != nil {
				return err
			}
			total, err := repo.CountGenerations(cmd.Context())
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), records, total, opts.JSON)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "number of rows to show")
	cmd.Flags().StringVar(&opts.RequestID, "request", "", "show only rows with this request id")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "apply the retention policy before listing")
	return cmd
}

func printHistory(w io.Writer, records []db.GenerationRecord, total int64, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		color.New(color.FgYellow).Fprintln(w, "No generations recorded")
		return nil
	}

	ok := color.New(color.FgGreen)
	failed := color.New(color.FgRed)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tREQUEST\tMODEL\tSIZE\tIMAGES\tDURATION\tSTATUS\tPROMPT")
	for _, r := range records {
		status := ok.Sprint(r.Status)
		if r.Status != db.StatusSuccess {
			status = failed.Sprint(r.Status)
			if r.ErrorKind != "" {
				status += " (" + r.ErrorKind + ")"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dx%d\t%d\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.RequestID,
			r.Model,
			r.Width, r.Height,
			len(r.ImageIDs),
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			status,
			truncate(r.Prompt, 40),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nShowing %d of %d recorded requests\n", len(records), total)
	return nil
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
