package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"qrattend/internal/ledger"
)

func ledgerCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Browse and correct recorded attendance",
	}

	var p ledger.Period
	var query string
	list := &cobra.Command{
		Use:   "list",
		Short: "List one attendance bucket; defaults to today in the active section",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			year, month, day, err := p.Resolve(e.app.Ledger.Now())
			if err != nil {
				return err
			}
			section := e.app.Coordinator.ActiveSection()
			entries := e.app.Ledger.Search(year, month, day, section, query)

			w := cmd.OutOrStdout()
			printf(w, "%s\n", ledger.Key(year, month, day, section))
			if len(entries) == 0 {
				printf(w, "No attendance records\n")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tID\tNAME\tDATE\tTIME")
			for i, a := range entries {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, a.StudentID, a.StudentName, a.Date, a.Time)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&p.Year, "year", "", "year, e.g. 2026")
	list.Flags().StringVar(&p.Month, "month", "", "month name or number")
	list.Flags().StringVar(&p.Day, "day", "", "weekday name")
	list.Flags().StringVarP(&query, "query", "q", "", "filter by name or ID")

	remove := &cobra.Command{
		Use:   "remove <key> <index>",
		Short: "Delete one attendance entry; index as shown by ledger list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			removed, err := e.app.Ledger.Remove(cmd.Context(), args[0], index)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Removed %s (%s) from %s\n", removed.StudentName, removed.StudentID, args[0])
			return nil
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Summarize recorded attendance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			printf(w, "Unique students: %d\n", e.app.Ledger.UniqueStudents())
			printf(w, "Registered:      %d\n", e.app.Registry.Len())
			for _, key := range e.app.Ledger.Buckets() {
				printf(w, "  %-40s %d\n", key, len(e.app.Ledger.Bucket(key)))
			}
			return nil
		},
	}

	cmd.AddCommand(list, remove, stats)
	return cmd
}
