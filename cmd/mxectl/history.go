package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bountymxe/mxe-go/internal/journal"
)

type historyFlags struct {
	journal string
	limit   int
	id      string
	json    bool
}

func newHistoryCommand(g *globalFlags, streams IOConfig) *cobra.Command {
	f := &historyFlags{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled computation sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			path := cfg.Journal.Path
			if f.journal != "" {
				path = f.journal
			}
			if path == "" {
				return fmt.Errorf("journal file is not set: use --journal or Journal.Path")
			}
			return runHistory(path, f, streams)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.journal, "journal", "", "session journal file (overrides Journal.Path)")
	flags.IntVarP(&f.limit, "limit", "n", 10, "maximum number of sessions, 0 for all")
	flags.StringVar(&f.id, "id", "", "show one session with its transitions")
	flags.BoolVar(&f.json, "json", false, "print records as JSON")
	return cmd
}

func runHistory(path string, f *historyFlags, streams IOConfig) error {
	store, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	var recs []*journal.Record
	if f.id != "" {
		rec, err := store.Get(f.id)
		if err != nil {
			return err
		}
		recs = []*journal.Record{rec}
	} else if recs, err = store.List(f.limit); err != nil {
		return err
	}

	if f.json {
		enc := json.NewEncoder(streams.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	tw := tabwriter.NewWriter(streams.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCIRCUIT\tSTATE\tREASON\tSTARTED\tDURATION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%v\n",
			r.CorrelationID, r.Circuit, r.State, dash(r.Reason),
			r.StartedAt.Local().Format(time.DateTime), r.UpdatedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if f.id != "" {
		r := recs[0]
		if r.Error != "" {
			fmt.Fprintf(streams.Stdout, "\nerror: %s\n", r.Error)
		}
		fmt.Fprintln(streams.Stdout)
		for _, t := range r.Transitions {
			fmt.Fprintf(streams.Stdout, "  %s  %s\n", t.At.Local().Format("15:04:05.000"), t.State)
		}
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
