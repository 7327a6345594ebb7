package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"yuzu/interview/internal/persistence"
)

func newRecordsCmd(sf *storeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List and show persisted interview records",
	}

	var user, status, jq string
	list := &cobra.Command{
		Use:   "list",
		Short: "List records, newest last",
		Long: `List persisted interview records.

Examples:
  interviewctl records list --backend badger
  interviewctl records list --status error --jq '.metadata.errorMessage'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rd, closeFn, err := sf.openReader(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			recs, err := rd.ListRecords(cmd.Context())
			if err != nil {
				return err
			}
			recs = filterRecords(recs, user, persistence.Status(status))
			if jq != "" {
				for _, r := range recs {
					if err := runJQ(cmd.OutOrStdout(), jq, r); err != nil {
						return err
					}
				}
				return nil
			}
			return printTable(cmd.OutOrStdout(), recs)
		},
	}
	list.Flags().StringVar(&user, "user", "", "only records for this user id")
	list.Flags().StringVar(&status, "status", "", "only records with this status (completed, abandoned, error)")
	list.Flags().StringVar(&jq, "jq", "", "jq expression applied to each record")

	var showJQ string
	var asYAML bool
	show := &cobra.Command{
		Use:   "show <session_id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rd, closeFn, err := sf.openReader(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			rec, err := rd.GetRecord(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if showJQ != "" {
				return runJQ(cmd.OutOrStdout(), showJQ, rec)
			}
			if asYAML {
				// JSON field names rather than Go ones.
				v, err := toJSONValue(rec)
				if err != nil {
					return err
				}
				return outputResult(cmd.OutOrStdout(), v, true)
			}
			return outputResult(cmd.OutOrStdout(), rec, false)
		},
	}
	show.Flags().StringVar(&showJQ, "jq", "", "jq expression applied to the record")
	show.Flags().BoolVar(&asYAML, "yaml", false, "print YAML instead of JSON")

	cmd.AddCommand(list, show)
	return cmd
}

func filterRecords(recs []persistence.Record, user string, status persistence.Status) []persistence.Record {
	out := recs[:0:0]
	for _, r := range recs {
		if user != "" && r.UserID != user {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, r)
	}
	return out
}

// runJQ evaluates expr against v in its JSON form and prints each result
// on its own line.
func runJQ(w io.Writer, expr string, v any) error {
	q, err := gojq.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	input, err := toJSONValue(v)
	if err != nil {
		return err
	}
	iter := q.Run(input)
	for {
		out, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := out.(error); ok {
			return fmt.Errorf("jq: %w", err)
		}
		b, err := json.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	}
}

func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func printTable(w io.Writer, recs []persistence.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tUSER\tSTATUS\tANSWERED\tCOMPLETED\tREASON")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			r.SessionID, r.UserID, r.Status,
			r.Metadata.CompletedQuestions, r.Metadata.TotalQuestions,
			r.CompletedAt.Format(time.RFC3339), r.Metadata.EndReason)
	}
	return tw.Flush()
}
