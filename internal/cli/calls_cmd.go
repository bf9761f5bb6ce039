package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soyeahso/dialdesk/internal/store"
)

func newCallsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "calls",
		Short: "List recent calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			calls, err := store.NewCallStore(db).List(context.Background())
			if err != nil {
				return err
			}
			if limit > 0 && len(calls) > limit {
				calls = calls[:limit]
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SID\tCALLER\tAGENT\tSTATUS\tSTART\tDURATION\tSUMMARY")
			for _, c := range calls {
				agent := "-"
				if c.AgentID != nil {
					agent = fmt.Sprintf("%d", *c.AgentID)
				}
				duration := "-"
				if c.Duration != nil {
					duration = fmt.Sprintf("%ds", *c.Duration)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					c.CallSID, c.CallerNumber, agent, c.Status,
					c.StartTime.Format("2006-01-02 15:04:05"), duration, c.DialogueSummary)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum calls to show (0 for all)")
	return cmd
}
