package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soyeahso/dialdesk/internal/config"
	"github.com/soyeahso/dialdesk/internal/domain"
	"github.com/soyeahso/dialdesk/internal/store"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
	}

	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentSetStatusCmd())
	return cmd
}

func openStore() (*store.DB, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		cfg = config.Defaults()
	}
	return store.Open(paths.DBPath(cfg.Store.Path), log)
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents and their availability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			agents, err := store.NewAgentLedger(db).List(context.Background())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPHONE\tSTATUS\tUPDATED")
			for _, a := range agents {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					a.ID, a.Name, a.PhoneNumber, a.Status,
					a.LastStatusUpdate.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func newAgentSetStatusCmd() *cobra.Command {
	var phoneNumber string

	cmd := &cobra.Command{
		Use:   "set-status <agent-id> <status>",
		Short: "Set an agent's availability (available, on_call, offline, unavailable)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid agent id %q", args[0])
			}

			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			agent, err := store.NewAgentLedger(db).SetStatus(
				context.Background(), id, domain.AgentStatus(args[1]), phoneNumber)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "agent %d (%s) is now %s\n", agent.ID, agent.Name, agent.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&phoneNumber, "phone", "", "also update the agent's phone number")
	return cmd
}
