package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/dialdesk/internal/config"
	"github.com/soyeahso/dialdesk/internal/gateway"
	"github.com/soyeahso/dialdesk/internal/ivr"
	"github.com/soyeahso/dialdesk/internal/routing"
	"github.com/soyeahso/dialdesk/internal/store"
	"github.com/soyeahso/dialdesk/internal/sweeper"
	"github.com/soyeahso/dialdesk/internal/telephony"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dialdesk server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("preparing data directories: %w", err)
			}

			db, err := store.Open(paths.DBPath(cfg.Store.Path), log)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			ledger := store.NewAgentLedger(db)
			calls := store.NewCallStore(db)
			metrics := store.NewMetricsStore(db)

			hub := gateway.NewHub(log)
			machine := ivr.New(cfg.Routing.MaxRetries)
			coord := routing.New(log.Sub("routing"), machine, ledger, calls, hub)

			opts := []gateway.ServerOption{}
			if cfg.Telephony.AccountSID != "" && cfg.Telephony.AuthToken != "" {
				dialer := telephony.NewClient(cfg.Telephony, log.Sub("telephony"))
				opts = append(opts, gateway.WithDialer(dialer))
			} else {
				log.Warn().Msg("no carrier credentials configured — outbound calling disabled")
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.Sweeper.SweeperEnabled() {
				sw := sweeper.New(log, cfg.Sweeper, cfg.Routing, ledger, coord)
				if err := sw.Start(); err != nil {
					return fmt.Errorf("starting sweeper: %w", err)
				}
				defer sw.Stop()
			}

			srv := gateway.New(cfg, log, coord, ledger, calls, metrics, hub, opts...)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}
