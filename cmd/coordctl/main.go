// Command coordctl is the operator CLI for inspecting and maintaining
// the shared coordination store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/instance"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/janitor"
	"github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003/store/postgres"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootOptions holds global flags for all commands.
type rootOptions struct {
	dsn           string
	healthTimeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "coordctl",
		Short: "Inspect and maintain the channel coordination store",
		Long: "coordctl connects directly to the shared store used by the listener\n" +
			"fleet and reports registered instances, current channel locks, and\n" +
			"can sweep expired rows.",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn",
		os.Getenv("TWITCHMON_DSN"),
		"postgres connection string (defaults to $TWITCHMON_DSN)")
	cmd.PersistentFlags().DurationVar(&opts.healthTimeout, "health-timeout",
		20*time.Second, "heartbeat age beyond which an instance is reported unhealthy")

	cmd.AddCommand(newInstancesCommand(opts))
	cmd.AddCommand(newLocksCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}

// openStore connects to the postgres store from the global flags.
func openStore(ctx context.Context, opts *rootOptions) (*postgres.Store, error) {
	if opts.dsn == "" {
		return nil, fmt.Errorf("no store configured: pass --dsn or set TWITCHMON_DSN")
	}
	s, err := postgres.New(ctx, opts.dsn, postgres.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	if err = s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("store unreachable: %w", err)
	}
	return s, nil
}

func newInstancesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "instances",
		Short: "List registered listener instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			instances, err := s.ListInstances(ctx)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tHOSTNAME\tCHANNELS\tLAST HEARTBEAT\tHEALTHY")
			for _, inst := range instances {
				st := instance.StatusOf(inst, now, opts.healthTimeout)
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%t\n",
					st.ID, st.Hostname, st.ChannelCount,
					st.LastHeartbeat.Format(time.RFC3339), st.Healthy)
			}
			return w.Flush()
		},
	}
}

func newLocksCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "locks",
		Short: "List current channel locks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			leases, err := s.ListLeases(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "CHANNEL\tINSTANCE\tACQUIRED\tLAST HEARTBEAT")
			for _, l := range leases {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					l.ChannelID, l.InstanceID,
					l.AcquiredAt.Format(time.RFC3339),
					l.LastHeartbeat.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	var threshold time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired leases and dead instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			j, err := janitor.New(s, "@every 1m", janitor.WithThreshold(threshold))
			if err != nil {
				return err
			}
			leases, instances := j.Sweep(ctx)
			fmt.Fprintf(cmd.OutOrStdout(),
				"removed %d expired leases, %d dead instances\n", leases, instances)
			return nil
		},
	}

	cmd.Flags().DurationVar(&threshold, "threshold", 30*time.Second,
		"heartbeat age beyond which rows are considered expired")

	return cmd
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openStore(ctx, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err = s.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
