package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/svisor/internal/control"
	"github.com/smazurov/svisor/internal/logging"
)

const followInterval = time.Second

type logsFetcher interface {
	Logs(ctx context.Context, q control.LogsQuery) (control.LogsPage, error)
}

// CreateLogsCmd creates the logs command, which prints svisor's own log buffer.
func CreateLogsCmd(cfg func() ClientConfig) *cobra.Command {
	var (
		address string
		module  string
		limit   int
		follow  bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print recent supervisor log entries",
		Long:  "Prints entries from the running daemon's in-memory log buffer. With --follow, keeps polling for new entries.",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			conf := cfg()
			if address != "" {
				conf.Address = address
			}
			client := control.NewClient(conf.Address, control.WithBasicAuth(conf.Username, conf.Password))

			err := printLogs(c.Context(), client, control.LogsQuery{Module: module, Limit: limit}, follow, followInterval, c.OutOrStdout())
			if err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintln(c.ErrOrStderr(), "Error:", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "Control API address (default: the configured listen address)")
	cmd.Flags().StringVarP(&module, "module", "m", "", "Only show entries from this module (supervisor, api, http, nats)")
	cmd.Flags().IntVarP(&limit, "lines", "n", 100, "Number of entries to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	return cmd
}

// printLogs prints one page, then polls with the page cursor while follow is set.
func printLogs(ctx context.Context, client logsFetcher, q control.LogsQuery, follow bool, interval time.Duration, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		page, err := client.Logs(ctx, q)
		if err != nil {
			return err
		}
		for _, entry := range page.Entries {
			fmt.Fprintln(out, logging.FormatLogLine(entry))
		}
		if !follow {
			return nil
		}

		q.After = page.LastSeq
		q.Limit = 0

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
