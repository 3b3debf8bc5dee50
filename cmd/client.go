// Package cmd holds the svisor subcommands that talk to a running daemon or to systemd.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/svisor/internal/control"
	"github.com/smazurov/svisor/internal/nats"
)

// ClientConfig is where the client commands find the daemon.
type ClientConfig struct {
	Address  string
	Username string
	Password string
	// NATSURL is the configured NATS server, used by a bare --nats flag.
	NATSURL string
}

// natsFromConfig is the value of a bare --nats flag.
const natsFromConfig = "config"

// executor is implemented by the HTTP and NATS control clients.
type executor interface {
	Execute(ctx context.Context, cmd control.Command) (control.Result, error)
}

// errCommandFailed marks a result the daemon reported as failed, already printed.
var errCommandFailed = errors.New("command failed")

// CreateClientCmds creates status, start, stop, restart and stop-all.
// cfg is read when a command runs, after configuration is loaded.
func CreateClientCmds(cfg func() ClientConfig) []*cobra.Command {
	status := newClientCmd(cfg, control.ActionStatus, &cobra.Command{
		Use:   "status [name]",
		Short: "Show process status",
		Long:  "Prints a table of every supervised process, or a single process when a name is given.",
		Args:  cobra.MaximumNArgs(1),
	})
	start := newClientCmd(cfg, control.ActionStart, &cobra.Command{
		Use:   "start <name|all>",
		Short: "Start a process",
		Args:  cobra.ExactArgs(1),
	})
	stop := newClientCmd(cfg, control.ActionStop, &cobra.Command{
		Use:   "stop <name|all>",
		Short: "Stop a process and cancel any pending restart",
		Args:  cobra.ExactArgs(1),
	})
	restart := newClientCmd(cfg, control.ActionRestart, &cobra.Command{
		Use:   "restart <name|all>",
		Short: "Restart a process and reset its failure count",
		Args:  cobra.ExactArgs(1),
	})
	stopAll := newClientCmd(cfg, control.ActionStopAll, &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every process",
		Args:  cobra.NoArgs,
	})
	return []*cobra.Command{status, start, stop, restart, stopAll}
}

func newClientCmd(cfg func() ClientConfig, action control.Action, cmd *cobra.Command) *cobra.Command {
	var address string
	var natsURL string
	var asJSON bool

	cmd.Run = func(c *cobra.Command, args []string) {
		conf, err := resolveTransport(cfg(), address, natsURL)
		if err != nil {
			fmt.Fprintln(c.ErrOrStderr(), "Error:", err)
			os.Exit(1)
		}

		command := control.Command{Action: action}
		if len(args) > 0 {
			command.Name = args[0]
		}

		if err := dispatch(c, conf, command, asJSON); err != nil {
			if !errors.Is(err, errCommandFailed) {
				fmt.Fprintln(c.ErrOrStderr(), "Error:", err)
			}
			os.Exit(1)
		}
	}

	cmd.Flags().StringVar(&address, "address", "", "Control API address (default: the configured listen address)")
	cmd.Flags().StringVar(&natsURL, "nats", "", "Send the command over NATS instead of HTTP; bare --nats uses the configured server, or pass --nats=nats://host:4222")
	cmd.Flags().Lookup("nats").NoOptDefVal = natsFromConfig
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON result")
	return cmd
}

// resolveTransport applies the --address and --nats flags to conf. HTTP is
// used unless --nats is given.
func resolveTransport(conf ClientConfig, address, natsFlag string) (ClientConfig, error) {
	if address != "" {
		conf.Address = address
	}
	switch natsFlag {
	case "":
		conf.NATSURL = ""
	case natsFromConfig:
		if conf.NATSURL == "" {
			return conf, errors.New("no NATS server configured, set nats.url or nats.embedded, or pass --nats=URL")
		}
	default:
		conf.NATSURL = natsFlag
	}
	return conf, nil
}

// dispatch picks the transport, NATS when a URL is set, and runs command.
func dispatch(c *cobra.Command, conf ClientConfig, command control.Command, asJSON bool) error {
	if conf.NATSURL == "" {
		client := control.NewClient(conf.Address, control.WithBasicAuth(conf.Username, conf.Password))
		return runClientCommand(c.Context(), client, command, c.OutOrStdout(), asJSON)
	}

	nc := nats.NewControlClient(conf.NATSURL, nats.Credentials{Username: conf.Username, Password: conf.Password}, nil)
	if err := nc.Connect(); err != nil {
		return err
	}
	defer nc.Close()
	return runClientCommand(c.Context(), nc, command, c.OutOrStdout(), asJSON)
}

// runClientCommand executes command against the daemon and prints the outcome.
func runClientCommand(ctx context.Context, client executor, command control.Command, out io.Writer, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := client.Execute(ctx, command)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		if command.Action != control.ActionStatus || !res.OK {
			fmt.Fprintln(out, res.Message)
		}
		if len(res.Processes) > 0 {
			if err := control.WriteStatusTable(out, res.Processes); err != nil {
				return err
			}
		}
	}

	if !res.OK {
		return errCommandFailed
	}
	return nil
}
