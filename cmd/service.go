package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/svisor/internal/systemd"
)

const serviceTimeout = 2 * time.Minute

// unitController is the part of systemd.Manager the service commands use.
type unitController interface {
	GetServiceStatus(ctx context.Context, unit string) (systemd.UnitStatus, error)
	StartService(ctx context.Context, unit string) error
	StopService(ctx context.Context, unit string) error
	RestartService(ctx context.Context, unit string) error
}

// CreateServiceCmd creates the service command controlling the svisor unit
// itself through systemd.
func CreateServiceCmd(unit func() string) *cobra.Command {
	var userBus bool
	var unitName string

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Control the svisor systemd unit",
		Long:  "Starts, stops, restarts or inspects the systemd unit svisor is installed as, over D-Bus.",
	}

	for _, verb := range []string{"start", "stop", "restart", "status"} {
		cmd.AddCommand(&cobra.Command{
			Use:   verb,
			Short: verb + " the svisor unit",
			Args:  cobra.NoArgs,
			Run: func(c *cobra.Command, _ []string) {
				name := unitName
				if name == "" {
					name = unit()
				}

				ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
				defer cancel()

				mgr, err := systemd.NewManager(ctx, userBus)
				if err != nil {
					fmt.Fprintln(c.ErrOrStderr(), "Error:", err)
					os.Exit(1)
				}
				defer mgr.Close()

				if err := runServiceCommand(ctx, mgr, verb, name, c.OutOrStdout()); err != nil {
					fmt.Fprintln(c.ErrOrStderr(), "Error:", err)
					cancel()
					mgr.Close()
					os.Exit(1)
				}
			},
		})
	}

	cmd.PersistentFlags().BoolVar(&userBus, "user", false, "Use the user service manager instead of the system one")
	cmd.PersistentFlags().StringVar(&unitName, "unit", "", "Unit name (default: the configured systemd unit)")
	return cmd
}

func runServiceCommand(ctx context.Context, mgr unitController, verb, unit string, out io.Writer) error {
	unit = systemd.UnitName(unit)

	var err error
	switch verb {
	case "start":
		err = mgr.StartService(ctx, unit)
	case "stop":
		err = mgr.StopService(ctx, unit)
	case "restart":
		err = mgr.RestartService(ctx, unit)
	case "status":
		var st systemd.UnitStatus
		st, err = mgr.GetServiceStatus(ctx, unit)
		if err == nil {
			fmt.Fprintf(out, "%s: %s (%s)", st.Unit, st.ActiveState, st.SubState)
			if st.MainPID > 0 {
				fmt.Fprintf(out, " pid %d", st.MainPID)
			}
			fmt.Fprintln(out)
		}
		return err
	default:
		return fmt.Errorf("unknown service action %q", verb)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s done\n", unit, verb)
	return nil
}
