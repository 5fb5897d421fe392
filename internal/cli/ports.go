package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opd-ai/jack"
)

func newPortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Inspect ports",
	}
	cmd.AddCommand(newPortsLookupCmd())
	return cmd
}

func newPortsLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <name|id>...",
		Short: "Resolve ports by full name or numeric id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			missing := 0
			rows := make([][]string, 0, len(args))
			for _, arg := range args {
				p, ok := lookupPort(s.client, arg)
				if !ok {
					missing++
					rows = append(rows, []string{arg, "not found"})
					continue
				}
				name, err := s.client.PortName(p)
				if err != nil {
					return err
				}
				rows = append(rows, []string{arg, name})
			}
			printTable(cmd.OutOrStdout(), []string{"Query", "Port"}, rows)
			if missing > 0 {
				return fmt.Errorf("%d of %d ports not found", missing, len(args))
			}
			return nil
		},
	}
}

// lookupPort treats an all-digit argument as a port id and anything else
// as a full port name.
func lookupPort(c *jack.Client, arg string) (jack.UnknownPort, bool) {
	if id, err := strconv.ParseUint(arg, 10, 32); err == nil {
		return c.PortByID(jack.PortID(id))
	}
	return c.PortByName(arg)
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <source> <destination>",
		Short: "Connect an output port to an input port",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.client.ConnectPorts(args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "connected %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <source> <destination>",
		Short: "Remove the connection between two ports",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.client.DisconnectPorts(args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "disconnected %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}
