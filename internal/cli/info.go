package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Open a client and print what the server reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			backend := "libjack"
			if s.sim != nil {
				backend = "simulation"
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "client:      %s\n", s.name)
			_, _ = fmt.Fprintf(out, "backend:     %s\n", backend)
			_, _ = fmt.Fprintf(out, "sample rate: %d Hz\n", s.client.SampleRate())
			_, _ = fmt.Fprintf(out, "buffer size: %d frames\n", s.client.BufferSize())
			return nil
		},
	}
}
