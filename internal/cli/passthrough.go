package cli

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/jack"
)

// passthrough copies its input port to its output port every cycle and
// logs server notifications.
type passthrough struct {
	in   jack.InputPort[jack.AudioSample]
	out  jack.OutputPort[jack.AudioSample]
	gain float32
}

func (p *passthrough) Process(ctx *jack.CallbackContext, nframes uint32) int {
	in := jack.AudioIn(ctx, p.in)
	out := jack.AudioOut(ctx, p.out)
	if in == nil || out == nil {
		return 0
	}
	if p.gain == 1 {
		copy(out, in)
		return 0
	}
	for i := range out {
		out[i] = in[i] * p.gain
	}
	return 0
}

type notificationLogger struct {
	client string
}

func (n notificationLogger) CallbacksOfInterest() []jack.MetadataKind {
	return []jack.MetadataKind{jack.SampleRateKind, jack.PortConnectKind, jack.XRunKind}
}

func (n notificationLogger) SampleRateChanged(rate uint32) int {
	logrus.WithFields(logrus.Fields{
		"function":    "SampleRateChanged",
		"client":      n.client,
		"sample_rate": rate,
	}).Info("Sample rate changed")
	return 0
}

func (n notificationLogger) PortConnect(a, b jack.PortID, status jack.PortConnectStatus) {
	logrus.WithFields(logrus.Fields{
		"function": "PortConnect",
		"client":   n.client,
		"a":        a,
		"b":        b,
		"status":   status.String(),
	}).Info("Port connection changed")
}

func (n notificationLogger) XRun() int {
	logrus.WithFields(logrus.Fields{
		"function": "XRun",
		"client":   n.client,
	}).Warn("Xrun")
	return 0
}

func newPassthroughCmd() *cobra.Command {
	var (
		duration time.Duration
		gain     float32
		from     []string
		to       []string
	)
	cmd := &cobra.Command{
		Use:   "passthrough",
		Short: "Copy an input port to an output port until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			in, err := s.client.RegisterInputAudioPort("in")
			if err != nil {
				return err
			}
			out, err := s.client.RegisterOutputAudioPort("out")
			if err != nil {
				return err
			}
			if err := jack.SetProcessHandler(s.client, &passthrough{in: in, out: out, gain: gain}); err != nil {
				return err
			}
			if err := jack.SetMetadataHandler(s.client, notificationLogger{client: s.name}); err != nil {
				return err
			}
			if err := s.client.Activate(); err != nil {
				return err
			}

			inName, _ := s.client.PortName(in)
			outName, _ := s.client.PortName(out)
			for _, src := range from {
				if err := s.client.ConnectPorts(src, inName); err != nil {
					return err
				}
			}
			for _, dst := range to {
				if err := s.client.ConnectPorts(outName, dst); err != nil {
					return err
				}
			}

			ctx, cancel := untilDone(cmd.Context(), duration)
			defer cancel()
			wait := s.drive(ctx)
			<-ctx.Done()
			wait()
			if err := s.client.Deactivate(); err != nil {
				return err
			}

			st := s.client.Stats()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cycles=%d failures=%d xruns=%d\n",
				st.ProcessCycles, st.ProcessFailures, st.XRuns)
			return nil
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().Float32Var(&gain, "gain", 1, "linear gain applied to the signal")
	cmd.Flags().StringSliceVar(&from, "from", nil, "output ports to connect to our input")
	cmd.Flags().StringSliceVar(&to, "to", nil, "input ports to connect our output to")
	return cmd
}
