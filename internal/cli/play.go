package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/jack"
	"github.com/opd-ai/jack/internal/config"
	"github.com/opd-ai/jack/playback"
)

func newPlayCmd() *cobra.Command {
	var (
		tone   float64
		length time.Duration
		volume float32
		gain   float32
		agc    bool
		to     []string
	)
	cmd := &cobra.Command{
		Use:   "play [file.opus]",
		Short: "Play an Ogg/Opus file or a test tone through an output port",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (tone == 0) {
				return errors.New("give either a file or --tone")
			}
			a, err := getApp(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			rate := s.client.SampleRate()
			var src playback.Source
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				if src, err = playback.NewOggOpusSource(f); err != nil {
					return err
				}
			} else {
				src = playback.NewToneSource(rate, tone, volume, int(length.Seconds()*float64(rate)))
			}

			out, err := s.client.RegisterOutputAudioPort(a.v.GetString(config.KeyPlayPort))
			if err != nil {
				return err
			}
			buffered := int(a.v.GetDuration(config.KeyPlayBuffer).Seconds() * float64(rate))
			player := playback.NewPlayer(out, buffered)
			effects := playback.NewEffectChain()
			if gain != 1 {
				g, err := playback.NewGainEffect(gain)
				if err != nil {
					return err
				}
				effects.Add(g)
			}
			if agc {
				effects.Add(playback.NewAutoGainEffect())
			}
			if effects.Len() > 0 {
				player.Effects = effects
			}
			if err := jack.SetProcessHandler(s.client, player); err != nil {
				return err
			}
			if err := s.client.Activate(); err != nil {
				return err
			}
			outName, _ := s.client.PortName(out)
			for _, dst := range to {
				if err := s.client.ConnectPorts(outName, dst); err != nil {
					return err
				}
			}

			ctx, cancel := untilDone(cmd.Context(), 0)
			defer cancel()
			wait := s.drive(ctx)
			feedErr := player.Feed(ctx, src, rate)
			cancel()
			wait()
			if err := s.client.Deactivate(); err != nil {
				return err
			}

			st := player.Stats()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "played=%d underruns=%d\n", st.Played, st.Underruns)
			if !finished(feedErr) {
				return feedErr
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&tone, "tone", 0, "play a sine tone of this frequency in Hz instead of a file")
	cmd.Flags().DurationVar(&length, "length", time.Second, "length of the tone (0 plays until interrupted)")
	cmd.Flags().Float32Var(&volume, "volume", 0.5, "tone amplitude between 0 and 1")
	cmd.Flags().Float32Var(&gain, "gain", 1, "linear gain applied before playback")
	cmd.Flags().BoolVar(&agc, "auto-gain", false, "apply automatic gain control")
	cmd.Flags().StringSliceVar(&to, "to", nil, "input ports to connect the player to")
	cmd.Flags().String("buffer", "", "audio queued ahead of the realtime thread, e.g. 250ms")
	cmd.Flags().String("port", "", "name of the output port")
	return cmd
}
