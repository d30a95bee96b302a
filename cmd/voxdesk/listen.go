package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxdesk/internal/capture"
	"github.com/MrWong99/voxdesk/internal/config"
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/audio/portaudio"
)

func newListenCmd(flags *rootFlags) *cobra.Command {
	var device string
	var noPlayback bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Answer spoken requests from the microphone",
		Long: `Listen records one utterance at a time from the microphone, answers it
and speaks the reply through the default output device. Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := bootstrap(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer e.close()

			ac := e.cfg.Audio
			if device != "" {
				ac.InputDevice = device
			}
			if e.app.Providers().VAD == nil {
				return fmt.Errorf("listen needs a vad provider")
			}

			mic := portaudio.NewMicrophone(
				portaudio.WithSampleRate(ac.SampleRate),
				portaudio.WithFrameSize(ac.FrameSize),
				portaudio.WithDevice(ac.InputDevice),
			)
			rec := capture.New(mic, e.app.Providers().VAD, captureConfig(ac))

			var player audio.Player = portaudio.NewSpeaker()
			if noPlayback || !ac.PlaybackEnabled() {
				player = logPlayer{}
			}

			w, err := e.watcher()
			if err != nil {
				return err
			}
			slog.Info("listening", "device", orDefault(ac.InputDevice, "default"), "sample_rate", ac.SampleRate)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return e.app.Orchestrator().Loop(ctx, rec, player) })
			if w != nil {
				g.Go(func() error { return w.Run(ctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&device, "device", "", "input device name substring (see 'voxdesk devices')")
	cmd.Flags().BoolVar(&noPlayback, "no-playback", false, "do not play replies")
	return cmd
}

func captureConfig(ac config.AudioConfig) capture.Config {
	return capture.Config{
		SampleRate:      ac.SampleRate,
		FrameSize:       ac.FrameSize,
		EnergyThreshold: ac.EnergyThreshold,
		Silence:         seconds(ac.SilenceSeconds),
		PrePad:          seconds(ac.PadSeconds),
		VADMode:         ac.VADMode,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// logPlayer discards replies when playback is disabled.
type logPlayer struct{}

func (logPlayer) Play(_ context.Context, wav []byte) error {
	slog.Info("playback disabled, reply discarded", "bytes", len(wav))
	return nil
}
