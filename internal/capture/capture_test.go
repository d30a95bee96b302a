package capture_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/capture"
	"github.com/MrWong99/voxdesk/pkg/audio"
	audiomock "github.com/MrWong99/voxdesk/pkg/audio/mock"
	"github.com/MrWong99/voxdesk/pkg/provider/vad"
	"github.com/MrWong99/voxdesk/pkg/provider/vad/energy"
	vadmock "github.com/MrWong99/voxdesk/pkg/provider/vad/mock"
)

const frameSize = audio.DefaultFrameSize

func pcmFrame(amp int16) audio.AudioFrame {
	s := make([]int16, frameSize)
	for i := range s {
		s[i] = amp
	}
	return audio.AudioFrame{Data: audio.SamplesToBytes(s), SampleRate: audio.DefaultSampleRate, Channels: 1}
}

func framesOf(amps ...int16) []audio.AudioFrame {
	out := make([]audio.AudioFrame, len(amps))
	for i, a := range amps {
		out[i] = pcmFrame(a)
	}
	return out
}

func amps(v int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func concat(parts ...[]int16) []int16 {
	var out []int16
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := capture.Config{}.WithDefaults()
	if got := cfg.PadFrames(); got != 25 {
		t.Errorf("PadFrames = %d, want 25", got)
	}
	if got := cfg.SilenceFrames(); got != 46 {
		t.Errorf("SilenceFrames = %d, want 46", got)
	}
	if cfg.EnergyThreshold != 300 {
		t.Errorf("EnergyThreshold = %v, want 300", cfg.EnergyThreshold)
	}
}

func TestRecord_SpeechWithPadAndTail(t *testing.T) {
	t.Parallel()

	// 30 quiet frames, 5 loud, then plenty of quiet on a live stream.
	src := &audiomock.Source{
		Frames:   framesOf(concat(amps(0, 30), amps(100, 5), amps(0, 80))...),
		HoldOpen: true,
	}
	rec := capture.New(src, energy.New(), capture.Config{})

	u := rec.Record(context.Background())

	// The 25-frame ring holds 24 quiet frames plus the trigger.
	wantFrames := 24 + 5 + 47
	if u.Frames != wantFrames {
		t.Fatalf("Frames = %d, want %d", u.Frames, wantFrames)
	}
	if u.PadFrames != 24 {
		t.Errorf("PadFrames = %d, want 24", u.PadFrames)
	}
	if len(u.PCM) != wantFrames*frameSize*2 {
		t.Errorf("len(PCM) = %d, want %d", len(u.PCM), wantFrames*frameSize*2)
	}
	if u.SampleRate != audio.DefaultSampleRate {
		t.Errorf("SampleRate = %d", u.SampleRate)
	}
	// Pad comes first and is quiet; the loud frames follow immediately.
	samples := audio.BytesToSamples(u.PCM)
	if samples[24*frameSize-1] != 0 || samples[24*frameSize] != 100 {
		t.Error("pre-roll pad is not directly followed by the speech onset")
	}
	if got := src.Streams[0].Closes(); got == 0 {
		t.Error("stream not closed after capture")
	}
}

func TestRecord_ShortPreRoll(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{
		Frames:   framesOf(concat(amps(0, 3), amps(100, 1), amps(0, 50))...),
		HoldOpen: true,
	}
	u := capture.New(src, energy.New(), capture.Config{}).Record(context.Background())
	if u.PadFrames != 3 || u.Frames != 3+1+47 {
		t.Fatalf("Frames = %d (pad %d), want %d (pad 3)", u.Frames, u.PadFrames, 3+1+47)
	}
}

func TestRecord_SilenceOnly(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{Frames: framesOf(amps(0, 200)...)}
	u := capture.New(src, energy.New(), capture.Config{}).Record(context.Background())
	if u.PCM == nil {
		t.Fatal("PCM is nil, want empty non-nil")
	}
	if !u.Empty() {
		t.Fatalf("len(PCM) = %d, want 0", len(u.PCM))
	}
}

func TestRecord_StreamEndsMidSpeech(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{Frames: framesOf(concat(amps(0, 2), amps(100, 4), amps(0, 10))...)}
	u := capture.New(src, energy.New(), capture.Config{}).Record(context.Background())
	if u.Frames != 16 {
		t.Fatalf("Frames = %d, want 16", u.Frames)
	}
}

func TestRecord_Degradations(t *testing.T) {
	t.Parallel()

	loud := framesOf(amps(100, 10)...)
	tests := []struct {
		name   string
		src    *audiomock.Source
		engine vad.Engine
	}{
		{
			name:   "open error",
			src:    &audiomock.Source{OpenErr: errors.New("no device")},
			engine: energy.New(),
		},
		{
			name:   "stream error mid speech",
			src:    &audiomock.Source{Frames: loud, StreamErr: io.ErrUnexpectedEOF},
			engine: energy.New(),
		},
		{
			name:   "session error",
			src:    &audiomock.Source{Frames: loud},
			engine: &vadmock.Engine{NewSessionErr: errors.New("no model")},
		},
		{
			name:   "classify error",
			src:    &audiomock.Source{Frames: loud},
			engine: &vadmock.Engine{Session: &vadmock.Session{ProcessFrameErr: errors.New("bad frame")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u := capture.New(tt.src, tt.engine, capture.Config{}).Record(context.Background())
			if u.PCM == nil || len(u.PCM) != 0 {
				t.Fatalf("PCM = %v (nil=%v), want empty non-nil", len(u.PCM), u.PCM == nil)
			}
		})
	}
}

func TestRecord_UncertainExtendsSpeech(t *testing.T) {
	t.Parallel()

	script := []vad.VADEvent{{Type: vad.VADSpeech}}
	for range 40 {
		script = append(script, vad.VADEvent{Type: vad.VADSilence})
	}
	script = append(script, vad.VADEvent{Type: vad.VADUncertain})

	sess := &vadmock.Session{Events: script, Default: vad.VADEvent{Type: vad.VADSilence}}
	src := &audiomock.Source{Frames: framesOf(amps(0, 150)...), HoldOpen: true}
	u := capture.New(src, &vadmock.Engine{Session: sess}, capture.Config{}).Record(context.Background())

	if want := 1 + 40 + 1 + 47; u.Frames != want {
		t.Fatalf("Frames = %d, want %d", u.Frames, want)
	}
	if sess.CloseCallCount != 1 {
		t.Errorf("session closed %d times, want 1", sess.CloseCallCount)
	}
}

func TestRecord_PassesGateConfig(t *testing.T) {
	t.Parallel()

	eng := &vadmock.Engine{}
	src := &audiomock.Source{}
	capture.New(src, eng, capture.Config{EnergyThreshold: 450, VADMode: 2}).Record(context.Background())

	if len(eng.NewSessionCalls) != 1 {
		t.Fatalf("NewSession calls = %d, want 1", len(eng.NewSessionCalls))
	}
	got := eng.NewSessionCalls[0].Cfg
	if got.EnergyThreshold != 450 || got.Mode != 2 || got.FrameSize != frameSize || got.SampleRate != audio.DefaultSampleRate {
		t.Errorf("session config = %+v", got)
	}
}

func TestRecord_ContextCancel(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{Frames: framesOf(amps(0, 5)...), HoldOpen: true}
	rec := capture.New(src, energy.New(), capture.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan capture.Utterance, 1)
	go func() { done <- rec.Record(ctx) }()

	select {
	case u := <-done:
		if !u.Empty() || u.PCM == nil {
			t.Fatalf("cancelled capture returned %d bytes", len(u.PCM))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Record did not return after cancellation")
	}
	if ctx.Err() == nil {
		t.Error("context not cancelled")
	}
	if src.Streams[0].Closes() == 0 {
		t.Error("stream not closed on cancellation")
	}
}

func TestUtterance_Duration(t *testing.T) {
	t.Parallel()

	u := capture.Utterance{PCM: make([]byte, 32000), SampleRate: 16000}
	if got := u.Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
}
