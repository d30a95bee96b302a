package webrtc_test

import (
	"testing"

	"github.com/MrWong99/voxdesk/pkg/provider/vad"
	"github.com/MrWong99/voxdesk/pkg/provider/vad/webrtc"
)

func TestNewSession_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{name: "unsupported rate", cfg: vad.Config{SampleRate: 44100, FrameSize: 512}},
		{name: "frame shorter than 10ms", cfg: vad.Config{SampleRate: 16000, FrameSize: 100}},
	}
	for _, tt := range tests {
		if _, err := webrtc.New().NewSession(tt.cfg); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestSession_DigitalSilence(t *testing.T) {
	t.Parallel()

	sess, err := webrtc.New().NewSession(vad.Config{Mode: 3})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	ev, err := sess.ProcessFrame(make([]byte, vad.DefaultFrameSize*2))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.VADSilence {
		t.Errorf("event = %s, want SILENCE", ev.Type)
	}
}
