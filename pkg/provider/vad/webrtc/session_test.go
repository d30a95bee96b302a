package webrtc

import (
	"errors"
	"testing"

	"github.com/MrWong99/voxdesk/pkg/provider/vad"
)

// scriptedDetector answers sub-frames from a fixed script and records their
// sizes.
type scriptedDetector struct {
	script []bool
	err    error
	sizes  []int
	modes  []int
}

func (d *scriptedDetector) Process(_ int, frame []byte) (bool, error) {
	d.sizes = append(d.sizes, len(frame))
	if d.err != nil {
		return false, d.err
	}
	active := d.script[(len(d.sizes)-1)%len(d.script)]
	return active, nil
}

func (d *scriptedDetector) SetMode(mode int) error {
	d.modes = append(d.modes, mode)
	return nil
}

func TestSession_MajorityVote(t *testing.T) {
	t.Parallel()

	// 512 samples at 16 kHz hold three whole 160-sample sub-frames; the
	// trailing 32 samples are not classified.
	tests := []struct {
		name   string
		script []bool
		want   vad.VADEventType
	}{
		{name: "all voiced", script: []bool{true, true, true}, want: vad.VADSpeech},
		{name: "two of three", script: []bool{true, false, true}, want: vad.VADSpeech},
		{name: "one of three", script: []bool{false, true, false}, want: vad.VADSilence},
		{name: "none", script: []bool{false, false, false}, want: vad.VADSilence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &scriptedDetector{script: tt.script}
			s := newSession(d, 16000, 512, 2)

			ev, err := s.ProcessFrame(make([]byte, 512*2))
			if err != nil {
				t.Fatalf("ProcessFrame: %v", err)
			}
			if ev.Type != tt.want {
				t.Errorf("event = %s, want %s", ev.Type, tt.want)
			}
			if len(d.sizes) != 3 {
				t.Fatalf("sub-frames = %d, want 3", len(d.sizes))
			}
			for i, n := range d.sizes {
				if n != 320 {
					t.Errorf("sub-frame %d = %d bytes, want 320", i, n)
				}
			}
		})
	}
}

func TestSession_EvenSplitTieIsSpeech(t *testing.T) {
	t.Parallel()

	// 320 samples at 16 kHz split into exactly two sub-frames.
	d := &scriptedDetector{script: []bool{true, false}}
	s := newSession(d, 16000, 320, 0)

	ev, err := s.ProcessFrame(make([]byte, 320*2))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.VADSpeech {
		t.Errorf("event = %s, want SPEECH on a tie", ev.Type)
	}
}

func TestSession_Errors(t *testing.T) {
	t.Parallel()

	d := &scriptedDetector{script: []bool{true}}
	s := newSession(d, 16000, 512, 1)
	if _, err := s.ProcessFrame(make([]byte, 100)); err == nil {
		t.Error("short frame accepted")
	}

	failing := newSession(&scriptedDetector{err: errors.New("bad frame")}, 16000, 512, 1)
	if _, err := failing.ProcessFrame(make([]byte, 1024)); err == nil {
		t.Error("detector error swallowed")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.ProcessFrame(make([]byte, 1024)); err == nil {
		t.Error("ProcessFrame after Close succeeded")
	}
}

func TestSession_ResetReappliesMode(t *testing.T) {
	t.Parallel()

	d := &scriptedDetector{script: []bool{false}}
	s := newSession(d, 16000, 512, 3)
	s.Reset()
	_ = s.Close()
	s.Reset()

	if len(d.modes) != 1 || d.modes[0] != 3 {
		t.Errorf("SetMode calls = %v, want [3]", d.modes)
	}
}
