// Package energy provides a VAD engine that gates frames on a fixed energy
// threshold. Energy is the L2 norm of the raw int16 samples multiplied by 10.
package energy

import (
	"fmt"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/vad"
)

// Engine creates energy-gated sessions. The zero value is ready to use.
type Engine struct{}

// New returns an Engine.
func New() *Engine { return &Engine{} }

var _ vad.Engine = (*Engine)(nil)

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	cfg = cfg.WithDefaults()
	if cfg.FrameSize < 0 {
		return nil, fmt.Errorf("energy: frame size must be positive, got %d", cfg.FrameSize)
	}
	if cfg.EnergyThreshold < 0 {
		return nil, fmt.Errorf("energy: threshold must not be negative, got %v", cfg.EnergyThreshold)
	}
	return &Session{threshold: cfg.EnergyThreshold, frameBytes: cfg.FrameSize * 2}, nil
}

// Session classifies frames against a fixed threshold. It keeps no state
// between frames, so Reset is a no-op.
type Session struct {
	threshold  float64
	frameBytes int
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame implements vad.SessionHandle.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}
	e := audio.Energy(frame)
	ev := vad.VADEvent{Energy: e}
	switch {
	case e > s.threshold:
		ev.Type = vad.VADSpeech
	case e < s.threshold:
		ev.Type = vad.VADSilence
	default:
		ev.Type = vad.VADUncertain
	}
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {}

// Close implements vad.SessionHandle.
func (s *Session) Close() error { return nil }
