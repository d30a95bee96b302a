// Package webrtc provides a VAD engine backed by the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad).
//
// WebRTC VAD only accepts 10, 20 or 30 ms frames. A capture frame of any size
// is split into 10 ms sub-frames; the frame counts as speech when at least half
// of its sub-frames are voiced. Trailing samples that do not fill a sub-frame
// are ignored. The engine never reports VADUncertain.
package webrtc

import (
	"fmt"
	"slices"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/voxdesk/pkg/provider/vad"
)

var validRates = []int{8000, 16000, 32000, 48000}

// detector classifies one 10 ms sub-frame. *webrtcvad.VAD implements it.
type detector interface {
	Process(sampleRate int, frame []byte) (bool, error)
	SetMode(mode int) error
}

// Engine creates WebRTC VAD sessions.
type Engine struct{}

// New returns an Engine.
func New() *Engine { return &Engine{} }

var _ vad.Engine = (*Engine)(nil)

// NewSession implements vad.Engine. Mode is clamped to [0, 3].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	cfg = cfg.WithDefaults()
	if !slices.Contains(validRates, cfg.SampleRate) {
		return nil, fmt.Errorf("webrtc: invalid sample rate %d, must be one of %v", cfg.SampleRate, validRates)
	}
	sub := cfg.SampleRate / 100
	if cfg.FrameSize < sub {
		return nil, fmt.Errorf("webrtc: frame size %d shorter than one 10ms sub-frame (%d samples)", cfg.FrameSize, sub)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc: create detector: %w", err)
	}
	mode := min(max(cfg.Mode, 0), 3)
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("webrtc: set mode %d: %w", mode, err)
	}

	return newSession(v, cfg.SampleRate, cfg.FrameSize, mode), nil
}

func newSession(d detector, sampleRate, frameSize, mode int) *Session {
	return &Session{
		vad:        d,
		sampleRate: sampleRate,
		frameBytes: frameSize * 2,
		subBytes:   sampleRate / 100 * 2,
		mode:       mode,
	}
}

// Session is a WebRTC VAD session. The detector is not safe for concurrent
// use; ProcessFrame serialises access.
type Session struct {
	mu         sync.Mutex
	vad        detector
	sampleRate int
	frameBytes int
	subBytes   int
	mode       int
	closed     bool
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame implements vad.SessionHandle.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, fmt.Errorf("webrtc: session closed")
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("webrtc: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	var voiced, total int
	for off := 0; off+s.subBytes <= len(frame); off += s.subBytes {
		active, err := s.vad.Process(s.sampleRate, frame[off:off+s.subBytes])
		if err != nil {
			return vad.VADEvent{}, fmt.Errorf("webrtc: process: %w", err)
		}
		if active {
			voiced++
		}
		total++
	}

	if voiced*2 >= total {
		return vad.VADEvent{Type: vad.VADSpeech}, nil
	}
	return vad.VADEvent{Type: vad.VADSilence}, nil
}

// Reset re-applies the aggressiveness mode, which reinitialises the detector's
// internal state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		_ = s.vad.SetMode(s.mode)
	}
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
