package capture

import (
	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/vad"
)

// state is the gate's turn-taking state.
type state int

const (
	stateIdle state = iota
	stateSpeaking
)

func (s state) String() string {
	if s == stateSpeaking {
		return "SPEAKING"
	}
	return "IDLE"
}

// gate is the IDLE/SPEAKING state machine for one capture cycle. It is not
// safe for concurrent use; the capture goroutine owns it exclusively.
type gate struct {
	sess vad.SessionHandle

	padCap       int
	silenceLimit int

	state   state
	silent  int
	ring    []audio.AudioFrame
	utter   []audio.AudioFrame
	padUsed int
}

func newGate(sess vad.SessionHandle, padFrames, silenceFrames int) *gate {
	return &gate{
		sess:         sess,
		padCap:       padFrames,
		silenceLimit: silenceFrames,
		ring:         make([]audio.AudioFrame, 0, max(padFrames, 1)+1),
	}
}

// push feeds one frame through the state machine and reports whether the
// utterance is complete.
func (g *gate) push(f audio.AudioFrame) (bool, error) {
	ev, err := g.sess.ProcessFrame(f.Data)
	if err != nil {
		return false, err
	}

	switch g.state {
	case stateIdle:
		g.pushRing(f)
		if ev.Type == vad.VADSpeech {
			g.start()
		}

	case stateSpeaking:
		g.utter = append(g.utter, f)
		switch ev.Type {
		case vad.VADSilence:
			g.silent++
			if g.silent > g.silenceLimit {
				return true, nil
			}
		default:
			g.silent = 0
		}
	}
	return false, nil
}

// start moves to SPEAKING and seeds the utterance with the ring contents,
// oldest first. The ring already ends with the triggering frame.
func (g *gate) start() {
	g.state = stateSpeaking
	g.utter = make([]audio.AudioFrame, 0, len(g.ring)+g.silenceLimit+1)
	g.utter = append(g.utter, g.ring...)
	g.padUsed = len(g.ring) - 1
	g.ring = g.ring[:0]
	g.silent = 0
}

// pushRing appends f to the pre-speech ring, evicting the oldest frame when
// the ring is over capacity. The newest frame is always kept.
func (g *gate) pushRing(f audio.AudioFrame) {
	g.ring = append(g.ring, f)
	if over := len(g.ring) - max(g.padCap, 1); over > 0 {
		copy(g.ring, g.ring[over:])
		g.ring = g.ring[:len(g.ring)-over]
	}
}

// speaking reports whether the gate has seen speech onset.
func (g *gate) speaking() bool { return g.state == stateSpeaking }
