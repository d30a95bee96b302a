// Package capture turns a live frame stream into one finalised utterance per
// turn.
//
// A [Recorder] opens the audio source, classifies every frame through a VAD
// session and runs a two-state machine:
//
//   - IDLE: every frame goes into a bounded pre-speech ring (oldest evicted).
//     A speech frame moves the gate to SPEAKING and seeds the utterance with
//     the ring contents, which end with the triggering frame.
//   - SPEAKING: every frame is appended. Silent frames increment a counter
//     that any non-silent frame resets; once the counter exceeds the silence
//     limit the utterance is final.
//
// The frame reader runs on its own goroutine and hands the result to the
// waiting caller through a channel that is closed exactly once per cycle.
// Device and stream failures never propagate: they are logged and yield an
// empty utterance so the turn loop can simply listen again.
package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/vad"
)

// Config holds the capture parameters.
type Config struct {
	// SampleRate of the incoming frames in Hz. Default: 16000.
	SampleRate int

	// FrameSize is the number of samples per frame. Default: 512.
	FrameSize int

	// EnergyThreshold is the fixed speech gate passed to the VAD session.
	// Default: 300.
	EnergyThreshold float64

	// Silence is how long the speaker must stay quiet before the utterance is
	// finalised. Default: 1.5s.
	Silence time.Duration

	// PrePad is how much audio before speech onset is kept. Default: 0.8s.
	PrePad time.Duration

	// VADMode is forwarded to model-based VAD engines.
	VADMode int
}

// Defaults for [Config].
const (
	DefaultSilence = 1500 * time.Millisecond
	DefaultPrePad  = 800 * time.Millisecond
)

// WithDefaults returns cfg with zero fields replaced by the defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = audio.DefaultFrameSize
	}
	if cfg.EnergyThreshold == 0 {
		cfg.EnergyThreshold = vad.DefaultEnergyThreshold
	}
	if cfg.Silence == 0 {
		cfg.Silence = DefaultSilence
	}
	if cfg.PrePad == 0 {
		cfg.PrePad = DefaultPrePad
	}
	return cfg
}

// SilenceFrames is int(silence_seconds * rate / frame_size). With the defaults
// this is 46; the utterance ends on the 47th consecutive silent frame.
func (cfg Config) SilenceFrames() int {
	return framesFor(cfg.Silence, cfg.SampleRate, cfg.FrameSize)
}

// PadFrames is the capacity of the pre-speech ring. With the defaults this
// is 25.
func (cfg Config) PadFrames() int {
	return framesFor(cfg.PrePad, cfg.SampleRate, cfg.FrameSize)
}

func framesFor(d time.Duration, rate, frameSize int) int {
	if frameSize <= 0 {
		return 0
	}
	return int(d.Seconds() * float64(rate) / float64(frameSize))
}

// Utterance is one finalised span of captured speech.
type Utterance struct {
	// PCM is the concatenated little-endian int16 mono audio. Never nil; empty
	// when nothing was captured.
	PCM []byte

	// SampleRate of PCM in Hz.
	SampleRate int

	// Frames is the number of frames in the utterance.
	Frames int

	// PadFrames is how many frames preceded the speech onset.
	PadFrames int
}

// Empty reports whether the utterance holds no audio.
func (u Utterance) Empty() bool { return len(u.PCM) == 0 }

// Duration is the playback length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(len(u.PCM)/2) * int64(time.Second) / int64(u.SampleRate))
}

// Recorder captures utterances from an [audio.Source].
type Recorder struct {
	src    audio.Source
	engine vad.Engine
	cfg    Config
}

// New returns a Recorder. cfg zero fields are defaulted.
func New(src audio.Source, engine vad.Engine, cfg Config) *Recorder {
	return &Recorder{src: src, engine: engine, cfg: cfg.WithDefaults()}
}

// Config returns the effective configuration.
func (r *Recorder) Config() Config { return r.cfg }

// Record blocks until one utterance has been captured, the stream ends, or
// ctx is cancelled. It never returns a nil PCM buffer and never fails: on any
// error the result is empty and the cause is logged. Callers distinguish user
// cancellation by checking ctx.Err().
//
// A stream that ends cleanly mid-speech yields the audio captured so far; an
// errored stream always yields an empty utterance.
func (r *Recorder) Record(ctx context.Context) Utterance {
	empty := Utterance{PCM: []byte{}, SampleRate: r.cfg.SampleRate}

	sess, err := r.engine.NewSession(vad.Config{
		SampleRate:      r.cfg.SampleRate,
		FrameSize:       r.cfg.FrameSize,
		EnergyThreshold: r.cfg.EnergyThreshold,
		Mode:            r.cfg.VADMode,
	})
	if err != nil {
		slog.Error("capture: create vad session", "err", err)
		return empty
	}
	defer sess.Close()

	stream, err := r.src.Open(ctx)
	if err != nil {
		slog.Error("capture: open audio source", "err", err)
		return empty
	}
	defer stream.Close()

	g := newGate(sess, r.cfg.PadFrames(), r.cfg.SilenceFrames())
	done := make(chan struct{})
	var result Utterance

	go func() {
		defer close(done)
		result = r.consume(stream, g)
	}()

	select {
	case <-done:
		return result
	case <-ctx.Done():
		// Stop the device and wait for the reader so the buffers are not
		// touched after return.
		stream.Close()
		<-done
		slog.Debug("capture: cancelled while waiting for speech")
		return empty
	}
}

// consume drains the stream through the gate. It runs on the reader goroutine.
func (r *Recorder) consume(stream audio.Stream, g *gate) Utterance {
	empty := Utterance{PCM: []byte{}, SampleRate: r.cfg.SampleRate}

	for f := range stream.Frames() {
		finished, err := g.push(f)
		if err != nil {
			slog.Error("capture: classify frame", "err", err)
			return empty
		}
		if finished {
			return r.utterance(g)
		}
		if g.speaking() && len(g.utter) == g.padUsed+1 {
			slog.Info("capture: speech detected")
		}
	}

	if err := stream.Err(); err != nil {
		slog.Error("capture: audio stream failed", "err", err)
		return empty
	}
	if !g.speaking() {
		slog.Info("capture: stream ended before speech")
		return empty
	}
	return r.utterance(g)
}

func (r *Recorder) utterance(g *gate) Utterance {
	return Utterance{
		PCM:        audio.Concat(g.utter),
		SampleRate: r.cfg.SampleRate,
		Frames:     len(g.utter),
		PadFrames:  g.padUsed,
	}
}
