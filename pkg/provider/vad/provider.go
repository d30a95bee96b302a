// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (a fixed energy gate or
// WebRTC's GMM detector) and surfaces it as a stateful, per-stream session.
// The session only classifies frames; turn-taking (pre-roll, silence
// counting, finalisation) is the caller's job.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a detection
// result, making it suitable for the capture loop that gates STT input.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

// Default session parameters, matching the capture defaults of the assistant.
const (
	DefaultSampleRate      = 16000
	DefaultFrameSize       = 512
	DefaultEnergyThreshold = 300
)

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame.
	SampleRate int

	// FrameSize is the number of int16 samples per frame. ProcessFrame returns an
	// error if the supplied frame does not match this size.
	FrameSize int

	// EnergyThreshold is the fixed gate used by energy-based engines: a frame
	// whose energy (L2 norm × 10) exceeds it is speech, one below it is silence.
	// It is not adapted over time.
	EnergyThreshold float64

	// Mode is the aggressiveness of model-based engines (0–3 for WebRTC,
	// higher filters more non-speech). Ignored by the energy engine.
	Mode int
}

// WithDefaults returns cfg with zero fields replaced by the package defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.EnergyThreshold == 0 {
		cfg.EnergyThreshold = DefaultEnergyThreshold
	}
	return cfg
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine.
type SessionHandle interface {
	// ProcessFrame classifies a single audio frame. The frame must be raw
	// little-endian PCM at the SampleRate and FrameSize configured when the
	// session was created.
	//
	// This method is called synchronously in the capture loop; it must not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid (e.g., unsupported sample
	// rate or frame size).
	NewSession(cfg Config) (SessionHandle, error)
}
