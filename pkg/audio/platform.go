// Package audio defines the device-facing interfaces and PCM helpers used by
// voxdesk.
//
// The two primary abstractions are:
//
//   - [Source] opens a capture [Stream] that delivers fixed-size mono frames.
//   - [Player] plays a synthesised WAV reply and blocks until playback ends.
//
// Implementations are provided by device adapter packages (audio/portaudio) and
// by audio/mock for tests. Helpers for WAV framing, resampling and frame energy
// live alongside the interfaces so that providers share one implementation.
package audio

import (
	"context"
)

// Stream is an open capture stream.
//
// The Frames channel is closed when the stream ends: after Close, after the
// context passed to [Source.Open] is cancelled, or after a device error. Err
// reports the terminal error (nil on a clean close) and is only meaningful once
// Frames has been closed.
//
// Implementations must be safe for concurrent use of Close with Frames reads.
type Stream interface {
	// Frames returns the read-only channel of captured frames.
	Frames() <-chan AudioFrame

	// Err returns the error that terminated the stream, if any.
	Err() error

	// Close stops the device and closes Frames. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Source is the entry point for an audio input device.
type Source interface {
	// Open acquires the device and starts delivering frames. Returns an error
	// if the device cannot be opened.
	Open(ctx context.Context) (Stream, error)
}

// Player plays synthesised audio.
type Player interface {
	// Play decodes the WAV payload and blocks until it has been played in full
	// or ctx is cancelled. An empty payload is a no-op.
	Play(ctx context.Context, wav []byte) error
}
