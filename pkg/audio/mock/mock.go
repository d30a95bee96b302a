// Package mock provides in-memory mock implementations of the [audio.Source],
// [audio.Stream] and [audio.Player] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	src := &mock.Source{Frames: frames, StreamErr: io.ErrUnexpectedEOF}
//	stream, _ := src.Open(ctx)
//	for f := range stream.Frames() { … }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. Each Open call returns a
// fresh [Stream] that replays Frames and then ends with StreamErr.
type Source struct {
	mu sync.Mutex

	// Frames is the scripted frame sequence delivered by every opened stream.
	Frames []audio.AudioFrame

	// StreamErr is reported by Stream.Err after all frames were delivered.
	StreamErr error

	// OpenErr, if non-nil, is returned by Open instead of a stream.
	OpenErr error

	// HoldOpen keeps the stream open after the scripted frames until Close or
	// context cancellation, mimicking a live microphone.
	HoldOpen bool

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// Streams holds every stream handed out by Open, in order.
	Streams []*Stream
}

// Open implements [audio.Source].
func (s *Source) Open(ctx context.Context) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountOpen++
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	st := newStream(ctx, s.Frames, s.StreamErr, s.HoldOpen)
	s.Streams = append(s.Streams, st)
	return st, nil
}

var _ audio.Source = (*Source)(nil)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock [audio.Stream] fed from a scripted frame slice.
type Stream struct {
	frames chan audio.AudioFrame
	stop   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

func newStream(ctx context.Context, frames []audio.AudioFrame, endErr error, hold bool) *Stream {
	st := &Stream{
		frames: make(chan audio.AudioFrame),
		stop:   make(chan struct{}),
	}
	go func() {
		defer close(st.frames)
		for _, f := range frames {
			select {
			case st.frames <- f:
			case <-st.stop:
				return
			case <-ctx.Done():
				st.setErr(ctx.Err())
				return
			}
		}
		if hold {
			select {
			case <-st.stop:
			case <-ctx.Done():
				st.setErr(ctx.Err())
			}
			return
		}
		st.setErr(endErr)
	}()
	return st
}

func (st *Stream) setErr(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.err = err
}

// Frames implements [audio.Stream].
func (st *Stream) Frames() <-chan audio.AudioFrame { return st.frames }

// Err implements [audio.Stream].
func (st *Stream) Err() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Close implements [audio.Stream].
func (st *Stream) Close() error {
	st.mu.Lock()
	st.CallCountClose++
	st.mu.Unlock()
	st.once.Do(func() { close(st.stop) })
	return nil
}

// Closes returns the number of Close calls. Thread-safe.
func (st *Stream) Closes() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.CallCountClose
}

var _ audio.Stream = (*Stream)(nil)

// ─── Player ───────────────────────────────────────────────────────────────────

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by every Play call.
	PlayErr error

	// Played records a copy of every payload passed to Play, in order.
	Played [][]byte
}

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, wav []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(wav))
	copy(cp, wav)
	p.Played = append(p.Played, cp)
	return p.PlayErr
}

// Plays returns a snapshot of the recorded payloads. Thread-safe.
func (p *Player) Plays() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.Played))
	copy(out, p.Played)
	return out
}

var _ audio.Player = (*Player)(nil)
