// Package portaudio provides a microphone [audio.Source] and a speaker
// [audio.Player] backed by PortAudio (github.com/gordonklaus/portaudio).
//
// PortAudio must be installed on the host (libportaudio2 / portaudio19-dev on
// Debian, portaudio on Homebrew). The library is initialised on first use and
// reference-counted across Microphone streams and Speaker playbacks.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

// ─── Library lifetime ─────────────────────────────────────────────────────────

var (
	libMu   sync.Mutex
	libRefs int
)

func acquire() error {
	libMu.Lock()
	defer libMu.Unlock()
	if libRefs == 0 {
		if err := pa.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	libRefs++
	return nil
}

func release() {
	libMu.Lock()
	defer libMu.Unlock()
	libRefs--
	if libRefs == 0 {
		if err := pa.Terminate(); err != nil {
			slog.Warn("portaudio: terminate failed", "err", err)
		}
	}
}

// InputDevices lists the names of all devices with at least one input channel.
func InputDevices() ([]string, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	defer release()

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone captures mono 16-bit frames from an input device.
type Microphone struct {
	sampleRate int
	frameSize  int
	device     string
}

// Option is a functional option for [Microphone].
type Option func(*Microphone)

// WithSampleRate sets the capture rate in Hz. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(m *Microphone) { m.sampleRate = rate }
}

// WithFrameSize sets the number of samples per delivered frame. Default: 512.
func WithFrameSize(n int) Option {
	return func(m *Microphone) { m.frameSize = n }
}

// WithDevice selects an input device by exact name. An empty name or
// "default" uses the host's default input device.
func WithDevice(name string) Option {
	return func(m *Microphone) { m.device = name }
}

// NewMicrophone returns a Microphone. The device is not opened until
// [Microphone.Open] is called.
func NewMicrophone(opts ...Option) *Microphone {
	m := &Microphone{
		sampleRate: audio.DefaultSampleRate,
		frameSize:  audio.DefaultFrameSize,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

var _ audio.Source = (*Microphone)(nil)

// Open implements [audio.Source]. It opens a blocking-read PortAudio stream and
// starts a reader goroutine that owns the stream until Close or ctx ends.
func (m *Microphone) Open(ctx context.Context) (audio.Stream, error) {
	if err := acquire(); err != nil {
		return nil, err
	}

	buf := make([]int16, m.frameSize)
	stream, err := m.openStream(buf)
	if err != nil {
		release()
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		release()
		return nil, fmt.Errorf("portaudio: start input stream: %w", err)
	}

	s := &micStream{
		frames: make(chan audio.AudioFrame, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.readLoop(ctx, stream, buf, m.sampleRate)
	return s, nil
}

func (m *Microphone) openStream(buf []int16) (*pa.Stream, error) {
	if m.device == "" || m.device == "default" {
		stream, err := pa.OpenDefaultStream(1, 0, float64(m.sampleRate), m.frameSize, buf)
		if err != nil {
			return nil, fmt.Errorf("portaudio: open default input: %w", err)
		}
		return stream, nil
	}

	dev, err := findInputDevice(m.device)
	if err != nil {
		return nil, err
	}
	params := pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(m.sampleRate),
		FramesPerBuffer: m.frameSize,
	}
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input %q: %w", m.device, err)
	}
	return stream, nil
}

func findInputDevice(name string) (*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("portaudio: input device %q not found", name)
}

// micStream is the [audio.Stream] returned by Microphone.Open.
type micStream struct {
	frames chan audio.AudioFrame
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (s *micStream) readLoop(ctx context.Context, stream *pa.Stream, buf []int16, rate int) {
	defer close(s.done)
	defer close(s.frames)
	defer release()
	defer func() {
		if err := stream.Stop(); err != nil {
			slog.Debug("portaudio: stop input stream", "err", err)
		}
		if err := stream.Close(); err != nil {
			slog.Debug("portaudio: close input stream", "err", err)
		}
	}()

	var n int
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				slog.Debug("portaudio: input overflowed, frame dropped")
				continue
			}
			s.setErr(fmt.Errorf("portaudio: read: %w", err))
			return
		}

		frame := audio.AudioFrame{
			Data:       audio.SamplesToBytes(buf),
			SampleRate: rate,
			Channels:   1,
			Timestamp:  audio.FrameOffset(n, len(buf), rate),
		}
		n++

		select {
		case s.frames <- frame:
		case <-s.stop:
			return
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}
	}
}

func (s *micStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *micStream) Frames() <-chan audio.AudioFrame { return s.frames }

func (s *micStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close signals the reader goroutine and waits for it to release the device.
func (s *micStream) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.done
	return nil
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker plays WAV payloads on the default output device.
type Speaker struct {
	mu sync.Mutex
}

// NewSpeaker returns a Speaker.
func NewSpeaker() *Speaker { return &Speaker{} }

var _ audio.Player = (*Speaker)(nil)

const playbackBufferSize = 1024

// Play implements [audio.Player]. Playback is serialised: concurrent calls
// wait for the previous payload to finish.
func (sp *Speaker) Play(ctx context.Context, wav []byte) error {
	if len(wav) == 0 {
		return nil
	}
	decoded, err := audio.ParseWAV(wav)
	if err != nil {
		return fmt.Errorf("portaudio: %w", err)
	}
	channels := max(decoded.Channels, 1)
	samples := audio.BytesToSamples(decoded.PCM)

	sp.mu.Lock()
	defer sp.mu.Unlock()

	if err := acquire(); err != nil {
		return err
	}
	defer release()

	buf := make([]int16, playbackBufferSize*channels)
	stream, err := pa.OpenDefaultStream(0, channels, float64(decoded.SampleRate), playbackBufferSize, buf)
	if err != nil {
		return fmt.Errorf("portaudio: open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	defer stream.Stop()

	for pos := 0; pos < len(samples); pos += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(buf, samples[pos:])
		clear(buf[n:])
		if err := stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}
