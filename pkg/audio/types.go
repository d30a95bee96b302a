package audio

import "time"

// Capture defaults shared by the microphone, the VAD and the STT adapters.
const (
	// DefaultSampleRate is the capture rate expected by every STT backend.
	DefaultSampleRate = 16000

	// DefaultFrameSize is the number of samples per captured frame.
	DefaultFrameSize = 512
)

// AudioFrame represents a single frame of audio data flowing through the pipeline.
// Frames are produced by a [Stream], classified by the capture gate and then
// concatenated into an utterance.
type AudioFrame struct {
	// Data is little-endian signed 16-bit PCM.
	Data []byte

	// SampleRate in Hz (16000 for microphone capture).
	SampleRate int

	// Channels: 1 for mono. Capture is always mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// FrameOffset returns the stream offset of the n-th frame of frameSize samples.
func FrameOffset(n, frameSize, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(frameSize) * int64(time.Second) / int64(sampleRate))
}

// Samples returns the number of int16 samples per channel held by the frame.
func (f AudioFrame) Samples() int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return len(f.Data) / (2 * ch)
}
