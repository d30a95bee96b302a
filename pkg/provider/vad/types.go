package vad

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Energy is the frame energy (L2 norm × 10) as measured by the engine. Zero
	// for engines that do not compute it.
	Energy float64
}

// VADEventType enumerates per-frame classifications.
type VADEventType int

const (
	// VADSilence indicates the frame is below the speech gate.
	VADSilence VADEventType = iota

	// VADSpeech indicates the frame is above the speech gate.
	VADSpeech

	// VADUncertain indicates the frame sits exactly on the gate. It neither
	// starts speech nor counts as a silent frame.
	VADUncertain
)

// String returns the human-readable name of the event type.
func (t VADEventType) String() string {
	switch t {
	case VADSilence:
		return "SILENCE"
	case VADSpeech:
		return "SPEECH"
	case VADUncertain:
		return "UNCERTAIN"
	default:
		return "UNKNOWN"
	}
}
