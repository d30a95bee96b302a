package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const bitsPerSample = 16

// WAV is a decoded PCM16 RIFF payload.
type WAV struct {
	// PCM is the raw little-endian sample data of the "data" chunk.
	PCM []byte

	SampleRate int
	Channels   int
}

// EncodeWAV wraps raw 16-bit PCM samples in a minimal 44-byte RIFF/WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// ParseWAV walks the RIFF chunks of a WAV payload and returns its PCM data.
// Only 16-bit PCM is accepted; chunks other than "fmt " and "data" are skipped.
// A data chunk whose declared size exceeds the payload (as emitted by some
// streaming servers) is truncated to the bytes actually present.
func ParseWAV(wav []byte) (WAV, error) {
	if len(wav) < 12 {
		return WAV{}, errors.New("audio: WAV too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return WAV{}, errors.New("audio: WAV missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return WAV{}, errors.New("audio: WAV missing WAVE identifier")
	}

	var out WAV
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || offset+8+16 > len(wav) {
				return WAV{}, errors.New("audio: WAV fmt chunk truncated")
			}
			fmtData := wav[offset+8:]
			if format := binary.LittleEndian.Uint16(fmtData[0:2]); format != 1 {
				return WAV{}, fmt.Errorf("audio: unsupported WAV format tag %d (want PCM)", format)
			}
			out.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			out.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			if bits := binary.LittleEndian.Uint16(fmtData[14:16]); bits != bitsPerSample {
				return WAV{}, fmt.Errorf("audio: unsupported WAV bit depth %d (want 16)", bits)
			}
			foundFmt = true
		case "data":
			if !foundFmt {
				return WAV{}, errors.New("audio: WAV data chunk before fmt chunk")
			}
			start := offset + 8
			end := min(start+chunkSize, len(wav))
			out.PCM = wav[start:end]
			return out, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAV{}, errors.New("audio: WAV missing data chunk")
}
