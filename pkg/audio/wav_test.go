package audio_test

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/MrWong99/voxdesk/pkg/audio"
)

func TestEncodeParseWAV(t *testing.T) {
	t.Parallel()

	pcm := audio.SamplesToBytes([]int16{1, -1, 300, -300})
	wav := audio.EncodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("WAV length = %d, want %d", len(wav), 44+len(pcm))
	}

	got, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if got.SampleRate != 16000 || got.Channels != 1 {
		t.Errorf("format = %dHz/%dch, want 16000Hz/1ch", got.SampleRate, got.Channels)
	}
	if !bytes.Equal(got.PCM, pcm) {
		t.Errorf("PCM mismatch: got %v, want %v", got.PCM, pcm)
	}
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	pcm := audio.SamplesToBytes([]int16{7, 8})
	base := audio.EncodeWAV(pcm, 22050, 1)

	// Splice a LIST chunk with odd size between fmt and data.
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 3)
	list = append(list, 'a', 'b', 'c', 0)

	var wav []byte
	wav = append(wav, base[:36]...)
	wav = append(wav, list...)
	wav = append(wav, base[36:]...)

	got, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if got.SampleRate != 22050 {
		t.Errorf("sample rate = %d, want 22050", got.SampleRate)
	}
	if !bytes.Equal(got.PCM, pcm) {
		t.Errorf("PCM mismatch: got %v", got.PCM)
	}
}

func TestParseWAV_TruncatedDataChunk(t *testing.T) {
	t.Parallel()

	wav := audio.EncodeWAV(audio.SamplesToBytes([]int16{1, 2, 3, 4}), 16000, 1)
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)

	got, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if len(got.PCM) != 8 {
		t.Errorf("PCM length = %d, want 8", len(got.PCM))
	}
}

func TestParseWAV_Errors(t *testing.T) {
	t.Parallel()

	valid := audio.EncodeWAV([]byte{0, 0}, 16000, 1)

	eightBit := bytes.Clone(valid)
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)

	float := bytes.Clone(valid)
	binary.LittleEndian.PutUint16(float[20:22], 3)

	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{name: "too short", data: []byte("RIFF"), wantErr: "too short"},
		{name: "no riff", data: append([]byte("RIFX"), valid[4:]...), wantErr: "RIFF"},
		{name: "no wave", data: append(append([]byte{}, valid[:8]...), append([]byte("AVI "), valid[12:]...)...), wantErr: "WAVE"},
		{name: "8 bit", data: eightBit, wantErr: "bit depth"},
		{name: "float", data: float, wantErr: "format tag"},
		{name: "no data", data: valid[:36], wantErr: "missing data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := audio.ParseWAV(tt.data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}
