package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/stt"
	"github.com/MrWong99/voxdesk/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// formCapture records the multipart fields of the last request.
type formCapture struct {
	fields map[string]string
	wav    []byte
}

// newMockServer answers POST on path with body and records the form.
func newMockServer(t *testing.T, path string, body any, got *formCapture, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != path {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got != nil {
			got.fields = map[string]string{}
			for k, v := range r.MultipartForm.Value {
				got.fields[k] = v[0]
			}
			f, _, err := r.FormFile("file")
			if err == nil {
				got.wav, _ = io.ReadAll(f)
				f.Close()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func speechPCM() []byte {
	return make([]byte, 16000*2) // one second
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_InferenceEndpoint(t *testing.T) {
	t.Parallel()

	var got formCapture
	var calls atomic.Int32
	srv := newMockServer(t, "/inference", map[string]string{"text": "  what is the weather in Marburg  "}, &got, &calls)

	p, err := whisper.New(srv.URL, whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := p.Transcribe(context.Background(), speechPCM(), stt.Config{
		SampleRate: 16000,
		Prompt:     "A voice command to a calendar assistant.",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "what is the weather in Marburg" {
		t.Errorf("Text = %q", tr.Text)
	}
	if tr.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", tr.Duration)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if got.fields["language"] != "en" || got.fields["model"] != "base.en" {
		t.Errorf("fields = %v", got.fields)
	}
	if got.fields["prompt"] != "A voice command to a calendar assistant." {
		t.Errorf("prompt = %q", got.fields["prompt"])
	}

	wav, err := audio.ParseWAV(got.wav)
	if err != nil {
		t.Fatalf("uploaded file is not a WAV: %v", err)
	}
	if wav.SampleRate != 16000 || wav.Channels != 1 || len(wav.PCM) != 32000 {
		t.Errorf("uploaded WAV = %d Hz, %d ch, %d bytes", wav.SampleRate, wav.Channels, len(wav.PCM))
	}
}

func TestTranscribe_TranscribeEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body map[string]string
		want string
	}{
		{name: "text field", body: map[string]string{"text": "list my appointments"}, want: "list my appointments"},
		{name: "transcription field", body: map[string]string{"transcription": "add a meeting"}, want: "add a meeting"},
		{name: "silence", body: map[string]string{"text": ""}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newMockServer(t, "/transcribe", tt.body, nil, nil)
			p, _ := whisper.New(srv.URL+"/", whisper.WithEndpoint("transcribe"))
			tr, err := p.Transcribe(context.Background(), speechPCM(), stt.Config{})
			if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if tr.Text != tt.want {
				t.Errorf("Text = %q, want %q", tr.Text, tt.want)
			}
		})
	}
}

func TestTranscribe_InBandError(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "/transcribe", map[string]string{"text": "", "error": "model crashed"}, nil, nil)
	p, _ := whisper.New(srv.URL, whisper.WithEndpoint("/transcribe"))
	if _, err := p.Transcribe(context.Background(), speechPCM(), stt.Config{}); err == nil {
		t.Fatal("expected error for in-band server error")
	}
}

func TestTranscribe_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), speechPCM(), stt.Config{}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newMockServer(t, "/inference", map[string]string{"text": "x"}, nil, &calls)
	p, _ := whisper.New(srv.URL)

	_, err := p.Transcribe(context.Background(), []byte{}, stt.Config{})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
	if calls.Load() != 0 {
		t.Error("server was called for empty audio")
	}
}

func TestTranscribe_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	p, _ := whisper.New(srv.URL, whisper.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	if _, err := p.Transcribe(context.Background(), speechPCM(), stt.Config{}); err == nil {
		t.Fatal("expected timeout error")
	}
}
