package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/tts"
	"github.com/MrWong99/voxdesk/pkg/types"
)

func TestStreamURL(t *testing.T) {
	t.Parallel()

	p, err := New("key", WithModel("eleven_multilingual_v2"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := p.streamURL("voice-abc123")
	want := "wss://api.elevenlabs.io/v1/text-to-speech/voice-abc123/stream-input?model_id=eleven_multilingual_v2&output_format=pcm_16000"
	if got != want {
		t.Errorf("streamURL =\n  %s\nwant\n  %s", got, want)
	}
}

func TestSampleRateOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format  string
		want    int
		wantErr bool
	}{
		{format: "pcm_16000", want: 16000},
		{format: "pcm_44100", want: 44100},
		{format: "mp3_44100_128", wantErr: true},
		{format: "pcm_fast", wantErr: true},
	}
	for _, tt := range tests {
		got, err := sampleRateOf(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.format, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: rate = %d, want %d", tt.format, got, tt.want)
		}
	}
}

func TestParseAudioMessage(t *testing.T) {
	t.Parallel()

	enc := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})

	pcm, final, err := parseAudioMessage([]byte(`{"audio":"` + enc + `","isFinal":false}`))
	if err != nil || final || len(pcm) != 4 {
		t.Errorf("audio chunk: pcm=%v final=%v err=%v", pcm, final, err)
	}

	_, final, err = parseAudioMessage([]byte(`{"isFinal":true}`))
	if err != nil || !final {
		t.Errorf("final marker: final=%v err=%v", final, err)
	}

	if _, _, err := parseAudioMessage([]byte(`{"error":"quota_exceeded","message":"no credits"}`)); err == nil {
		t.Error("expected error for error message")
	}

	if pcm, _, err := parseAudioMessage([]byte("not json")); err != nil || pcm != nil {
		t.Errorf("garbage: pcm=%v err=%v", pcm, err)
	}
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	t.Parallel()

	received := make(chan []textMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/text-to-speech/rachel/stream-input") {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		var msgs []textMessage
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var m textMessage
			_ = json.Unmarshal(data, &m)
			msgs = append(msgs, m)
			if m.Text == "" {
				break
			}
		}
		received <- msgs

		for _, chunk := range [][]byte{{1, 0, 2, 0}, {3, 0}} {
			b, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(chunk)})
			_ = conn.Write(r.Context(), websocket.MessageText, b)
		}
		b, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = conn.Write(r.Context(), websocket.MessageText, b)
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)

	p, err := New("secret", WithBaseURL("ws"+strings.TrimPrefix(srv.URL, "http")), WithVoice("rachel"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Synthesize(context.Background(), "You have no appointments scheduled.", types.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	w, err := audio.ParseWAV(out)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if w.SampleRate != 16000 || len(w.PCM) != 6 {
		t.Errorf("wav rate=%d pcm=%d bytes, want 16000 and 6", w.SampleRate, len(w.PCM))
	}

	msgs := <-received
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].XiAPIKey != "secret" || msgs[0].Text != " " {
		t.Errorf("first message = %+v", msgs[0])
	}
	if !strings.HasPrefix(msgs[1].Text, "You have no appointments") {
		t.Errorf("text message = %q", msgs[1].Text)
	}
}

func TestSynthesize_Validation(t *testing.T) {
	t.Parallel()

	p, _ := New("key")
	if _, err := p.Synthesize(context.Background(), "", types.VoiceProfile{ID: "v"}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("empty text err = %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", types.VoiceProfile{}); err == nil {
		t.Error("expected error without voice ID")
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("key", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM format")
	}
}
