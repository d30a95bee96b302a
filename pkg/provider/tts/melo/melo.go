// Package melo provides a TTS provider for a small MeloTTS HTTP service.
//
// The service exposes a single endpoint:
//
//	POST /synthesize {"text": "..."}  ->  audio/wav
//
// Speaker and speed are forwarded when set and ignored by servers that do not
// understand them.
package melo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/tts"
	"github.com/MrWong99/voxdesk/pkg/types"
)

const (
	synthesizeEndpoint = "/synthesize"
	defaultTimeout     = 60 * time.Second
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider against a MeloTTS service.
type Provider struct {
	serverURL  string
	httpClient *http.Client
}

// New returns a Provider targeting serverURL (e.g., "http://localhost:8003").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("melo: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type synthesizeRequest struct {
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
}

// Synthesize implements tts.Provider. The response body must be a PCM16 WAV.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	body, err := json.Marshal(synthesizeRequest{Text: text, Speaker: voice.ID, Speed: voice.SpeedFactor})
	if err != nil {
		return nil, fmt.Errorf("melo: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+synthesizeEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("melo: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("melo: POST %s: %w", synthesizeEndpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("melo: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("melo: POST %s returned status %d: %s", synthesizeEndpoint, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if _, err := audio.ParseWAV(data); err != nil {
		return nil, fmt.Errorf("melo: %w", err)
	}
	return data, nil
}
