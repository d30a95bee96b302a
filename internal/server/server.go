// Package server exposes the turn orchestrator over HTTP.
//
// Routes:
//
//	GET  /            service status
//	POST /process     multipart "file" WAV in, synthesised WAV out
//	GET  /turns       recent journaled turns, newest first (?limit=N)
//	GET  /turns/{id}  one journaled turn
//	GET  /healthz     liveness
//	GET  /readyz      readiness
//	GET  /metrics     Prometheus metrics
//
// Turns are serialised: the orchestrator owns a single conversation, so one
// /process request runs at a time.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/internal/health"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/internal/turn"
	"github.com/MrWong99/voxdesk/internal/turnlog"
	"github.com/MrWong99/voxdesk/pkg/audio"
)

// Response headers carrying the turn's text.
const (
	UserTextHeader     = "X-User-Text"
	ResponseTextHeader = "X-Response-Text"
)

const (
	defaultMaxUpload  = 32 << 20
	defaultTurnsLimit = 20
)

// Processor runs one audio turn. [turn.Orchestrator] implements it.
type Processor interface {
	ProcessAudio(ctx context.Context, pcm []byte) (turn.Result, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithSampleRate sets the rate uploads are resampled to before
// transcription. It must match the STT configuration. Default: 16000.
func WithSampleRate(rate int) Option {
	return func(s *Server) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithMaxUpload bounds the request body size in bytes.
func WithMaxUpload(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithHealth mounts the probe endpoints of h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records request metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithJournal serves the turn journal on /turns.
func WithJournal(j turnlog.Store) Option {
	return func(s *Server) { s.journal = j }
}

// Server is the HTTP front end of an orchestrator.
type Server struct {
	proc           Processor
	sampleRate     int
	maxUpload      int64
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	journal        turnlog.Store

	// turnMu serialises turns.
	turnMu sync.Mutex
}

// New returns a Server running turns on p.
func New(p Processor, opts ...Option) *Server {
	s := &Server{proc: p, sampleRate: audio.DefaultSampleRate, maxUpload: defaultMaxUpload}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("POST /process", s.handleProcess)
	if s.journal != nil {
		mux.HandleFunc("GET /turns", s.handleTurns)
		mux.HandleFunc("GET /turns/{id}", s.handleTurn)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics)(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	slog.Info("http server stopped", "addr", addr)
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Orchestrator is running"})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	wav, err := audio.ParseWAV(data)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid WAV: "+err.Error())
		return
	}
	log.Info("process request", "filename", hdr.Filename, "bytes", len(data), "sample_rate", wav.SampleRate, "channels", wav.Channels)

	pcm := audio.Normalize(wav.PCM, wav.SampleRate, wav.Channels, s.sampleRate)
	ctx := context.WithoutCancel(r.Context())

	s.turnMu.Lock()
	res, err := s.proc.ProcessAudio(ctx, pcm)
	s.turnMu.Unlock()

	switch {
	case errors.Is(err, turn.ErrSynthesis):
		log.Error("synthesis failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, "TTS Error: "+err.Error())
		return
	case err != nil:
		log.Error("turn failed", "err", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	if res.Skipped {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set(UserTextHeader, flatten(res.UserText))
	w.Header().Set(ResponseTextHeader, flatten(res.Reply))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Audio); err != nil {
		log.Warn("write response", "err", err)
	}
}

// turnView is the JSON form of a journaled turn.
type turnView struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	UserText   string    `json:"user_text"`
	Intent     string    `json:"intent"`
	ToolOutput string    `json:"tool_output,omitempty"`
	Reply      string    `json:"reply"`
	Refused    bool      `json:"refused"`
	DurationMS int64     `json:"duration_ms"`
}

func viewOf(r turnlog.Record) turnView {
	return turnView{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		UserText:   r.UserText,
		Intent:     r.Intent,
		ToolOutput: r.ToolOutput,
		Reply:      r.Reply,
		Refused:    r.Refused,
		DurationMS: r.Duration.Milliseconds(),
	}
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	limit := defaultTurnsLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeDetail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	recs, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]turnView, len(recs))
	for i, rec := range recs {
		out[i] = viewOf(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	rec, err := s.journal.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, turnlog.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "turn not found")
	case err != nil:
		writeDetail(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, viewOf(rec))
	}
}

// flatten collapses all whitespace runs, newlines included, to single spaces
// so the text is a valid header value.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
