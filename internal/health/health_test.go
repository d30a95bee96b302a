package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/voxdesk/internal/health"
	"github.com/MrWong99/voxdesk/internal/turnlog"
)

type body struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func probe(t *testing.T, h *health.Handler, path string, ctx context.Context) (int, body) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	req := httptest.NewRequest(http.MethodGet, path, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var b body
	if err := json.NewDecoder(rec.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, b
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := health.New(health.Configured("llm", false))
	code, b := probe(t, h, "/healthz", context.Background())
	if code != http.StatusOK || b.Status != "ok" {
		t.Errorf("healthz = %d %+v", code, b)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []health.Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []health.Checker{
				health.Configured("llm", true),
				health.Configured("tts", true),
				health.Ping("turnlog", turnlog.NewMemory(1)),
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"llm": "ok", "tts": "ok", "turnlog": "ok"},
		},
		{
			name: "one fails",
			checkers: []health.Checker{
				health.Configured("llm", true),
				health.Ping("turnlog", failingPinger{}),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"llm": "ok", "turnlog": "fail: connection refused"},
		},
		{
			name: "unconfigured",
			checkers: []health.Checker{
				health.Configured("tts", false),
				health.Ping("turnlog", nil),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"tts": "fail: not configured", "turnlog": "fail: not configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, b := probe(t, health.New(tt.checkers...), "/readyz", context.Background())
			if code != tt.wantCode || b.Status != tt.wantStatus {
				t.Errorf("readyz = %d %q, want %d %q", code, b.Status, tt.wantCode, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if b.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, b.Checks[name], want)
				}
			}
		})
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()

	h := health.New(health.Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, b := probe(t, h, "/readyz", ctx)
	if code != http.StatusServiceUnavailable || b.Checks["slow"] != "fail: context canceled" {
		t.Errorf("readyz = %d %+v", code, b)
	}
}
