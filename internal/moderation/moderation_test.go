package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"moments/internal/config"
	"moments/internal/moments"
)

func TestHTTPGate_Classify(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     bool
		wantOutcome moments.VerdictOutcome
		wantMessage string
	}{
		{
			name:        "accepted",
			status:      http.StatusOK,
			body:        `{"valid":true,"message":"looks lovely"}`,
			wantOutcome: moments.VerdictAccepted,
			wantMessage: "looks lovely",
		},
		{
			name:        "rejected keeps message verbatim",
			status:      http.StatusOK,
			body:        `{"valid":false,"message":"Please keep photos family friendly."}`,
			wantOutcome: moments.VerdictRejected,
			wantMessage: "Please keep photos family friendly.",
		},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `slow down`, wantErr: true},
		{name: "malformed body", status: http.StatusOK, body: `{"valid":`, wantErr: true},
		{name: "missing verdict", status: http.StatusOK, body: `{"message":"?"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			var got moments.ModerationRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				if r.Header.Get("Authorization") != "Bearer key" {
					t.Errorf("Authorization = %q, want %q", r.Header.Get("Authorization"), "Bearer key")
				}
				json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewHTTPGate(srv.URL, "key", srv.Client())
			req := moments.ModerationRequest{
				ImageURL:    "https://cdn.example.com/first-dance/abc.jpg",
				ContentType: moments.ContentTypePhoto,
				AuthorName:  "Ana",
				UserID:      "user-1",
			}

			v, err := g.Classify(context.Background(), req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Classify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls.Load() != 1 {
				t.Errorf("calls = %d, want 1 (no retry)", calls.Load())
			}
			if got != req {
				t.Errorf("gate received %+v, want %+v", got, req)
			}
			if tt.wantErr {
				return
			}
			if v.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q", v.Outcome, tt.wantOutcome)
			}
			if v.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", v.Message, tt.wantMessage)
			}
		})
	}
}

func TestHTTPGate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g := NewHTTPGate(url, "", nil)
	if _, err := g.Classify(context.Background(), moments.ModerationRequest{}); err == nil {
		t.Fatal("Classify() expected error for unreachable gate")
	}
}

func TestAllowGate(t *testing.T) {
	v, err := AllowGate{}.Classify(context.Background(), moments.ModerationRequest{})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !v.IsAccepted() {
		t.Errorf("Classify() = %+v, want accepted", v)
	}
}

func TestNewGateFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ModerationConfig
		wantErr bool
	}{
		{name: "allow", cfg: config.ModerationConfig{Type: "allow"}},
		{name: "http", cfg: config.ModerationConfig{Type: "http", Endpoint: "https://mod.example.com"}},
		{name: "http without endpoint", cfg: config.ModerationConfig{Type: "http"}, wantErr: true},
		{name: "unknown", cfg: config.ModerationConfig{Type: "magic"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGateFromConfig(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewGateFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
