package destination

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"moments/internal/moments"
)

// newTestDestination serves issuance at /issue and uploads at /upload.
func newTestDestination(t *testing.T, upload http.HandlerFunc) (*HTTPDestination, *httptest.Server, *moments.DestinationRequest) {
	t.Helper()
	var got moments.DestinationRequest

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/issue", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"uploadUrl": srv.URL + "/upload?token=abc"})
	})
	mux.HandleFunc("/upload", upload)

	d := NewHTTPDestination(srv.URL+"/issue", "secret", srv.Client())
	d.putter.retryBase = time.Millisecond
	return d, srv, &got
}

func TestHTTPDestination_RequestAndUpload(t *testing.T) {
	var body string
	var contentType string
	d, _, got := newTestDestination(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		contentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"id":"drive-file-42"}`))
	})
	ctx := context.Background()

	req := moments.DestinationRequest{FileName: "IMG_0001.HEIC", FileType: "image/heic", FolderID: "First Dance"}
	dest, err := d.Request(ctx, req)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if *got != req {
		t.Errorf("issuer received %+v, want %+v", *got, req)
	}

	ref, err := d.Upload(ctx, dest, strings.NewReader("raw-bytes"), 9, "image/heic")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if ref != "drive-file-42" {
		t.Errorf("Upload() ref = %q, want %q", ref, "drive-file-42")
	}
	if body != "raw-bytes" {
		t.Errorf("uploaded body = %q, want %q", body, "raw-bytes")
	}
	if contentType != "image/heic" {
		t.Errorf("Content-Type = %q, want %q", contentType, "image/heic")
	}
}

func TestHTTPDestination_RefFallsBackToURL(t *testing.T) {
	d, srv, _ := newTestDestination(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	ctx := context.Background()

	dest, err := d.Request(ctx, moments.DestinationRequest{FileName: "a.jpg", FileType: "image/jpeg", FolderID: "m"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	ref, err := d.Upload(ctx, dest, strings.NewReader("x"), 1, "image/jpeg")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if want := srv.URL + "/upload"; ref != want {
		t.Errorf("Upload() ref = %q, want %q", ref, want)
	}
}

func TestHTTPDestination_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	d, _, _ := newTestDestination(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id":"third-time"}`))
	})
	ctx := context.Background()

	dest, err := d.Request(ctx, moments.DestinationRequest{FileName: "a.jpg", FileType: "image/jpeg", FolderID: "m"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	ref, err := d.Upload(ctx, dest, strings.NewReader("x"), 1, "image/jpeg")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if ref != "third-time" {
		t.Errorf("Upload() ref = %q, want %q", ref, "third-time")
	}
	if calls.Load() != 3 {
		t.Errorf("upload calls = %d, want 3", calls.Load())
	}
}

func TestHTTPDestination_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	d, _, _ := newTestDestination(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	})
	ctx := context.Background()

	dest, err := d.Request(ctx, moments.DestinationRequest{FileName: "a.jpg", FileType: "image/jpeg", FolderID: "m"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if _, err := d.Upload(ctx, dest, strings.NewReader("x"), 1, "image/jpeg"); err == nil {
		t.Fatal("Upload() expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("upload calls = %d, want 3", calls.Load())
	}
}

func TestHTTPDestination_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	d, _, _ := newTestDestination(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "expired", http.StatusForbidden)
	})
	ctx := context.Background()

	dest, err := d.Request(ctx, moments.DestinationRequest{FileName: "a.jpg", FileType: "image/jpeg", FolderID: "m"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	_, err = d.Upload(ctx, dest, strings.NewReader("x"), 1, "image/jpeg")
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Errorf("Upload() error = %v, want error mentioning response body", err)
	}
	if calls.Load() != 1 {
		t.Errorf("upload calls = %d, want 1", calls.Load())
	}
}

func TestHTTPDestination_RequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusInternalServerError)
			},
		},
		{
			name: "missing upload url",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"assetRef":"x"}`))
			},
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			d := NewHTTPDestination(srv.URL, "", srv.Client())
			if _, err := d.Request(context.Background(), moments.DestinationRequest{FileName: "a", FileType: "b", FolderID: "c"}); err == nil {
				t.Error("Request() expected error")
			}
		})
	}
}

func TestHTTPDestination_SizeMismatch(t *testing.T) {
	d, _, _ := newTestDestination(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upload should not be attempted")
	})
	dest := &moments.Destination{UploadURL: "http://unused.invalid/upload"}

	if _, err := d.Upload(context.Background(), dest, strings.NewReader("abc"), 10, "image/jpeg"); err == nil {
		t.Fatal("Upload() expected size mismatch error")
	}
}
