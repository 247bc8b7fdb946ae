package kickapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/stream-herald/monitor"
)

func TestCheckStatusLive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("slug"); got != "somestreamer" {
			t.Errorf("slug = %q, want somestreamer", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{
				"slug":         "somestreamer",
				"stream_title": "late night grind",
				"category":     map[string]string{"name": "Slots"},
				"stream": map[string]interface{}{
					"is_live":      true,
					"viewer_count": 95,
					"thumbnail":    "https://cdn.example/t.jpg",
				},
			}},
		})
	}))
	defer server.Close()

	c := &Checker{HTTPClient: server.Client(), BaseURL: server.URL}
	sample, err := c.CheckStatus(context.Background(), "somestreamer")
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if !sample.IsLive || sample.ViewerCount != 95 || sample.Category != "Slots" || sample.Title != "late night grind" {
		t.Errorf("unexpected sample: %+v", sample)
	}
}

func TestCheckStatusOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{
				"slug":   "somestreamer",
				"stream": map[string]interface{}{"is_live": false},
			}},
		})
	}))
	defer server.Close()

	c := &Checker{HTTPClient: server.Client(), BaseURL: server.URL}
	sample, err := c.CheckStatus(context.Background(), "somestreamer")
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if sample.IsLive {
		t.Error("sample.IsLive = true, want false")
	}
}

func TestCheckStatusErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind monitor.PollErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, monitor.KindRateLimited},
		{"auth expired", http.StatusUnauthorized, monitor.KindAuthExpired},
		{"server error", http.StatusBadGateway, monitor.KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			c := &Checker{HTTPClient: server.Client(), BaseURL: server.URL}
			_, err := c.CheckStatus(context.Background(), "somestreamer")
			if err == nil {
				t.Fatal("CheckStatus() expected error")
			}
			var pe *monitor.PollError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *monitor.PollError", err)
			}
			if pe.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", pe.Kind, tt.wantKind)
			}
		})
	}
}

func TestCheckStatusUnknownChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]interface{}{}})
	}))
	defer server.Close()

	c := &Checker{HTTPClient: server.Client(), BaseURL: server.URL}
	_, err := c.CheckStatus(context.Background(), "ghost")
	var pe *monitor.PollError
	if !errors.As(err, &pe) || pe.Kind != monitor.KindNotFound {
		t.Fatalf("error = %v, want not_found PollError", err)
	}
}
