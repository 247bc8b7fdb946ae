package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/stream-herald/monitor"
)

func newTestClient(server *httptest.Server) *HelixClient {
	return &HelixClient{
		AppTokenSource: &TokenSource{
			ClientID:     "test-client-id",
			ClientSecret: "test-secret",
			HTTPClient: &http.Client{
				Transport: &rewriteTransport{host: server.URL},
			},
		},
		ClientID:   "test-client-id",
		HTTPClient: server.Client(),
		BaseURL:    server.URL + "/helix",
	}
}

func tokenHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": "app-token",
		"expires_in":   3600,
		"token_type":   "bearer",
	})
}

func TestHelixClient_GetUserID(t *testing.T) {
	tests := []struct {
		response    interface{}
		name        string
		login       string
		wantUserID  string
		errContains string
		statusCode  int
		wantErr     bool
	}{
		{
			name:  "successful user lookup",
			login: "testuser",
			response: map[string]interface{}{
				"data": []map[string]string{{"id": "12345", "login": "testuser"}},
			},
			statusCode: http.StatusOK,
			wantUserID: "12345",
		},
		{
			name:        "user not found",
			login:       "nonexistent",
			response:    map[string]interface{}{"data": []map[string]string{}},
			statusCode:  http.StatusOK,
			wantErr:     true,
			errContains: "user not found",
		},
		{
			name:        "empty login",
			login:       "",
			wantErr:     true,
			errContains: "login empty",
		},
		{
			name:        "server error",
			login:       "testuser",
			response:    map[string]interface{}{},
			statusCode:  http.StatusInternalServerError,
			wantErr:     true,
			errContains: "request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
					tokenHandler(w, r)
					return
				}
				if r.Header.Get("Client-Id") != "test-client-id" {
					t.Errorf("missing or wrong Client-Id header")
				}
				if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
					t.Errorf("missing Authorization header")
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			hc := newTestClient(server)
			got, err := hc.GetUserID(context.Background(), tt.login)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("GetUserID() expected error, got none")
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("GetUserID() error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetUserID() error = %v", err)
			}
			if got != tt.wantUserID {
				t.Errorf("GetUserID() = %s, want %s", got, tt.wantUserID)
			}
		})
	}
}

func TestHelixClient_GetStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			tokenHandler(w, r)
			return
		}
		if got := r.URL.Query().Get("user_login"); got != "somestreamer" {
			t.Errorf("user_login = %q, want somestreamer", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{
				"title":         "Speedrun Sunday",
				"game_name":     "Celeste",
				"viewer_count":  412,
				"thumbnail_url": "https://cdn.example/thumb-{width}x{height}.jpg",
				"started_at":    "2025-03-02T18:00:00Z",
			}},
		})
	}))
	defer server.Close()

	hc := newTestClient(server)
	stream, live, err := hc.GetStream(context.Background(), "somestreamer")
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if !live {
		t.Fatal("GetStream() live = false, want true")
	}
	if stream.Title != "Speedrun Sunday" || stream.GameName != "Celeste" || stream.ViewerCount != 412 {
		t.Errorf("unexpected stream: %+v", stream)
	}
	if strings.Contains(stream.ThumbnailURL, "{width}") {
		t.Errorf("thumbnail placeholders not expanded: %s", stream.ThumbnailURL)
	}
	if stream.StartedAt.IsZero() {
		t.Error("StartedAt not parsed")
	}
}

func TestHelixClient_GetStreamOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			tokenHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]interface{}{}})
	}))
	defer server.Close()

	hc := newTestClient(server)
	_, live, err := hc.GetStream(context.Background(), "somestreamer")
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if live {
		t.Error("GetStream() live = true for empty data, want false")
	}
}

func TestChecker_CheckStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/oauth2/token"):
			tokenHandler(w, r)
		case strings.HasSuffix(r.URL.Path, "/users"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]string{{"id": "777", "login": "somestreamer"}},
			})
		case strings.HasSuffix(r.URL.Path, "/streams"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{
					"title":        "hi",
					"game_name":    "IRL",
					"viewer_count": 3,
				}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := NewChecker("test-client-id", "test-secret")
	c.Client = newTestClient(server)

	sample, err := c.CheckStatus(context.Background(), "somestreamer")
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if !sample.IsLive || sample.ViewerCount != 3 || sample.Category != "IRL" {
		t.Errorf("unexpected sample: %+v", sample)
	}
	if sample.SampledAt.IsZero() {
		t.Error("SampledAt not set")
	}
}

func TestChecker_UnknownUserIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/oauth2/token") {
			tokenHandler(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}})
	}))
	defer server.Close()

	c := NewChecker("test-client-id", "test-secret")
	c.Client = newTestClient(server)

	_, err := c.CheckStatus(context.Background(), "ghost")
	if err == nil {
		t.Fatal("CheckStatus() expected error for unknown user")
	}
	var pe *monitor.PollError
	if !errors.As(err, &pe) {
		t.Fatalf("error %T is not *monitor.PollError", err)
	}
	if pe.Kind != monitor.KindNotFound {
		t.Errorf("kind = %s, want not_found", pe.Kind)
	}
}

// rewriteTransport rewrites all requests to use the test server. The token
// endpoint host is hardcoded in TokenSource, so its test client needs this.
type rewriteTransport struct {
	Transport http.RoundTripper
	host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	if t.host != "" {
		host := t.host
		host = strings.TrimPrefix(host, "http://")
		host = strings.TrimPrefix(host, "https://")
		req.URL.Host = host
	}
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return transport.RoundTrip(req)
}
