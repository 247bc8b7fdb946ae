package youtubeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
)

// newTestChecker points the Data API client at a local fake.
func newTestChecker(t *testing.T, handler http.Handler) *Checker {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewChecker("test-key",
		option.WithEndpoint(server.URL),
		option.WithHTTPClient(server.Client()))
}

func TestCheckStatusLive(t *testing.T) {
	c := newTestChecker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/search"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]interface{}{{
					"id": map[string]string{"videoId": "vid123"},
					"snippet": map[string]interface{}{
						"title": "24h charity stream",
						"thumbnails": map[string]interface{}{
							"high": map[string]string{"url": "https://i.ytimg.example/hq.jpg"},
						},
					},
				}},
			})
		case strings.HasSuffix(r.URL.Path, "/videos"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]interface{}{{
					"id":                   "vid123",
					"snippet":              map[string]interface{}{"categoryId": "20"},
					"liveStreamingDetails": map[string]interface{}{"concurrentViewers": "1523"},
				}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	sample, err := c.CheckStatus(context.Background(), "UCabcdef")
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if !sample.IsLive {
		t.Fatal("sample.IsLive = false, want true")
	}
	if sample.Title != "24h charity stream" {
		t.Errorf("Title = %q", sample.Title)
	}
	if sample.ViewerCount != 1523 {
		t.Errorf("ViewerCount = %d, want 1523", sample.ViewerCount)
	}
	if sample.ThumbnailURL != "https://i.ytimg.example/hq.jpg" {
		t.Errorf("ThumbnailURL = %q", sample.ThumbnailURL)
	}
}

func TestCheckStatusOffline(t *testing.T) {
	c := newTestChecker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !strings.HasSuffix(r.URL.Path, "/search") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
	}))

	sample, err := c.CheckStatus(context.Background(), "UCabcdef")
	if err != nil {
		t.Fatalf("CheckStatus() error = %v", err)
	}
	if sample.IsLive {
		t.Error("sample.IsLive = true, want false")
	}
}

func TestResolveHandleCached(t *testing.T) {
	channelCalls := 0
	c := newTestChecker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/channels"):
			channelCalls++
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"items": []map[string]interface{}{{"id": "UCresolved"}},
			})
		case strings.HasSuffix(r.URL.Path, "/search"):
			if got := r.URL.Query().Get("channelId"); got != "UCresolved" {
				t.Errorf("channelId = %q, want UCresolved", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"items": []interface{}{}})
		}
	}))

	for i := 0; i < 3; i++ {
		if _, err := c.CheckStatus(context.Background(), "@somecreator"); err != nil {
			t.Fatalf("CheckStatus() error = %v", err)
		}
	}
	if channelCalls != 1 {
		t.Errorf("channels endpoint called %d times, want 1", channelCalls)
	}
}
