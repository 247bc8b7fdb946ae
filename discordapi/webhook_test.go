package discordapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/stream-herald/announce"
)

func TestBuildEmbed(t *testing.T) {
	live := buildEmbed(announce.PostMeta{
		AccountName:  "SomeStreamer",
		AccountURL:   "https://twitch.tv/somestreamer",
		Title:        "speedrun",
		Category:     "IRL",
		ViewerCount:  42,
		ThumbnailURL: "https://example.com/thumb.jpg",
		Platform:     "twitch",
		StartedAt:    time.Now().UTC(),
	})
	if live.Color != colorLive {
		t.Errorf("live color = %#x, want %#x", live.Color, colorLive)
	}
	if live.Image == nil {
		t.Error("live embed missing thumbnail image")
	}
	var viewersField *embedField
	for i := range live.Fields {
		if live.Fields[i].Name == "Viewers" {
			viewersField = &live.Fields[i]
		}
	}
	if viewersField == nil || viewersField.Value != "42" {
		t.Errorf("viewers field = %+v", live.Fields)
	}

	ended := buildEmbed(announce.PostMeta{
		Title:       "speedrun",
		ViewerCount: 87,
		Duration:    95 * time.Minute,
		IsFinal:     true,
	})
	if ended.Color != colorEnded {
		t.Errorf("ended color = %#x, want %#x", ended.Color, colorEnded)
	}
	if ended.Image != nil {
		t.Error("ended embed kept the live thumbnail")
	}
	var peak, duration bool
	for _, f := range ended.Fields {
		if f.Name == "Peak viewers" && f.Value == "87" {
			peak = true
		}
		if f.Name == "Duration" && f.Value == "1h 35m" {
			duration = true
		}
	}
	if !peak {
		t.Errorf("peak viewers field missing: %+v", ended.Fields)
	}
	if !duration {
		t.Errorf("duration field missing: %+v", ended.Fields)
	}
}

func TestCreatePost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Query().Get("wait") != "true" {
			t.Error("missing wait=true")
		}
		var payload webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.Content != "going live" {
			t.Errorf("content = %q", payload.Content)
		}
		if len(payload.Embeds) != 1 {
			t.Errorf("embeds = %d", len(payload.Embeds))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"111222333"}`))
	}))
	defer srv.Close()

	a := New(srv.URL)
	id, err := a.CreatePost(context.Background(), "going live", announce.PostMeta{Title: "t"})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if id != "111222333" {
		t.Errorf("id = %q", id)
	}
}

func TestUpdateAndClosePatchMessage(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := New(srv.URL)
	if err := a.UpdatePost(context.Background(), "789", "still live", announce.PostMeta{}); err != nil {
		t.Fatalf("UpdatePost: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/messages/789" {
		t.Errorf("update hit %s %s", gotMethod, gotPath)
	}

	if err := a.ClosePost(context.Background(), "789", "ended", announce.PostMeta{IsFinal: true}); err != nil {
		t.Fatalf("ClosePost: %v", err)
	}
	if gotPath != "/messages/789" {
		t.Errorf("close hit %s", gotPath)
	}
}

func TestCreateReplyUnsupported(t *testing.T) {
	a := New("https://discord.example/webhook")
	_, err := a.CreateReply(context.Background(), "1", "body", announce.PostMeta{})
	var pe *announce.PostError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want PostError", err)
	}
	if pe.Adapter != "discord" || pe.Op != "reply" {
		t.Errorf("PostError = %+v", pe)
	}
}

// 4xx responses other than 429 must fail immediately, without retries.
func TestClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := New(srv.URL)
	_, err := a.CreatePost(context.Background(), "body", announce.PostMeta{})
	if err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 400)", n)
	}
	var pe *announce.PostError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want PostError", err)
	}
	if pe.Status != http.StatusBadRequest {
		t.Errorf("status = %d", pe.Status)
	}
	if pe.IsRetryable() {
		t.Error("400 reported retryable")
	}
}
