// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for user id resolution and live stream status, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/onnwee/stream-herald/monitor"
)

const defaultHelixBase = "https://api.twitch.tv/helix"

// HelixClient provides the minimal methods needed for live detection.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	BaseURL        string // defaults to the public Helix host
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return strings.TrimSuffix(hc.BaseURL, "/")
	}
	return defaultHelixBase
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return "", err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+"/users", nil)
	q := req.URL.Query()
	q.Set("login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("helix users request failed: %s", resp.Status)
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// Stream is one entry of the Helix streams response. An empty data array means
// the channel is offline.
type Stream struct {
	Title        string
	GameName     string
	ViewerCount  int
	ThumbnailURL string
	StartedAt    time.Time
}

// GetStream returns the current stream for a login, or ok=false when offline.
func (hc *HelixClient) GetStream(ctx context.Context, login string) (Stream, bool, error) {
	if login == "" {
		return Stream{}, false, fmt.Errorf("login empty")
	}
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return Stream{}, false, err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, hc.base()+"/streams", nil)
	q := req.URL.Query()
	q.Set("user_login", login)
	q.Set("first", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return Stream{}, false, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return Stream{}, false, fmt.Errorf("helix streams request failed: %s", resp.Status)
	}
	var body struct {
		Data []struct {
			Title        string `json:"title"`
			GameName     string `json:"game_name"`
			ViewerCount  int    `json:"viewer_count"`
			ThumbnailURL string `json:"thumbnail_url"`
			StartedAt    string `json:"started_at"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Stream{}, false, err
	}
	if len(body.Data) == 0 {
		return Stream{}, false, nil
	}
	d := body.Data[0]
	s := Stream{
		Title:        d.Title,
		GameName:     d.GameName,
		ViewerCount:  d.ViewerCount,
		ThumbnailURL: expandThumbnail(d.ThumbnailURL),
	}
	if t, err := time.Parse(time.RFC3339, d.StartedAt); err == nil {
		s.StartedAt = t
	}
	return s, true, nil
}

// expandThumbnail substitutes the {width}x{height} placeholders Helix returns.
func expandThumbnail(raw string) string {
	raw = strings.ReplaceAll(raw, "{width}", "1280")
	return strings.ReplaceAll(raw, "{height}", "720")
}

// Checker implements monitor.StatusChecker on top of the Helix client.
// Resolved user IDs are cached for the process lifetime; Helix queries streams
// by login so the cache is only a validation shortcut.
type Checker struct {
	Client *HelixClient

	mu  sync.Mutex
	ids map[string]string
}

// NewChecker builds a Twitch status checker from app credentials.
func NewChecker(clientID, clientSecret string) *Checker {
	return &Checker{
		Client: &HelixClient{
			AppTokenSource: &TokenSource{ClientID: clientID, ClientSecret: clientSecret},
			ClientID:       clientID,
		},
		ids: make(map[string]string),
	}
}

// CheckStatus polls the Helix streams endpoint for one login.
func (c *Checker) CheckStatus(ctx context.Context, handle string) (monitor.StatusSample, error) {
	if err := c.ensureUser(ctx, handle); err != nil {
		return monitor.StatusSample{}, err
	}
	stream, live, err := c.Client.GetStream(ctx, handle)
	if err != nil {
		return monitor.StatusSample{}, monitor.NetworkError("twitch.streams", err)
	}
	sample := monitor.StatusSample{SampledAt: time.Now().UTC()}
	if !live {
		return sample, nil
	}
	sample.IsLive = true
	sample.Title = stream.Title
	sample.Category = stream.GameName
	sample.ViewerCount = stream.ViewerCount
	sample.ThumbnailURL = stream.ThumbnailURL
	return sample, nil
}

// ensureUser resolves the login once so an unknown handle fails loudly with
// NotFound instead of polling forever as permanently offline.
func (c *Checker) ensureUser(ctx context.Context, handle string) error {
	c.mu.Lock()
	_, ok := c.ids[handle]
	c.mu.Unlock()
	if ok {
		return nil
	}
	id, err := c.Client.GetUserID(ctx, handle)
	if err != nil {
		if strings.Contains(err.Error(), "user not found") {
			return &monitor.PollError{Kind: monitor.KindNotFound, Op: "twitch.users", Err: err}
		}
		return monitor.NetworkError("twitch.users", err)
	}
	c.mu.Lock()
	c.ids[handle] = id
	c.mu.Unlock()
	return nil
}
