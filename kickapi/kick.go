// Package kickapi polls the Kick public API for channel live status, using an
// OAuth2 client-credentials token.
package kickapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/onnwee/stream-herald/monitor"
)

const (
	defaultAPIBase  = "https://api.kick.com/public/v1"
	defaultTokenURL = "https://id.kick.com/oauth/token"
)

// Checker implements monitor.StatusChecker against the Kick channels endpoint.
type Checker struct {
	HTTPClient *http.Client
	BaseURL    string // defaults to the public API host
}

// NewChecker builds a Kick status checker. The returned client carries the
// client-credentials token source; tokens refresh transparently.
func NewChecker(clientID, clientSecret string) *Checker {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     defaultTokenURL,
	}
	return &Checker{HTTPClient: cc.Client(context.Background())}
}

func (c *Checker) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Checker) base() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return defaultAPIBase
}

// CheckStatus queries the channels endpoint by slug.
func (c *Checker) CheckStatus(ctx context.Context, handle string) (monitor.StatusSample, error) {
	if handle == "" {
		return monitor.StatusSample{}, &monitor.PollError{Kind: monitor.KindNotFound, Op: "kick.channels", Err: fmt.Errorf("slug empty")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/channels", nil)
	if err != nil {
		return monitor.StatusSample{}, monitor.NetworkError("kick.channels", err)
	}
	q := req.URL.Query()
	q.Set("slug", handle)
	req.URL.RawQuery = q.Encode()
	resp, err := c.http().Do(req)
	if err != nil {
		return monitor.StatusSample{}, monitor.NetworkError("kick.channels", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return monitor.StatusSample{}, monitor.ClassifyStatus("kick.channels", resp.StatusCode)
	}
	var body struct {
		Data []struct {
			Slug     string `json:"slug"`
			Category struct {
				Name string `json:"name"`
			} `json:"category"`
			Stream struct {
				IsLive      bool   `json:"is_live"`
				ViewerCount int    `json:"viewer_count"`
				Thumbnail   string `json:"thumbnail"`
			} `json:"stream"`
			StreamTitle string `json:"stream_title"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return monitor.StatusSample{}, monitor.NetworkError("kick.channels", err)
	}
	sample := monitor.StatusSample{SampledAt: time.Now().UTC()}
	if len(body.Data) == 0 {
		return monitor.StatusSample{}, &monitor.PollError{Kind: monitor.KindNotFound, Op: "kick.channels", Err: fmt.Errorf("channel %q not found", handle)}
	}
	ch := body.Data[0]
	if !ch.Stream.IsLive {
		return sample, nil
	}
	sample.IsLive = true
	sample.Title = ch.StreamTitle
	sample.Category = ch.Category.Name
	sample.ViewerCount = ch.Stream.ViewerCount
	sample.ThumbnailURL = ch.Stream.Thumbnail
	return sample, nil
}
