// Package youtubeapi wraps the YouTube Data API v3 for the single purpose of
// detecting whether a channel is live and how many viewers it has. It uses an
// API key; no OAuth user consent is involved.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/stream-herald/monitor"
)

// Checker implements monitor.StatusChecker for YouTube channels. Handles may
// be channel IDs ("UC...") or @handles; handle resolution is cached for the
// process lifetime.
type Checker struct {
	apiKey string
	opts   []option.ClientOption

	mu       sync.Mutex
	svc      *yt.Service
	channels map[string]string // handle -> channel ID
}

// NewChecker builds a YouTube status checker from an API key. Extra options
// (custom endpoint, http client) are for tests.
func NewChecker(apiKey string, opts ...option.ClientOption) *Checker {
	return &Checker{
		apiKey:   apiKey,
		opts:     opts,
		channels: make(map[string]string),
	}
}

func (c *Checker) service(ctx context.Context) (*yt.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.svc != nil {
		return c.svc, nil
	}
	opts := append([]option.ClientOption{option.WithAPIKey(c.apiKey)}, c.opts...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	c.svc = svc
	return svc, nil
}

// CheckStatus searches the channel for a live broadcast and, when one is
// found, fetches its concurrent viewer count.
func (c *Checker) CheckStatus(ctx context.Context, handle string) (monitor.StatusSample, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return monitor.StatusSample{}, monitor.NetworkError("youtube.service", err)
	}
	channelID, err := c.resolveChannel(ctx, svc, handle)
	if err != nil {
		return monitor.StatusSample{}, err
	}

	search, err := svc.Search.List([]string{"snippet"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).Do()
	if err != nil {
		return monitor.StatusSample{}, classify("youtube.search", err)
	}
	sample := monitor.StatusSample{SampledAt: time.Now().UTC()}
	if len(search.Items) == 0 {
		return sample, nil
	}
	item := search.Items[0]
	sample.IsLive = true
	sample.Title = item.Snippet.Title
	if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.High != nil {
		sample.ThumbnailURL = item.Snippet.Thumbnails.High.Url
	}

	videos, err := svc.Videos.List([]string{"liveStreamingDetails", "snippet"}).
		Id(item.Id.VideoId).
		Context(ctx).Do()
	if err != nil {
		// The live hit is authoritative; viewer detail is best effort.
		return sample, nil
	}
	if len(videos.Items) > 0 {
		v := videos.Items[0]
		if v.LiveStreamingDetails != nil {
			sample.ViewerCount = int(v.LiveStreamingDetails.ConcurrentViewers)
		}
		if v.Snippet != nil && v.Snippet.CategoryId != "" {
			sample.Category = v.Snippet.CategoryId
		}
	}
	return sample, nil
}

// resolveChannel maps a handle to a channel ID, hitting the channels endpoint
// once per handle.
func (c *Checker) resolveChannel(ctx context.Context, svc *yt.Service, handle string) (string, error) {
	if strings.HasPrefix(handle, "UC") && !strings.HasPrefix(handle, "@") {
		return handle, nil
	}
	c.mu.Lock()
	id, ok := c.channels[handle]
	c.mu.Unlock()
	if ok {
		return id, nil
	}
	resp, err := svc.Channels.List([]string{"id"}).
		ForHandle(strings.TrimPrefix(handle, "@")).
		Context(ctx).Do()
	if err != nil {
		return "", classify("youtube.channels", err)
	}
	if len(resp.Items) == 0 {
		return "", &monitor.PollError{Kind: monitor.KindNotFound, Op: "youtube.channels", Err: fmt.Errorf("channel %q not found", handle)}
	}
	id = resp.Items[0].Id
	c.mu.Lock()
	c.channels[handle] = id
	c.mu.Unlock()
	return id, nil
}

// classify maps googleapi errors onto PollError kinds.
func classify(op string, err error) *monitor.PollError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return monitor.ClassifyStatus(op, gerr.Code)
	}
	return monitor.NetworkError(op, err)
}
