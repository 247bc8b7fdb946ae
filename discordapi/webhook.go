// Package discordapi publishes announcements through a Discord webhook. The
// webhook execute call uses ?wait=true so Discord returns the created message,
// whose ID is what later edits need.
package discordapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/onnwee/stream-herald/announce"
)

const (
	colorLive  = 0x9146ff
	colorEnded = 0x808080
)

// Adapter implements announce.SocialAdapter over one webhook URL.
type Adapter struct {
	WebhookURL string
	HTTPClient *http.Client
	log        *slog.Logger
}

// New builds a Discord webhook adapter.
func New(webhookURL string) *Adapter {
	return &Adapter{
		WebhookURL: webhookURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		log:        slog.Default().With(slog.String("component", "discord")),
	}
}

func (a *Adapter) Name() string { return "discord" }

// Capabilities: webhook messages can be edited in place but webhooks cannot
// reply to their own messages.
func (a *Adapter) Capabilities() announce.Capabilities {
	return announce.Capabilities{SupportsEdit: true, SupportsReply: false}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Image       *embedImage  `json:"image,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

// buildEmbed renders the rich side of an announcement. The body text rides in
// content; the embed carries the structured fields.
func buildEmbed(meta announce.PostMeta) embed {
	e := embed{
		Title: meta.Title,
		URL:   meta.AccountURL,
		Color: colorLive,
	}
	if e.Title == "" {
		e.Title = meta.AccountName
	}
	if meta.IsFinal {
		e.Color = colorEnded
	}
	if meta.Category != "" {
		e.Fields = append(e.Fields, embedField{Name: "Category", Value: meta.Category, Inline: true})
	}
	if meta.ViewerCount > 0 {
		name := "Viewers"
		if meta.IsFinal {
			name = "Peak viewers"
		}
		e.Fields = append(e.Fields, embedField{Name: name, Value: fmt.Sprintf("%d", meta.ViewerCount), Inline: true})
	}
	if meta.IsFinal && meta.Duration > 0 {
		e.Fields = append(e.Fields, embedField{Name: "Duration", Value: formatDuration(meta.Duration), Inline: true})
	}
	if meta.ThumbnailURL != "" && !meta.IsFinal {
		e.Image = &embedImage{URL: meta.ThumbnailURL}
	}
	if !meta.StartedAt.IsZero() {
		e.Timestamp = meta.StartedAt.UTC().Format(time.RFC3339)
	}
	if meta.Platform != "" {
		e.Footer = &embedFooter{Text: meta.Platform}
	}
	return e
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// CreatePost executes the webhook and returns the created message ID.
func (a *Adapter) CreatePost(ctx context.Context, body string, meta announce.PostMeta) (string, error) {
	payload := webhookPayload{Content: body, Embeds: []embed{buildEmbed(meta)}}
	var msgID string
	err := a.do(ctx, "create", func() error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		url := a.WebhookURL
		if strings.Contains(url, "?") {
			url += "&wait=true"
		} else {
			url += "?wait=true"
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := a.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer closeBody(resp)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusErr(resp)
		}
		var msg struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
			return err
		}
		if msg.ID == "" {
			return errors.New("webhook response missing message id")
		}
		msgID = msg.ID
		return nil
	})
	if err != nil {
		return "", announce.NewPostError(a.Name(), "create", statusOf(err), err)
	}
	return msgID, nil
}

// UpdatePost edits the webhook message in place.
func (a *Adapter) UpdatePost(ctx context.Context, postID, body string, meta announce.PostMeta) error {
	return a.patch(ctx, "update", postID, body, meta)
}

// ClosePost is the same PATCH with ended framing already applied by the caller
// via meta.IsFinal.
func (a *Adapter) ClosePost(ctx context.Context, postID, body string, meta announce.PostMeta) error {
	return a.patch(ctx, "close", postID, body, meta)
}

// CreateReply is unsupported for webhooks.
func (a *Adapter) CreateReply(_ context.Context, _, _ string, _ announce.PostMeta) (string, error) {
	return "", announce.NewPostError(a.Name(), "reply", 0, errors.New("webhooks cannot reply"))
}

func (a *Adapter) patch(ctx context.Context, op, postID, body string, meta announce.PostMeta) error {
	payload := webhookPayload{Content: body, Embeds: []embed{buildEmbed(meta)}}
	err := a.do(ctx, op, func() error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		url := strings.SplitN(a.WebhookURL, "?", 2)[0] + "/messages/" + postID
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := a.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer closeBody(resp)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusErr(resp)
		}
		return nil
	})
	if err != nil {
		return announce.NewPostError(a.Name(), op, statusOf(err), err)
	}
	return nil
}

// do wraps one webhook call with bounded retries. Permanent 4xx responses are
// not retried.
func (a *Adapter) do(ctx context.Context, op string, fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(15*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			a.log.Info("retrying discord call", slog.String("op", op), slog.Uint64("attempt", uint64(n)), slog.Any("error", err))
		}),
		retry.RetryIf(func(err error) bool {
			status := statusOf(err)
			return status == 0 || status == http.StatusTooManyRequests || status >= 500
		}),
	)
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func statusErr(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
}

func statusOf(err error) int {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
