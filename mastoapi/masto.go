// Package mastoapi publishes announcements as Mastodon statuses. Statuses can
// be edited in place and replied to, so every threading mode works here.
package mastoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"

	"github.com/onnwee/stream-herald/announce"
)

// Adapter implements announce.SocialAdapter against one Mastodon instance.
type Adapter struct {
	BaseURL     string
	AccessToken string
	Visibility  string // defaults to "public"
	HTTPClient  *http.Client
	log         *slog.Logger
}

// New builds a Mastodon adapter for an instance base URL and access token.
func New(baseURL, accessToken string) *Adapter {
	return &Adapter{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		AccessToken: accessToken,
		Visibility:  "public",
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		log:         slog.Default().With(slog.String("component", "mastodon")),
	}
}

func (a *Adapter) Name() string { return "mastodon" }

func (a *Adapter) Capabilities() announce.Capabilities {
	return announce.Capabilities{SupportsEdit: true, SupportsReply: true}
}

// CreatePost publishes a status. An Idempotency-Key header guards against
// double posts when a create is retried after an ambiguous failure.
func (a *Adapter) CreatePost(ctx context.Context, body string, _ announce.PostMeta) (string, error) {
	form := url.Values{}
	form.Set("status", body)
	form.Set("visibility", a.visibility())
	return a.submit(ctx, "create", http.MethodPost, "/api/v1/statuses", form, uuid.NewString())
}

// UpdatePost edits the status text via PUT.
func (a *Adapter) UpdatePost(ctx context.Context, postID, body string, _ announce.PostMeta) error {
	form := url.Values{}
	form.Set("status", body)
	_, err := a.submit(ctx, "update", http.MethodPut, "/api/v1/statuses/"+postID, form, "")
	return err
}

// ClosePost is an edit carrying the ended framing.
func (a *Adapter) ClosePost(ctx context.Context, postID, body string, _ announce.PostMeta) error {
	form := url.Values{}
	form.Set("status", body)
	_, err := a.submit(ctx, "close", http.MethodPut, "/api/v1/statuses/"+postID, form, "")
	return err
}

// CreateReply posts a status in reply to the thread root.
func (a *Adapter) CreateReply(ctx context.Context, rootPostID, body string, _ announce.PostMeta) (string, error) {
	form := url.Values{}
	form.Set("status", body)
	form.Set("in_reply_to_id", rootPostID)
	form.Set("visibility", a.visibility())
	return a.submit(ctx, "reply", http.MethodPost, "/api/v1/statuses", form, uuid.NewString())
}

func (a *Adapter) visibility() string {
	if a.Visibility != "" {
		return a.Visibility
	}
	return "public"
}

// submit performs one statuses call with bounded retries and returns the
// status ID from the response.
func (a *Adapter) submit(ctx context.Context, op, method, path string, form url.Values, idemKey string) (string, error) {
	var statusID string
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, strings.NewReader(form.Encode()))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("Authorization", "Bearer "+a.AccessToken)
			if idemKey != "" {
				req.Header.Set("Idempotency-Key", idemKey)
			}
			resp, err := a.HTTPClient.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if err := resp.Body.Close(); err != nil {
					slog.Warn("failed to close response body", slog.Any("err", err))
				}
			}()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
			}
			var st struct {
				ID string `json:"id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
				return err
			}
			statusID = st.ID
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(15*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			a.log.Info("retrying mastodon call", slog.String("op", op), slog.Uint64("attempt", uint64(n)), slog.Any("error", err))
		}),
		retry.RetryIf(func(err error) bool {
			s := httpStatus(err)
			return s == 0 || s == http.StatusTooManyRequests || s >= 500
		}),
	)
	if err != nil {
		return "", announce.NewPostError(a.Name(), op, httpStatus(err), err)
	}
	return statusID, nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func httpStatus(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return 0
}
