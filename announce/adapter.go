package announce

import (
	"context"
	"fmt"
	"time"

	"github.com/onnwee/stream-herald/telemetry"
)

// Capabilities describes what a social platform's API can do. Adapters that
// cannot edit degrade to create-only behavior; adapters that cannot reply
// degrade threaded end announcements to standalone posts.
type Capabilities struct {
	SupportsEdit  bool
	SupportsReply bool
}

// PostMeta carries the structured stream metadata adapters may use to build
// rich payloads (embeds, cards) alongside the rendered body text. IsFinal
// marks an end-of-stream payload: viewer counts are peak values and colors
// should be muted.
type PostMeta struct {
	AccountName  string
	AccountURL   string
	Platform     string
	Title        string
	Category     string
	ViewerCount  int
	ThumbnailURL string
	StartedAt    time.Time
	Duration     time.Duration
	IsFinal      bool
}

// SocialAdapter publishes announcements to one social platform.
type SocialAdapter interface {
	Name() string
	Capabilities() Capabilities
	CreatePost(ctx context.Context, body string, meta PostMeta) (string, error)
	UpdatePost(ctx context.Context, postID, body string, meta PostMeta) error
	ClosePost(ctx context.Context, postID, body string, meta PostMeta) error
	CreateReply(ctx context.Context, rootPostID, body string, meta PostMeta) (string, error)
}

// PostError is returned by adapters for failed platform calls. Status is the
// HTTP status when one was received, zero for transport failures.
type PostError struct {
	Adapter string
	Op      string
	Status  int
	Err     error
}

func (e *PostError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Adapter, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Adapter, e.Op, e.Err)
}

func (e *PostError) Unwrap() error { return e.Err }

// IsRetryable reports whether retrying the call could succeed. Auth and
// validation failures (4xx other than 429) are permanent.
func (e *PostError) IsRetryable() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}

// NewPostError wraps err with the adapter identity and operation.
func NewPostError(adapter, op string, status int, err error) *PostError {
	return &PostError{Adapter: adapter, Op: op, Status: status, Err: err}
}

// do* helpers wrap adapter calls with post metrics.

func doCreate(ctx context.Context, a SocialAdapter, body string, meta PostMeta) (string, error) {
	start := time.Now()
	id, err := a.CreatePost(ctx, body, meta)
	observePost(a.Name(), "create", start, err)
	return id, err
}

func doUpdate(ctx context.Context, a SocialAdapter, postID, body string, meta PostMeta) error {
	start := time.Now()
	err := a.UpdatePost(ctx, postID, body, meta)
	observePost(a.Name(), "update", start, err)
	return err
}

func doClose(ctx context.Context, a SocialAdapter, postID, body string, meta PostMeta) error {
	start := time.Now()
	err := a.ClosePost(ctx, postID, body, meta)
	observePost(a.Name(), "close", start, err)
	return err
}

func doReply(ctx context.Context, a SocialAdapter, rootID, body string, meta PostMeta) (string, error) {
	start := time.Now()
	id, err := a.CreateReply(ctx, rootID, body, meta)
	observePost(a.Name(), "reply", start, err)
	return id, err
}

func observePost(platform, op string, start time.Time, err error) {
	if telemetry.PostDuration != nil {
		telemetry.PostDuration.WithLabelValues(platform).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if telemetry.PostErrorsTotal != nil {
			telemetry.PostErrorsTotal.WithLabelValues(platform, op).Inc()
		}
		return
	}
	if telemetry.PostsTotal != nil {
		telemetry.PostsTotal.WithLabelValues(platform, op).Inc()
	}
}
