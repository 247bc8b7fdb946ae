// Package monitor turns independently-polled streaming-platform status into a
// debounced live/offline state machine per monitored account, emitting lifecycle
// events consumed by the announce package.
package monitor

import (
	"context"
	"fmt"
	"time"
)

// StatusSample is the result of one poll of a streaming platform.
type StatusSample struct {
	IsLive       bool
	Title        string
	Category     string
	ViewerCount  int
	ThumbnailURL string
	SampledAt    time.Time
}

// StatusChecker is implemented once per streaming platform (twitchapi,
// youtubeapi, kickapi). A failed check returns a *PollError; the monitor treats
// any error as "no information" and never changes state on it.
type StatusChecker interface {
	CheckStatus(ctx context.Context, handle string) (StatusSample, error)
}

// PollErrorKind classifies a failed status check. Kinds drive logging and
// metrics only; the state machine treats every kind the same way.
type PollErrorKind int

const (
	KindUnknown PollErrorKind = iota
	KindAuthExpired
	KindRateLimited
	KindNotFound
	KindNetwork
)

func (k PollErrorKind) String() string {
	switch k {
	case KindAuthExpired:
		return "auth_expired"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// PollError is the error type returned by StatusChecker implementations.
type PollError struct {
	Kind PollErrorKind
	Op   string
	Err  error
}

func (e *PollError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *PollError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP response status to a PollError.
func ClassifyStatus(op string, status int) *PollError {
	kind := KindUnknown
	switch {
	case status == 401 || status == 403:
		kind = KindAuthExpired
	case status == 429:
		kind = KindRateLimited
	case status == 404:
		kind = KindNotFound
	case status >= 500:
		kind = KindNetwork
	}
	return &PollError{Kind: kind, Op: op, Err: fmt.Errorf("unexpected status %d", status)}
}

// NetworkError wraps a transport-level failure (dial, timeout, body read).
func NetworkError(op string, err error) *PollError {
	return &PollError{Kind: KindNetwork, Op: op, Err: err}
}
