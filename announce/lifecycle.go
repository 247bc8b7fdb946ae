package announce

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// CloseOutcome reports which close path ran for one adapter.
type CloseOutcome int

const (
	// CloseEdited: the live post was transformed in place via ClosePost.
	CloseEdited CloseOutcome = iota
	// CloseCreated: no record existed (create failed all session), so the
	// ended announcement was created as a fresh post.
	CloseCreated
	// CloseNoEdit: the adapter cannot edit; the record was marked closed
	// without adapter calls. The caller decides whether the end mode wants a
	// standalone ended post or a reply.
	CloseNoEdit
	// CloseAlreadyClosed: the record was already closed; zero adapter calls.
	CloseAlreadyClosed
)

func (o CloseOutcome) String() string {
	switch o {
	case CloseEdited:
		return "edited"
	case CloseCreated:
		return "created"
	case CloseNoEdit:
		return "no_edit"
	case CloseAlreadyClosed:
		return "already_closed"
	default:
		return "unknown"
	}
}

// Lifecycle drives each announcement record through Created, Updating,
// Closing, and Closed against a single adapter. Callers must hold the
// tracker's key lock for the duration of each call.
type Lifecycle struct {
	tracker *Tracker
	log     *slog.Logger
}

func NewLifecycle(tracker *Tracker) *Lifecycle {
	return &Lifecycle{
		tracker: tracker,
		log:     slog.Default().With(slog.String("component", "lifecycle")),
	}
}

// EnsureLive creates the live post when no record exists and updates it
// otherwise. A missing record on a refresh means the original create failed;
// the create is simply retried. Adapters without edit support get the create
// and then no-op on refreshes.
func (l *Lifecycle) EnsureLive(ctx context.Context, adapter SocialAdapter, key, body string, meta PostMeta, asThreadRoot bool) error {
	rec, ok := l.tracker.Get(key)
	if ok && rec.Closed {
		l.log.Error("update arrived for a closed announcement; dropping",
			slog.String("adapter", adapter.Name()),
			slog.String("key", key))
		return nil
	}
	if !ok {
		id, err := doCreate(ctx, adapter, body, meta)
		if err != nil {
			return err
		}
		rec = Record{
			PostID:        id,
			PeakViewers:   meta.ViewerCount,
			LastUpdatedAt: time.Now().UTC(),
		}
		if asThreadRoot {
			rec.ThreadRootID = id
		}
		l.tracker.Put(key, rec)
		return nil
	}

	if meta.ViewerCount > rec.PeakViewers {
		rec.PeakViewers = meta.ViewerCount
	}
	if !adapter.Capabilities().SupportsEdit {
		l.tracker.Put(key, rec)
		return nil
	}
	meta.ThumbnailURL = cacheBust(meta.ThumbnailURL)
	err := doUpdate(ctx, adapter, rec.PostID, body, meta)
	if err == nil {
		rec.LastUpdatedAt = time.Now().UTC()
	}
	l.tracker.Put(key, rec)
	return err
}

// Close finishes the record: editable adapters get the in-place ended
// transform with viewers set to the tracked peak, non-editable adapters just
// get the record marked closed. Closing an already-closed record makes zero
// adapter calls. The record stays in the tracker until the coordinator evicts
// it after the whole end fan-out completes.
func (l *Lifecycle) Close(ctx context.Context, adapter SocialAdapter, key, body string, meta PostMeta) (CloseOutcome, Record, error) {
	meta.IsFinal = true
	rec, ok := l.tracker.Get(key)
	if !ok {
		id, err := doCreate(ctx, adapter, body, meta)
		if err != nil {
			return CloseCreated, Record{}, err
		}
		rec = Record{
			PostID:        id,
			PeakViewers:   meta.ViewerCount,
			LastUpdatedAt: time.Now().UTC(),
			Closed:        true,
		}
		l.tracker.Put(key, rec)
		return CloseCreated, rec, nil
	}
	if rec.Closed {
		return CloseAlreadyClosed, rec, nil
	}
	if rec.PeakViewers > meta.ViewerCount {
		meta.ViewerCount = rec.PeakViewers
	}
	if !adapter.Capabilities().SupportsEdit {
		rec.Closed = true
		rec.LastUpdatedAt = time.Now().UTC()
		l.tracker.Put(key, rec)
		return CloseNoEdit, rec, nil
	}
	if err := doClose(ctx, adapter, rec.PostID, body, meta); err != nil {
		return CloseEdited, rec, err
	}
	rec.Closed = true
	rec.LastUpdatedAt = time.Now().UTC()
	l.tracker.Put(key, rec)
	return CloseEdited, rec, nil
}

// cacheBust appends a timestamp query parameter so platforms re-fetch the
// thumbnail on every update.
func cacheBust(raw string) string {
	if raw == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "t=" + strconv.FormatInt(time.Now().Unix(), 10)
}
