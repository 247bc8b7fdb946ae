package announce_test

import (
	"context"
	"errors"
	"testing"

	"github.com/onnwee/stream-herald/announce"
	"github.com/onnwee/stream-herald/testutil"
)

func TestEnsureLiveCreatesThenUpdates(t *testing.T) {
	tracker := announce.NewTracker()
	lc := announce.NewLifecycle(tracker)
	adapter := testutil.NewMockSocialAdapter("discord")
	key := announce.Key("twitch/somestreamer", "discord")
	ctx := context.Background()

	if err := lc.EnsureLive(ctx, adapter, key, "live!", announce.PostMeta{ViewerCount: 5}, false); err != nil {
		t.Fatalf("first EnsureLive: %v", err)
	}
	if err := lc.EnsureLive(ctx, adapter, key, "still live", announce.PostMeta{ViewerCount: 12}, false); err != nil {
		t.Fatalf("second EnsureLive: %v", err)
	}

	creates := adapter.CallsByOp("create")
	updates := adapter.CallsByOp("update")
	if len(creates) != 1 || len(updates) != 1 {
		t.Fatalf("creates = %d, updates = %d; want 1 and 1", len(creates), len(updates))
	}
	rec, ok := tracker.Get(key)
	if !ok {
		t.Fatal("record missing")
	}
	if updates[0].PostID != rec.PostID {
		t.Errorf("update targeted %q, record holds %q", updates[0].PostID, rec.PostID)
	}
	if rec.PeakViewers != 12 {
		t.Errorf("PeakViewers = %d, want 12", rec.PeakViewers)
	}
}

// A refresh after a failed create retries the create instead of updating a
// post that never existed.
func TestEnsureLiveRetriesFailedCreate(t *testing.T) {
	tracker := announce.NewTracker()
	lc := announce.NewLifecycle(tracker)
	adapter := testutil.NewMockSocialAdapter("discord")
	adapter.SetCreateErr(errors.New("boom"))
	key := announce.Key("twitch/somestreamer", "discord")
	ctx := context.Background()

	if err := lc.EnsureLive(ctx, adapter, key, "live!", announce.PostMeta{}, false); err == nil {
		t.Fatal("expected create error")
	}
	if _, ok := tracker.Get(key); ok {
		t.Fatal("record stored despite failed create")
	}

	adapter.SetCreateErr(nil)
	if err := lc.EnsureLive(ctx, adapter, key, "live!", announce.PostMeta{}, false); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(adapter.CallsByOp("create")) != 2 {
		t.Errorf("creates = %d, want 2", len(adapter.CallsByOp("create")))
	}
	if len(adapter.CallsByOp("update")) != 0 {
		t.Error("refresh updated a nonexistent post")
	}
}

func TestEnsureLiveNoEditAdapter(t *testing.T) {
	tracker := announce.NewTracker()
	lc := announce.NewLifecycle(tracker)
	adapter := testutil.NewMockSocialAdapter("bluesky")
	adapter.Caps = announce.Capabilities{SupportsEdit: false, SupportsReply: true}
	key := announce.Key("twitch/somestreamer", "bluesky")
	ctx := context.Background()

	if err := lc.EnsureLive(ctx, adapter, key, "live!", announce.PostMeta{ViewerCount: 3}, false); err != nil {
		t.Fatal(err)
	}
	if err := lc.EnsureLive(ctx, adapter, key, "refresh", announce.PostMeta{ViewerCount: 9}, false); err != nil {
		t.Fatal(err)
	}
	if n := len(adapter.CallsByOp("update")); n != 0 {
		t.Errorf("updates = %d, want 0 for non-editing adapter", n)
	}
	rec, _ := tracker.Get(key)
	if rec.PeakViewers != 9 {
		t.Errorf("PeakViewers = %d, want 9 (tracked even without edits)", rec.PeakViewers)
	}
}

func TestEnsureLiveAsThreadRoot(t *testing.T) {
	tracker := announce.NewTracker()
	lc := announce.NewLifecycle(tracker)
	adapter := testutil.NewMockSocialAdapter("mastodon")
	key := announce.Key("twitch/somestreamer", "mastodon")

	if err := lc.EnsureLive(context.Background(), adapter, key, "live!", announce.PostMeta{}, true); err != nil {
		t.Fatal(err)
	}
	rec, _ := tracker.Get(key)
	if rec.ThreadRootID == "" || rec.ThreadRootID != rec.PostID {
		t.Errorf("ThreadRootID = %q, want the created post id %q", rec.ThreadRootID, rec.PostID)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	tracker := announce.NewTracker()
	lc := announce.NewLifecycle(tracker)
	adapter := testutil.NewMockSocialAdapter("discord")
	key := announce.Key("twitch/somestreamer", "discord")
	ctx := context.Background()

	if err := lc.EnsureLive(ctx, adapter, key, "live!", announce.PostMeta{ViewerCount: 50}, false); err != nil {
		t.Fatal(err)
	}

	outcome, _, err := lc.Close(ctx, adapter, key, "ended", announce.PostMeta{ViewerCount: 7})
	if err != nil {
		t.Fatalf("first close: %v", err)
	}
	if outcome != announce.CloseEdited {
		t.Fatalf("outcome = %s, want edited", outcome)
	}

	outcome, _, err = lc.Close(ctx, adapter, key, "ended", announce.PostMeta{})
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if outcome != announce.CloseAlreadyClosed {
		t.Fatalf("second outcome = %s, want already_closed", outcome)
	}

	closes := adapter.CallsByOp("close")
	if len(closes) != 1 {
		t.Fatalf("closes = %d, want exactly 1", len(closes))
	}
	// The close body carries the session peak, not the last sample.
	if closes[0].Meta.ViewerCount != 50 {
		t.Errorf("close ViewerCount = %d, want tracked peak 50", closes[0].Meta.ViewerCount)
	}
	if !closes[0].Meta.IsFinal {
		t.Error("close meta not marked final")
	}
}

func TestCloseWithoutRecordCreates(t *testing.T) {
	tracker := announce.NewTracker()
	lc := announce.NewLifecycle(tracker)
	adapter := testutil.NewMockSocialAdapter("discord")
	key := announce.Key("twitch/somestreamer", "discord")

	outcome, rec, err := lc.Close(context.Background(), adapter, key, "ended", announce.PostMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != announce.CloseCreated {
		t.Fatalf("outcome = %s, want created", outcome)
	}
	if !rec.Closed {
		t.Error("created record not marked closed")
	}
	if len(adapter.CallsByOp("close")) != 0 {
		t.Error("ClosePost called without a live post to edit")
	}
}

func TestCloseNoEditAdapter(t *testing.T) {
	tracker := announce.NewTracker()
	lc := announce.NewLifecycle(tracker)
	adapter := testutil.NewMockSocialAdapter("bluesky")
	adapter.Caps = announce.Capabilities{SupportsEdit: false, SupportsReply: true}
	key := announce.Key("twitch/somestreamer", "bluesky")
	ctx := context.Background()

	if err := lc.EnsureLive(ctx, adapter, key, "live!", announce.PostMeta{}, false); err != nil {
		t.Fatal(err)
	}
	outcome, rec, err := lc.Close(ctx, adapter, key, "ended", announce.PostMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if outcome != announce.CloseNoEdit {
		t.Fatalf("outcome = %s, want no_edit", outcome)
	}
	if !rec.Closed {
		t.Error("record not marked closed")
	}
	if len(adapter.CallsByOp("close")) != 0 {
		t.Error("ClosePost called on a non-editing adapter")
	}
}
