package history

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/stream-herald/config"
	"github.com/onnwee/stream-herald/monitor"
	"github.com/onnwee/stream-herald/testutil"
)

func testEvent(sessionID string) monitor.Event {
	return monitor.Event{
		Type:      monitor.EventLiveStarted,
		Account:   config.Account{Platform: config.PlatformTwitch, Handle: "somestreamer"},
		Sample:    monitor.StatusSample{IsLive: true, Title: "test stream", Category: "IRL", ViewerCount: 5},
		SessionID: sessionID,
		LiveSince: time.Now().UTC(),
	}
}

func TestSessionRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ev := testEvent("sess-history-1")
	store.RecordSessionStart(ctx, ev)
	// Duplicate start must not error (ON CONFLICT DO NOTHING).
	store.RecordSessionStart(ctx, ev)
	store.RecordPost(ctx, ev, "discord", "create", nil)
	store.RecordSessionEnd(ctx, ev, 42)

	sessions, err := store.RecentSessions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentSessions() error = %v", err)
	}
	var found *Session
	for i := range sessions {
		if sessions[i].SessionID == "sess-history-1" {
			found = &sessions[i]
			break
		}
	}
	if found == nil {
		t.Fatal("session not found in recent sessions")
	}
	if found.PeakViewers != 42 {
		t.Errorf("PeakViewers = %d, want 42", found.PeakViewers)
	}
	if found.EndedAt == nil {
		t.Error("EndedAt not set after RecordSessionEnd")
	}
}

func TestRecordPostFailureLogged(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	ev := testEvent("sess-history-2")
	store.RecordSessionStart(ctx, ev)
	store.RecordPost(ctx, ev, "mastodon", "create", context.DeadlineExceeded)

	var ok bool
	var errText string
	err := db.QueryRowContext(ctx,
		`SELECT ok, COALESCE(error,'') FROM announcement_log WHERE session_id=$1 AND adapter='mastodon'`,
		ev.SessionID).Scan(&ok, &errText)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ok {
		t.Error("ok = true for failed post")
	}
	if errText == "" {
		t.Error("error text empty")
	}
}
