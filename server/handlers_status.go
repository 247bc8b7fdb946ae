package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/stream-herald/announce"
	"github.com/onnwee/stream-herald/history"
	"github.com/onnwee/stream-herald/monitor"
)

// announcementView is the status-API shape of one tracker record. Post IDs are
// included so operators can cross-reference the social platforms directly.
type announcementView struct {
	PostID        string    `json:"post_id"`
	ThreadRootID  string    `json:"thread_root_id,omitempty"`
	PeakViewers   int       `json:"peak_viewers"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	Closed        bool      `json:"closed"`
	Members       []string  `json:"members,omitempty"`
}

type statusResponse struct {
	Version        string                      `json:"version"`
	UptimeSeconds  int64                       `json:"uptime_seconds"`
	Policy         string                      `json:"policy"`
	Monitors       []monitor.Snapshot          `json:"monitors"`
	Announcements  map[string]announcementView `json:"announcements"`
	RecentSessions []history.Session           `json:"recent_sessions,omitempty"`
}

// HandleStatus returns a JSON snapshot of every monitor, the announcement
// correlation table, and (when a database is configured) recent sessions.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := statusResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Policy:        h.policy.String(),
		Monitors:      h.registry.Snapshots(),
		Announcements: make(map[string]announcementView),
	}

	for key, rec := range h.tracker.Snapshot() {
		resp.Announcements[key] = viewOf(rec)
	}

	if h.history != nil {
		sessions, err := h.history.RecentSessions(r.Context(), 20)
		if err != nil {
			slog.Warn("failed to load recent sessions for status",
				slog.Any("error", err), slog.String("component", "http"))
		} else {
			resp.RecentSessions = sessions
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to encode status response", slog.Any("error", err))
	}
}

func viewOf(rec announce.Record) announcementView {
	v := announcementView{
		PostID:        rec.PostID,
		ThreadRootID:  rec.ThreadRootID,
		PeakViewers:   rec.PeakViewers,
		LastUpdatedAt: rec.LastUpdatedAt,
		Closed:        rec.Closed,
	}
	for member := range rec.Members {
		v.Members = append(v.Members, member)
	}
	return v
}
