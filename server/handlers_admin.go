package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// HandlePoke forces an immediate poll. POST /admin/poke pokes every monitor;
// POST /admin/poke/{platform}/{handle} pokes one account.
func (h *Handlers) HandlePoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/poke"), "/")
	if rest == "" {
		h.registry.PokeAll()
		slog.Info("poked all monitors", slog.String("component", "http"))
		writeJSON(w, map[string]any{"status": "poked", "monitors": h.registry.Len()})
		return
	}

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		http.Error(w, "expected /admin/poke/{platform}/{handle}", http.StatusBadRequest)
		return
	}
	key := parts[0] + "/" + strings.ToLower(parts[1])
	if !h.registry.Poke(key) {
		http.Error(w, "account not monitored", http.StatusNotFound)
		return
	}
	slog.Info("poked monitor", slog.String("account", key), slog.String("component", "http"))
	writeJSON(w, map[string]any{"status": "poked", "account": key})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.Any("error", err))
	}
}
