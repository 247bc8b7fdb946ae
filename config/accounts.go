package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Streaming platforms with a checker implementation.
const (
	PlatformTwitch  = "twitch"
	PlatformYouTube = "youtube"
	PlatformKick    = "kick"
)

// Account identifies one (streaming platform, handle) pair under watch.
// Immutable after Load; per-account intervals of zero fall back to the
// global POLL_LIVE_INTERVAL / POLL_OFFLINE_INTERVAL values.
type Account struct {
	Platform        string
	Handle          string
	DisplayName     string
	ProfileURL      string
	LiveInterval    time.Duration
	OfflineInterval time.Duration
}

// Key returns the stable identifier used for tracker records, queues, and logs.
func (a Account) Key() string {
	return a.Platform + "/" + strings.ToLower(a.Handle)
}

// Display returns the human-facing name for announcement bodies.
func (a Account) Display() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Handle
}

// WatchURL returns the public URL of the account's stream page. ProfileURL
// overrides the per-platform default; the URL is stable across live and ended
// states so closed announcements keep linking to the VOD/replay page.
func (a Account) WatchURL() string {
	if a.ProfileURL != "" {
		return a.ProfileURL
	}
	switch a.Platform {
	case PlatformTwitch:
		return "https://www.twitch.tv/" + a.Handle
	case PlatformYouTube:
		if strings.HasPrefix(a.Handle, "UC") {
			return "https://www.youtube.com/channel/" + a.Handle
		}
		return "https://www.youtube.com/@" + strings.TrimPrefix(a.Handle, "@")
	case PlatformKick:
		return "https://kick.com/" + a.Handle
	}
	return ""
}

// accountFile is the on-disk JSON shape; durations are strings ("45s", "3m").
type accountFile struct {
	Platform        string `json:"platform"`
	Handle          string `json:"handle"`
	DisplayName     string `json:"display_name,omitempty"`
	ProfileURL      string `json:"profile_url,omitempty"`
	LiveInterval    string `json:"live_interval,omitempty"`
	OfflineInterval string `json:"offline_interval,omitempty"`
}

// loadAccounts reads the monitored account list from ACCOUNTS_FILE (JSON array)
// when set, otherwise from the ACCOUNTS env var as comma-separated
// "platform/handle" pairs. Both may be empty; Validate rejects an empty list.
func loadAccounts() ([]Account, error) {
	if path := os.Getenv("ACCOUNTS_FILE"); path != "" {
		return loadAccountsFile(path)
	}
	return parseAccountsEnv(os.Getenv("ACCOUNTS"))
}

func loadAccountsFile(path string) ([]Account, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ACCOUNTS_FILE: %w", err)
	}
	var entries []accountFile
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse ACCOUNTS_FILE %s: %w", path, err)
	}
	accounts := make([]Account, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Platform == "" || e.Handle == "" {
			return nil, fmt.Errorf("ACCOUNTS_FILE entry %d: platform and handle are required", i)
		}
		a := Account{
			Platform:    strings.ToLower(e.Platform),
			Handle:      e.Handle,
			DisplayName: e.DisplayName,
			ProfileURL:  e.ProfileURL,
		}
		if e.LiveInterval != "" {
			d, err := time.ParseDuration(e.LiveInterval)
			if err != nil {
				return nil, fmt.Errorf("ACCOUNTS_FILE entry %s: live_interval: %w", a.Key(), err)
			}
			a.LiveInterval = d
		}
		if e.OfflineInterval != "" {
			d, err := time.ParseDuration(e.OfflineInterval)
			if err != nil {
				return nil, fmt.Errorf("ACCOUNTS_FILE entry %s: offline_interval: %w", a.Key(), err)
			}
			a.OfflineInterval = d
		}
		if seen[a.Key()] {
			return nil, fmt.Errorf("duplicate account %s in ACCOUNTS_FILE", a.Key())
		}
		seen[a.Key()] = true
		accounts = append(accounts, a)
	}
	return accounts, nil
}

func parseAccountsEnv(s string) ([]Account, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	accounts := make([]Account, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		platform, handle, ok := strings.Cut(p, "/")
		if !ok || platform == "" || handle == "" {
			return nil, fmt.Errorf("ACCOUNTS entry %q: want platform/handle", p)
		}
		a := Account{Platform: strings.ToLower(platform), Handle: handle}
		if seen[a.Key()] {
			return nil, fmt.Errorf("duplicate account %s in ACCOUNTS", a.Key())
		}
		seen[a.Key()] = true
		accounts = append(accounts, a)
	}
	return accounts, nil
}
