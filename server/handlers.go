package server

import (
	"time"

	"github.com/onnwee/stream-herald/announce"
	"github.com/onnwee/stream-herald/history"
	"github.com/onnwee/stream-herald/monitor"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	registry  *monitor.Registry
	tracker   *announce.Tracker
	policy    announce.Policy
	history   *history.Store // nil when no database is configured
	version   string
	startedAt time.Time
}

// NewHandlers creates a Handlers instance. history may be nil.
func NewHandlers(registry *monitor.Registry, tracker *announce.Tracker, policy announce.Policy, hist *history.Store, version string) *Handlers {
	return &Handlers{
		registry:  registry,
		tracker:   tracker,
		policy:    policy,
		history:   hist,
		version:   version,
		startedAt: time.Now().UTC(),
	}
}
