package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/stream-herald/config"
	"github.com/onnwee/stream-herald/telemetry"
)

// EventType identifies a lifecycle transition emitted by a StreamMonitor.
type EventType int

const (
	EventLiveStarted EventType = iota
	EventLiveRefreshed
	EventLiveEnded
)

func (t EventType) String() string {
	switch t {
	case EventLiveStarted:
		return "live_started"
	case EventLiveRefreshed:
		return "live_refreshed"
	case EventLiveEnded:
		return "live_ended"
	default:
		return "unknown"
	}
}

// Event is one lifecycle transition for one account. Sample always holds the
// most recent live sample: for LiveEnded that is the last sample taken while
// the stream was still up, not the offline sample that confirmed the end.
type Event struct {
	Type      EventType
	Account   config.Account
	Sample    StatusSample
	SessionID string
	LiveSince time.Time
}

// StreamState is the debounced per-account state.
type StreamState int

const (
	StateOffline StreamState = iota
	StatePendingLive
	StateLive
	StatePendingOffline
	StateEnded
)

func (s StreamState) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StatePendingLive:
		return "pending_live"
	case StateLive:
		return "live"
	case StatePendingOffline:
		return "pending_offline"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Settings control one monitor's cadence and debounce thresholds.
type Settings struct {
	LiveInterval         time.Duration
	OfflineInterval      time.Duration
	Timeout              time.Duration
	LiveConfirmations    int
	OfflineConfirmations int
}

// SettingsFromConfig builds monitor settings from the global config, applying
// the account's per-account interval overrides when set.
func SettingsFromConfig(cfg *config.Config, account config.Account) Settings {
	s := Settings{
		LiveInterval:         cfg.LiveInterval,
		OfflineInterval:      cfg.OfflineInterval,
		Timeout:              cfg.PollTimeout,
		LiveConfirmations:    cfg.LiveConfirmations,
		OfflineConfirmations: cfg.OfflineConfirmations,
	}
	if account.LiveInterval > 0 {
		s.LiveInterval = account.LiveInterval
	}
	if account.OfflineInterval > 0 {
		s.OfflineInterval = account.OfflineInterval
	}
	return s
}

// StreamMonitor polls one account's StatusChecker and applies asymmetric
// debounce: going live is trusted after LiveConfirmations samples (default 1,
// instant announcement), going offline only after OfflineConfirmations
// consecutive offline samples (default 2) so a single API blip never tears
// down a live announcement.
type StreamMonitor struct {
	account  config.Account
	checker  StatusChecker
	settings Settings
	log      *slog.Logger
	poke     chan struct{}

	mu            sync.Mutex
	state         StreamState
	lastSample    StatusSample
	liveSince     time.Time
	sessionID     string
	liveStreak    int
	offlineStreak int
	lastPollAt    time.Time
	lastErr       error
}

// New constructs a monitor; Run must be started on its own goroutine.
func New(account config.Account, checker StatusChecker, settings Settings) *StreamMonitor {
	if settings.LiveConfirmations < 1 {
		settings.LiveConfirmations = 1
	}
	if settings.OfflineConfirmations < 1 {
		settings.OfflineConfirmations = 1
	}
	return &StreamMonitor{
		account:  account,
		checker:  checker,
		settings: settings,
		log: slog.Default().With(
			slog.String("component", "monitor"),
			slog.String("account", account.Key()),
		),
		poke: make(chan struct{}, 1),
	}
}

// Account returns the monitored account.
func (m *StreamMonitor) Account() config.Account { return m.account }

// State returns the current debounced state.
func (m *StreamMonitor) State() StreamState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Poke requests an immediate poll on the next loop iteration. Non-blocking;
// a poke while one is already pending is coalesced.
func (m *StreamMonitor) Poke() {
	select {
	case m.poke <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately; after
// each tick the timer is re-armed with the interval for the current state so
// live streams are checked on the shorter cadence.
func (m *StreamMonitor) Run(ctx context.Context, events chan<- Event) {
	m.log.Info("monitor started",
		slog.Duration("live_interval", m.settings.LiveInterval),
		slog.Duration("offline_interval", m.settings.OfflineInterval))
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return
		case <-timer.C:
		case <-m.poke:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			m.log.Debug("forced poll")
		}
		if ev := m.pollOnce(ctx); ev != nil {
			select {
			case events <- *ev:
			case <-ctx.Done():
				m.log.Info("monitor stopped")
				return
			}
		}
		timer.Reset(m.intervalFor(m.State()))
	}
}

func (m *StreamMonitor) intervalFor(state StreamState) time.Duration {
	switch state {
	case StateLive, StatePendingOffline:
		return m.settings.LiveInterval
	default:
		return m.settings.OfflineInterval
	}
}

// pollOnce performs one bounded status check and feeds the result to the state
// machine. Returns the event the tick produced, if any.
func (m *StreamMonitor) pollOnce(ctx context.Context) *Event {
	ctx, cancel := context.WithTimeout(ctx, m.settings.Timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "monitor", "monitor.poll",
		attribute.String("account", m.account.Key()),
		attribute.String("platform", m.account.Platform))
	defer span.End()

	start := time.Now()
	sample, err := m.checker.CheckStatus(ctx, m.account.Handle)
	if telemetry.PollDuration != nil {
		telemetry.PollDuration.WithLabelValues(m.account.Platform).Observe(time.Since(start).Seconds())
	}
	if telemetry.PollsTotal != nil {
		telemetry.PollsTotal.WithLabelValues(m.account.Platform).Inc()
	}
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetSpanSuccess(span)
	}
	return m.observe(sample, err)
}

// observe advances the state machine with one sample (or one failed poll).
// A failed poll carries no information: no state change, no event.
func (m *StreamMonitor) observe(sample StatusSample, pollErr error) *Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPollAt = time.Now().UTC()

	if pollErr != nil {
		m.lastErr = pollErr
		kind := KindUnknown
		var pe *PollError
		if errors.As(pollErr, &pe) {
			kind = pe.Kind
		}
		if telemetry.PollErrorsTotal != nil {
			telemetry.PollErrorsTotal.WithLabelValues(m.account.Platform, kind.String()).Inc()
		}
		m.log.Warn("poll failed; keeping state",
			slog.String("state", m.state.String()),
			slog.String("kind", kind.String()),
			slog.Any("error", pollErr))
		return nil
	}
	m.lastErr = nil
	if sample.SampledAt.IsZero() {
		sample.SampledAt = m.lastPollAt
	}

	switch m.state {
	case StateOffline, StatePendingLive:
		if !sample.IsLive {
			if m.state == StatePendingLive {
				m.log.Info("going-live not confirmed; back to offline")
			}
			m.state = StateOffline
			m.liveStreak = 0
			return nil
		}
		m.liveStreak++
		if m.liveStreak < m.settings.LiveConfirmations {
			m.state = StatePendingLive
			m.log.Debug("live sample seen; awaiting confirmation",
				slog.Int("streak", m.liveStreak))
			return nil
		}
		m.state = StateLive
		m.liveStreak = 0
		m.offlineStreak = 0
		m.lastSample = sample
		m.liveSince = sample.SampledAt
		m.sessionID = uuid.NewString()
		if telemetry.LiveAccounts != nil {
			telemetry.LiveAccounts.Inc()
		}
		m.log.Info("stream live",
			slog.String("session", m.sessionID),
			slog.String("title", sample.Title),
			slog.Int("viewers", sample.ViewerCount))
		return m.eventLocked(EventLiveStarted)

	case StateLive:
		if sample.IsLive {
			m.lastSample = sample
			return m.eventLocked(EventLiveRefreshed)
		}
		m.offlineStreak = 1
		if m.offlineStreak >= m.settings.OfflineConfirmations {
			return m.endLocked()
		}
		m.state = StatePendingOffline
		m.log.Debug("offline sample; awaiting confirmation")
		return nil

	case StatePendingOffline:
		if sample.IsLive {
			m.state = StateLive
			m.offlineStreak = 0
			m.lastSample = sample
			m.log.Info("offline blip ignored; still live")
			return m.eventLocked(EventLiveRefreshed)
		}
		m.offlineStreak++
		if m.offlineStreak >= m.settings.OfflineConfirmations {
			return m.endLocked()
		}
		m.log.Debug("offline sample; awaiting confirmation",
			slog.Int("streak", m.offlineStreak))
		return nil
	}
	return nil
}

// endLocked emits LiveEnded and resets for the next session. Ended is a
// transient state: cleanup happens in the same tick that produced it.
func (m *StreamMonitor) endLocked() *Event {
	m.state = StateEnded
	ev := m.eventLocked(EventLiveEnded)
	if telemetry.LiveAccounts != nil {
		telemetry.LiveAccounts.Dec()
	}
	m.log.Info("stream ended",
		slog.String("session", m.sessionID),
		slog.Duration("live_for", time.Since(m.liveSince).Round(time.Second)))
	m.state = StateOffline
	m.liveStreak = 0
	m.offlineStreak = 0
	m.liveSince = time.Time{}
	m.sessionID = ""
	return ev
}

func (m *StreamMonitor) eventLocked(t EventType) *Event {
	if telemetry.EventsTotal != nil {
		telemetry.EventsTotal.WithLabelValues(t.String()).Inc()
	}
	return &Event{
		Type:      t,
		Account:   m.account,
		Sample:    m.lastSample,
		SessionID: m.sessionID,
		LiveSince: m.liveSince,
	}
}
