// Package announce turns stream lifecycle events into social platform posts.
// The Coordinator consumes per-account event queues, applies the configured
// threading policy, and fans each event out to every enabled adapter with
// per-adapter failure isolation; the Tracker correlates posts across the
// stream's lifetime so refreshes edit and ends close the right post.
package announce

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/stream-herald/config"
	"github.com/onnwee/stream-herald/monitor"
	"github.com/onnwee/stream-herald/telemetry"
)

// Renderer produces the announcement body for one event on one social
// platform. Implementations never fail; they fall back internally.
type Renderer interface {
	Render(ctx context.Context, account config.Account, ev monitor.Event, platform string) string
}

// Recorder receives audit hooks for the optional history store. All methods
// must be safe for concurrent use; failures are the implementation's problem
// and must never propagate.
type Recorder interface {
	RecordSessionStart(ctx context.Context, ev monitor.Event)
	RecordSessionEnd(ctx context.Context, ev monitor.Event, peakViewers int)
	RecordPost(ctx context.Context, ev monitor.Event, adapter, operation string, postErr error)
}

// Coordinator owns the announcement side of the pipeline. Run one Consume
// goroutine per account channel: events for one account are handled strictly
// in order while accounts proceed in parallel, and the per-event adapter
// fan-out is concurrent and awaited.
type Coordinator struct {
	policy    Policy
	adapters  []SocialAdapter
	renderer  Renderer
	tracker   *Tracker
	lifecycle *Lifecycle
	recorder  Recorder
	log       *slog.Logger

	mu    sync.Mutex
	live  map[string]*liveInfo
	batch *endBatch
}

type liveInfo struct {
	peak int
}

// endBatch buffers end announcements under single_when_all_end. remaining is
// snapshotted from the live set when the batch opens and only ever shrinks;
// accounts going live mid-batch never extend it.
type endBatch struct {
	remaining map[string]bool
	bodies    map[string][]string
	count     int
}

// New builds a coordinator. recorder may be nil.
func New(policy Policy, adapters []SocialAdapter, renderer Renderer, tracker *Tracker, recorder Recorder) *Coordinator {
	return &Coordinator{
		policy:    policy,
		adapters:  adapters,
		renderer:  renderer,
		tracker:   tracker,
		lifecycle: NewLifecycle(tracker),
		recorder:  recorder,
		log:       slog.Default().With(slog.String("component", "announce")),
		live:      make(map[string]*liveInfo),
	}
}

// Consume drains one account's event channel until ctx is cancelled or the
// channel closes.
func (c *Coordinator) Consume(ctx context.Context, events <-chan monitor.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.Handle(ctx, ev)
		}
	}
}

// Handle processes one lifecycle event end to end: policy dispatch, adapter
// fan-out, tracker bookkeeping. It returns once every adapter finished.
func (c *Coordinator) Handle(ctx context.Context, ev monitor.Event) {
	ctx = telemetry.WithCorrelation(ctx, ev.SessionID)
	ctx, span := telemetry.StartSpan(ctx, "announce", "announce.handle",
		attribute.String("event", ev.Type.String()),
		attribute.String("account", ev.Account.Key()))
	defer span.End()
	log := c.log.With(
		slog.String("event", ev.Type.String()),
		slog.String("account", ev.Account.Key()),
		slog.String("session", ev.SessionID))

	switch ev.Type {
	case monitor.EventLiveStarted:
		c.noteLive(ev)
		if c.recorder != nil {
			c.recorder.RecordSessionStart(ctx, ev)
		}
		log.Info("announcing live", slog.String("title", ev.Sample.Title))
		c.announceLive(ctx, log, ev)
	case monitor.EventLiveRefreshed:
		c.noteRefresh(ev)
		log.Debug("refreshing announcements", slog.Int("viewers", ev.Sample.ViewerCount))
		c.announceLive(ctx, log, ev)
	case monitor.EventLiveEnded:
		peak := c.noteEnded(ev)
		if c.recorder != nil {
			c.recorder.RecordSessionEnd(ctx, ev, peak)
		}
		log.Info("announcing end", slog.Int("peak_viewers", peak))
		c.announceEnd(ctx, log, ev)
	}
	telemetry.SetSpanSuccess(span)
}

func (c *Coordinator) noteLive(ev monitor.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live[ev.Account.Key()] = &liveInfo{peak: ev.Sample.ViewerCount}
}

func (c *Coordinator) noteRefresh(ev monitor.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.live[ev.Account.Key()]
	if !ok {
		info = &liveInfo{}
		c.live[ev.Account.Key()] = info
	}
	if ev.Sample.ViewerCount > info.peak {
		info.peak = ev.Sample.ViewerCount
	}
}

// noteEnded removes the account from the live set and returns the peak viewer
// count observed across the session.
func (c *Coordinator) noteEnded(ev monitor.Event) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	peak := ev.Sample.ViewerCount
	if info := c.live[ev.Account.Key()]; info != nil && info.peak > peak {
		peak = info.peak
	}
	delete(c.live, ev.Account.Key())
	return peak
}

// announceLive handles LiveStarted and LiveRefreshed. Both run the same
// ensure path: a missing record means the create failed earlier and is
// retried now.
func (c *Coordinator) announceLive(ctx context.Context, log *slog.Logger, ev monitor.Event) {
	meta := buildMeta(ev, false)
	asRoot := c.policy.End == EndThread
	op := "live"
	if ev.Type == monitor.EventLiveRefreshed {
		op = "refresh"
	}
	var wg sync.WaitGroup
	for _, adapter := range c.adapters {
		wg.Add(1)
		go func(a SocialAdapter) {
			defer wg.Done()
			body := c.renderer.Render(ctx, ev.Account, ev, a.Name())
			var err error
			if c.policy.Live == LiveCombined {
				err = c.combinedUpsert(ctx, a, ev, body)
			} else {
				key := Key(ev.Account.Key(), a.Name())
				unlock := c.tracker.Lock(key)
				err = c.lifecycle.EnsureLive(ctx, a, key, body, meta, asRoot)
				unlock()
			}
			if err != nil {
				log.Error("announcement failed",
					slog.String("adapter", a.Name()),
					slog.Any("error", err))
			}
			if c.recorder != nil && ev.Type == monitor.EventLiveStarted {
				c.recorder.RecordPost(ctx, ev, a.Name(), op, err)
			}
		}(adapter)
	}
	wg.Wait()
}

func (c *Coordinator) announceEnd(ctx context.Context, log *slog.Logger, ev monitor.Event) {
	if c.policy.End == EndDisabled {
		c.evictRecords(ev)
		log.Debug("end announcements disabled; records dropped")
		return
	}
	meta := buildMeta(ev, true)
	bodies := make(map[string]string, len(c.adapters))
	for _, a := range c.adapters {
		bodies[a.Name()] = c.renderer.Render(ctx, ev.Account, ev, a.Name())
	}
	var wg sync.WaitGroup
	for _, adapter := range c.adapters {
		wg.Add(1)
		go func(a SocialAdapter) {
			defer wg.Done()
			err := c.endOne(ctx, log, a, ev, bodies[a.Name()], meta)
			if err != nil {
				log.Error("end announcement failed",
					slog.String("adapter", a.Name()),
					slog.Any("error", err))
			}
			if c.recorder != nil {
				c.recorder.RecordPost(ctx, ev, a.Name(), "end", err)
			}
		}(adapter)
	}
	wg.Wait()
	if c.policy.End == EndSingleWhenAll {
		c.advanceBatch(ctx, log, ev, bodies)
	}
	if c.policy.End != EndCombined {
		c.evictRecords(ev)
	}
}

// endOne applies the end mode for a single adapter. The close itself is
// capability-aware; what happens after depends on the mode.
func (c *Coordinator) endOne(ctx context.Context, log *slog.Logger, a SocialAdapter, ev monitor.Event, body string, meta PostMeta) error {
	if c.policy.End == EndCombined {
		return c.combinedEnd(ctx, a, ev, body)
	}
	key := Key(ev.Account.Key(), a.Name())
	unlock := c.tracker.Lock(key)
	defer unlock()
	outcome, rec, err := c.lifecycle.Close(ctx, a, key, body, meta)
	if err != nil {
		return err
	}
	log.Debug("announcement closed",
		slog.String("adapter", a.Name()),
		slog.String("outcome", outcome.String()))
	switch c.policy.End {
	case EndSeparate:
		if outcome == CloseNoEdit {
			_, err := doCreate(ctx, a, body, meta)
			return err
		}
	case EndThread:
		if outcome == CloseCreated || outcome == CloseAlreadyClosed {
			return nil
		}
		if a.Capabilities().SupportsReply {
			root := rec.ThreadRootID
			if root == "" {
				root = rec.PostID
			}
			_, err := doReply(ctx, a, root, body, meta)
			return err
		}
		if outcome == CloseNoEdit {
			_, err := doCreate(ctx, a, body, meta)
			return err
		}
	case EndSingleWhenAll:
		// The textual announcement waits for the batch summary.
	}
	return nil
}

// evictRecords drops this account's tracker entries once the end fan-out is
// done. Under a combined live policy the account's member line is removed
// instead, and the shared record goes with the last line.
func (c *Coordinator) evictRecords(ev monitor.Event) {
	for _, a := range c.adapters {
		if c.policy.Live == LiveCombined {
			key := CombinedKey(a.Name())
			unlock := c.tracker.Lock(key)
			if rec, ok := c.tracker.Get(key); ok {
				delete(rec.Members, ev.Account.Key())
				if len(rec.Members) == 0 {
					c.tracker.Remove(key)
				} else {
					c.tracker.Put(key, rec)
				}
			}
			unlock()
			continue
		}
		key := Key(ev.Account.Key(), a.Name())
		unlock := c.tracker.Lock(key)
		c.tracker.Remove(key)
		unlock()
	}
}

// combinedUpsert adds or refreshes this account's line in the platform's
// shared post, creating the post when it does not exist yet.
func (c *Coordinator) combinedUpsert(ctx context.Context, a SocialAdapter, ev monitor.Event, line string) error {
	key := CombinedKey(a.Name())
	unlock := c.tracker.Lock(key)
	defer unlock()
	rec, ok := c.tracker.Get(key)
	if ok && rec.Closed {
		c.log.Error("update arrived for a closed combined post; dropping",
			slog.String("adapter", a.Name()),
			slog.String("account", ev.Account.Key()))
		return nil
	}
	if !ok {
		rec = Record{Members: map[string]string{ev.Account.Key(): line}}
		id, err := doCreate(ctx, a, joinMembers(rec.Members), PostMeta{})
		if err != nil {
			return err
		}
		rec.PostID = id
		rec.PeakViewers = ev.Sample.ViewerCount
		rec.LastUpdatedAt = time.Now().UTC()
		c.tracker.Put(key, rec)
		return nil
	}
	if rec.Members == nil {
		rec.Members = make(map[string]string)
	}
	rec.Members[ev.Account.Key()] = line
	if ev.Sample.ViewerCount > rec.PeakViewers {
		rec.PeakViewers = ev.Sample.ViewerCount
	}
	if !a.Capabilities().SupportsEdit {
		c.tracker.Put(key, rec)
		return nil
	}
	err := doUpdate(ctx, a, rec.PostID, joinMembers(rec.Members), PostMeta{})
	if err == nil {
		rec.LastUpdatedAt = time.Now().UTC()
	}
	c.tracker.Put(key, rec)
	return err
}

// combinedEnd removes this account's line. While other accounts remain live
// the shared post is updated; when the last line goes, the post is closed.
func (c *Coordinator) combinedEnd(ctx context.Context, a SocialAdapter, ev monitor.Event, body string) error {
	key := CombinedKey(a.Name())
	unlock := c.tracker.Lock(key)
	defer unlock()
	rec, ok := c.tracker.Get(key)
	if !ok {
		return nil
	}
	delete(rec.Members, ev.Account.Key())
	if len(rec.Members) > 0 {
		if !a.Capabilities().SupportsEdit {
			c.tracker.Put(key, rec)
			return nil
		}
		err := doUpdate(ctx, a, rec.PostID, joinMembers(rec.Members), PostMeta{})
		if err == nil {
			rec.LastUpdatedAt = time.Now().UTC()
		}
		c.tracker.Put(key, rec)
		return err
	}
	c.tracker.Remove(key)
	if !a.Capabilities().SupportsEdit {
		_, err := doCreate(ctx, a, body, PostMeta{IsFinal: true})
		return err
	}
	return doClose(ctx, a, rec.PostID, body, PostMeta{IsFinal: true})
}

// advanceBatch records one ended account under single_when_all_end and
// flushes the summary once every account live at batch start has ended.
func (c *Coordinator) advanceBatch(ctx context.Context, log *slog.Logger, ev monitor.Event, bodies map[string]string) {
	c.mu.Lock()
	if c.batch == nil {
		remaining := make(map[string]bool, len(c.live))
		for k := range c.live {
			remaining[k] = true
		}
		c.batch = &endBatch{
			remaining: remaining,
			bodies:    make(map[string][]string, len(c.adapters)),
		}
		log.Info("end batch opened", slog.Int("awaiting", len(remaining)))
	}
	delete(c.batch.remaining, ev.Account.Key())
	for name, body := range bodies {
		c.batch.bodies[name] = append(c.batch.bodies[name], body)
	}
	c.batch.count++
	var flush *endBatch
	if len(c.batch.remaining) == 0 {
		flush = c.batch
		c.batch = nil
	}
	c.mu.Unlock()
	if flush != nil {
		c.flushBatch(ctx, log, ev, flush)
	}
}

// flushBatch posts exactly one summary per adapter for a completed batch.
func (c *Coordinator) flushBatch(ctx context.Context, log *slog.Logger, ev monitor.Event, b *endBatch) {
	var wg sync.WaitGroup
	for _, adapter := range c.adapters {
		wg.Add(1)
		go func(a SocialAdapter) {
			defer wg.Done()
			body := strings.Join(b.bodies[a.Name()], "\n\n")
			if body == "" {
				return
			}
			_, err := doCreate(ctx, a, body, PostMeta{IsFinal: true})
			if err != nil {
				log.Error("summary post failed",
					slog.String("adapter", a.Name()),
					slog.Any("error", err))
			}
			if c.recorder != nil {
				c.recorder.RecordPost(ctx, ev, a.Name(), "summary", err)
			}
		}(adapter)
	}
	wg.Wait()
	if telemetry.EndBatchesTotal != nil {
		telemetry.EndBatchesTotal.Inc()
	}
	log.Info("end batch flushed", slog.Int("accounts", b.count))
}

// Policy returns the active threading policy.
func (c *Coordinator) Policy() Policy { return c.policy }

func buildMeta(ev monitor.Event, final bool) PostMeta {
	m := PostMeta{
		AccountName:  ev.Account.Display(),
		AccountURL:   ev.Account.WatchURL(),
		Platform:     ev.Account.Platform,
		Title:        ev.Sample.Title,
		Category:     ev.Sample.Category,
		ViewerCount:  ev.Sample.ViewerCount,
		ThumbnailURL: ev.Sample.ThumbnailURL,
		StartedAt:    ev.LiveSince,
		IsFinal:      final,
	}
	if final && !ev.LiveSince.IsZero() && ev.Sample.SampledAt.After(ev.LiveSince) {
		m.Duration = ev.Sample.SampledAt.Sub(ev.LiveSince)
	}
	return m
}

// joinMembers renders the shared combined body from each account's line,
// ordered by account key for stable output.
func joinMembers(members map[string]string) string {
	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, members[k])
	}
	return strings.Join(lines, "\n\n")
}
