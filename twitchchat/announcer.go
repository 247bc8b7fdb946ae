// Package twitchchat announces into a Twitch channel's chat over IRC. The
// adapter is create-only: chat messages cannot be edited or threaded, so
// refreshes are no-ops and ends produce a fresh line only when the policy asks
// for one.
package twitchchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/stream-herald/announce"
)

// Announcer implements announce.SocialAdapter by Saying into one channel.
type Announcer struct {
	channel string
	client  *twitch.Client
	log     *slog.Logger

	mu        sync.Mutex
	connected bool
	connErr   error
	ready     chan struct{}
	seq       int
}

// New builds the chat announcer. Connect must be called before any posts.
func New(channel, username, oauthToken string) *Announcer {
	return &Announcer{
		channel: channel,
		client:  twitch.NewClient(username, oauthToken),
		log: slog.Default().With(
			slog.String("component", "twitchchat"),
			slog.String("channel", channel)),
		ready: make(chan struct{}),
	}
}

// Connect joins the channel and maintains the IRC connection until ctx is
// cancelled. Runs on its own goroutine; Connect blocks.
func (a *Announcer) Connect(ctx context.Context) {
	a.client.OnConnect(func() {
		a.mu.Lock()
		if !a.connected {
			a.connected = true
			close(a.ready)
		}
		a.mu.Unlock()
		a.log.Info("chat connected")
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		a.client.Disconnect()
		close(done)
	}()

	a.client.Join(a.channel)
	if err := a.client.Connect(); err != nil && ctx.Err() == nil {
		a.mu.Lock()
		a.connErr = err
		if !a.connected {
			a.connected = true
			close(a.ready)
		}
		a.mu.Unlock()
		a.log.Error("chat connect error", slog.Any("err", err))
	}
	<-done
	a.log.Info("chat disconnected")
}

func (a *Announcer) Name() string { return "twitchchat" }

func (a *Announcer) Capabilities() announce.Capabilities {
	return announce.Capabilities{SupportsEdit: false, SupportsReply: false}
}

// CreatePost says the body into the channel. Chat has no message handle the
// bot could use later, so the returned ID is a local sequence number kept only
// to satisfy the tracker.
func (a *Announcer) CreatePost(ctx context.Context, body string, _ announce.PostMeta) (string, error) {
	if err := a.await(ctx); err != nil {
		return "", announce.NewPostError(a.Name(), "create", 0, err)
	}
	a.client.Say(a.channel, body)
	a.mu.Lock()
	a.seq++
	id := fmt.Sprintf("chat-%d", a.seq)
	a.mu.Unlock()
	return id, nil
}

func (a *Announcer) UpdatePost(_ context.Context, _, _ string, _ announce.PostMeta) error {
	return announce.NewPostError(a.Name(), "update", 0, errors.New("chat messages cannot be edited"))
}

func (a *Announcer) ClosePost(_ context.Context, _, _ string, _ announce.PostMeta) error {
	return announce.NewPostError(a.Name(), "close", 0, errors.New("chat messages cannot be edited"))
}

func (a *Announcer) CreateReply(_ context.Context, _, _ string, _ announce.PostMeta) (string, error) {
	return "", announce.NewPostError(a.Name(), "reply", 0, errors.New("chat messages cannot be threaded"))
}

// await blocks until the IRC connection is up, the context expires, or the
// connection attempt already failed.
func (a *Announcer) await(ctx context.Context) error {
	select {
	case <-a.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return errors.New("chat connection not ready")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connErr
}
