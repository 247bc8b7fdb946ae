// Package blueskyapi publishes announcements as Bluesky posts over XRPC.
// Records are immutable once created, so the adapter supports replies but not
// edits; refreshes degrade to no-ops and ends become replies or fresh posts.
package blueskyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"github.com/onnwee/stream-herald/announce"
)

// Adapter implements announce.SocialAdapter against a PDS host.
type Adapter struct {
	Host        string
	Identifier  string
	AppPassword string
	HTTPClient  *http.Client
	log         *slog.Logger

	mu      sync.Mutex
	session *session
}

type session struct {
	DID       string `json:"did"`
	AccessJWT string `json:"accessJwt"`
}

// New builds a Bluesky adapter. The session is created lazily on first use
// and recreated when the server rejects the token.
func New(host, identifier, appPassword string) *Adapter {
	return &Adapter{
		Host:        strings.TrimSuffix(host, "/"),
		Identifier:  identifier,
		AppPassword: appPassword,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		log:         slog.Default().With(slog.String("component", "bluesky")),
	}
}

func (a *Adapter) Name() string { return "bluesky" }

func (a *Adapter) Capabilities() announce.Capabilities {
	return announce.Capabilities{SupportsEdit: false, SupportsReply: true}
}

// postRef is the pair of identifiers one created record yields. The adapter
// packs both into the PostID string ("uri|cid") so reply refs can be rebuilt
// without extra network calls.
type postRef struct {
	URI string
	CID string
}

func encodeRef(r postRef) string { return r.URI + "|" + r.CID }

func decodeRef(id string) (postRef, error) {
	uri, cid, ok := strings.Cut(id, "|")
	if !ok {
		return postRef{}, fmt.Errorf("malformed post id %q", id)
	}
	return postRef{URI: uri, CID: cid}, nil
}

// CreatePost creates a feed post record.
func (a *Adapter) CreatePost(ctx context.Context, body string, _ announce.PostMeta) (string, error) {
	ref, err := a.createRecord(ctx, "create", body, nil)
	if err != nil {
		return "", err
	}
	return encodeRef(ref), nil
}

// UpdatePost is unsupported; records cannot be edited.
func (a *Adapter) UpdatePost(_ context.Context, _, _ string, _ announce.PostMeta) error {
	return announce.NewPostError(a.Name(), "update", 0, errors.New("bluesky records cannot be edited"))
}

// ClosePost is unsupported for the same reason; the coordinator's capability
// handling never calls it.
func (a *Adapter) ClosePost(_ context.Context, _, _ string, _ announce.PostMeta) error {
	return announce.NewPostError(a.Name(), "close", 0, errors.New("bluesky records cannot be edited"))
}

// CreateReply creates a post whose reply refs point at the thread root.
func (a *Adapter) CreateReply(ctx context.Context, rootPostID, body string, _ announce.PostMeta) (string, error) {
	root, err := decodeRef(rootPostID)
	if err != nil {
		return "", announce.NewPostError(a.Name(), "reply", 0, err)
	}
	ref, err := a.createRecord(ctx, "reply", body, &root)
	if err != nil {
		return "", err
	}
	return encodeRef(ref), nil
}

func (a *Adapter) createRecord(ctx context.Context, op, body string, replyTo *postRef) (postRef, error) {
	var ref postRef
	err := retry.Do(
		func() error {
			sess, err := a.ensureSession(ctx)
			if err != nil {
				return err
			}
			record := map[string]interface{}{
				"$type":     "app.bsky.feed.post",
				"text":      body,
				"createdAt": time.Now().UTC().Format(time.RFC3339),
			}
			if replyTo != nil {
				ref := map[string]string{"uri": replyTo.URI, "cid": replyTo.CID}
				record["reply"] = map[string]interface{}{"root": ref, "parent": ref}
			}
			payload := map[string]interface{}{
				"repo":       sess.DID,
				"collection": "app.bsky.feed.post",
				"record":     record,
			}
			data, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost,
				a.Host+"/xrpc/com.atproto.repo.createRecord", bytes.NewReader(data))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+sess.AccessJWT)
			resp, err := a.HTTPClient.Do(req)
			if err != nil {
				return err
			}
			defer closeBody(resp)
			if resp.StatusCode == http.StatusUnauthorized {
				a.dropSession()
				return &xrpcError{status: resp.StatusCode, body: "session expired"}
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return readErr(resp)
			}
			var out struct {
				URI string `json:"uri"`
				CID string `json:"cid"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			ref = postRef{URI: out.URI, CID: out.CID}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(15*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			a.log.Info("retrying bluesky call", slog.String("op", op), slog.Uint64("attempt", uint64(n)), slog.Any("error", err))
		}),
		retry.RetryIf(func(err error) bool {
			s := xrpcStatus(err)
			// 401 retries once with a fresh session
			return s == 0 || s == http.StatusUnauthorized || s == http.StatusTooManyRequests || s >= 500
		}),
	)
	if err != nil {
		return postRef{}, announce.NewPostError(a.Name(), op, xrpcStatus(err), err)
	}
	return ref, nil
}

// ensureSession logs in with the app password when no session is cached.
func (a *Adapter) ensureSession(ctx context.Context) (session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return *a.session, nil
	}
	payload := map[string]string{
		"identifier": a.Identifier,
		"password":   a.AppPassword,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.Host+"/xrpc/com.atproto.server.createSession", bytes.NewReader(data))
	if err != nil {
		return session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return session{}, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return session{}, readErr(resp)
	}
	var sess session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return session{}, err
	}
	if sess.AccessJWT == "" || sess.DID == "" {
		return session{}, errors.New("incomplete session response")
	}
	a.session = &sess
	a.log.Debug("bluesky session created", slog.String("did", sess.DID))
	return sess, nil
}

func (a *Adapter) dropSession() {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
}

type xrpcError struct {
	status int
	body   string
}

func (e *xrpcError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func readErr(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &xrpcError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
}

func xrpcStatus(err error) int {
	var xe *xrpcError
	if errors.As(err, &xe) {
		return xe.status
	}
	return 0
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
