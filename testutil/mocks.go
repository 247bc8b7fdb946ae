// Package testutil provides shared test fakes: an HTTP platform-API mock and
// an in-memory social adapter that records every call.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/onnwee/stream-herald/announce"
)

// MockPlatformServer is a test server with per-path handlers, used to fake
// streaming or social platform APIs.
type MockPlatformServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockPlatformServer creates a mock API server. Unregistered paths 404.
func NewMockPlatformServer(t *testing.T) *MockPlatformServer {
	t.Helper()
	m := &MockPlatformServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockJSON registers a handler returning the given value as JSON.
func (m *MockPlatformServer) MockJSON(path string, v interface{}) {
	m.Handlers[path] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
	}
}

// MockStatus registers a handler returning a bare status code.
func (m *MockPlatformServer) MockStatus(path string, status int) {
	m.Handlers[path] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}
}

// AdapterCall is one recorded operation against the mock social adapter.
type AdapterCall struct {
	Op     string // create, update, close, reply
	PostID string // target for update/close, root for reply
	Body   string
	Meta   announce.PostMeta
}

// MockSocialAdapter implements announce.SocialAdapter in memory. Error fields
// make the next matching call fail; Calls records every attempt.
type MockSocialAdapter struct {
	AdapterName string
	Caps        announce.Capabilities

	mu        sync.Mutex
	Calls     []AdapterCall
	nextID    int
	CreateErr error
	UpdateErr error
	CloseErr  error
	ReplyErr  error
}

// NewMockSocialAdapter builds a mock with full edit+reply capabilities.
func NewMockSocialAdapter(name string) *MockSocialAdapter {
	return &MockSocialAdapter{
		AdapterName: name,
		Caps:        announce.Capabilities{SupportsEdit: true, SupportsReply: true},
	}
}

func (m *MockSocialAdapter) Name() string { return m.AdapterName }

func (m *MockSocialAdapter) Capabilities() announce.Capabilities { return m.Caps }

func (m *MockSocialAdapter) CreatePost(_ context.Context, body string, meta announce.PostMeta) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, AdapterCall{Op: "create", Body: body, Meta: meta})
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.nextID++
	return fmt.Sprintf("%s-post-%d", m.AdapterName, m.nextID), nil
}

func (m *MockSocialAdapter) UpdatePost(_ context.Context, postID, body string, meta announce.PostMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, AdapterCall{Op: "update", PostID: postID, Body: body, Meta: meta})
	return m.UpdateErr
}

func (m *MockSocialAdapter) ClosePost(_ context.Context, postID, body string, meta announce.PostMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, AdapterCall{Op: "close", PostID: postID, Body: body, Meta: meta})
	return m.CloseErr
}

func (m *MockSocialAdapter) CreateReply(_ context.Context, rootPostID, body string, meta announce.PostMeta) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, AdapterCall{Op: "reply", PostID: rootPostID, Body: body, Meta: meta})
	if m.ReplyErr != nil {
		return "", m.ReplyErr
	}
	m.nextID++
	return fmt.Sprintf("%s-post-%d", m.AdapterName, m.nextID), nil
}

// CallsByOp returns the recorded calls matching op.
func (m *MockSocialAdapter) CallsByOp(op string) []AdapterCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AdapterCall
	for _, c := range m.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// SetCreateErr updates the create failure under the lock.
func (m *MockSocialAdapter) SetCreateErr(err error) {
	m.mu.Lock()
	m.CreateErr = err
	m.mu.Unlock()
}
