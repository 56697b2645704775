package webhook

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/graphsync/internal/graph"
	"github.com/tonimelisma/graphsync/internal/subscription"
	"github.com/tonimelisma/graphsync/internal/sync"
)

// fakeSubscriber records create requests.
type fakeSubscriber struct {
	mu    stdsync.Mutex
	reqs  []subscription.CreateRequest
	subs  []subscription.Subscription
	err   error
	state string
}

func (f *fakeSubscriber) Create(_ context.Context, req subscription.CreateRequest) (subscription.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return subscription.Subscription{}, f.err
	}

	sub := subscription.Subscription{
		ID:              "sub-1",
		Resource:        req.Resource,
		ChangeType:      req.ChangeType,
		NotificationURL: req.NotificationURL,
		ExpiresAt:       time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC),
		ClientState:     f.state,
	}
	f.subs = append(f.subs, sub)

	return sub, nil
}

func (f *fakeSubscriber) List() []subscription.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]subscription.Subscription(nil), f.subs...)
}

func (f *fakeSubscriber) VerifyClientState(_, clientState string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return clientState != "" && clientState == f.state
}

// mapView is an in-memory ObjectStore.
type mapView map[string]sync.Object

func (m mapView) Count(context.Context) (int, error) { return len(m), nil }

func (m mapView) Get(_ context.Context, id string) (sync.Object, bool, error) {
	obj, ok := m[id]
	return obj, ok, nil
}

func testServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		WebhookPath:     "/webhook",
		NotificationURL: "https://example.com/webhook",
		Resource:        "users",
		ChangeType:      "updated,deleted",
		Lifetime:        5 * time.Minute,
	}
}

func TestServer_Subscribe(t *testing.T) {
	subs := &fakeSubscriber{state: "SecretClientState"}
	srv := NewServer(testServerConfig(), subs, &fakeSyncer{}, nil, nil, testLogger(t))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/subscribe")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "sub-1", body["id"])
	assert.Equal(t, "2024-01-01T12:05:00Z", body["expiresAt"])
	assert.NotContains(t, body, "clientState")

	require.Len(t, subs.reqs, 1)
	assert.Equal(t, subscription.CreateRequest{
		Resource:        "users",
		ChangeType:      "updated,deleted",
		NotificationURL: "https://example.com/webhook",
		Lifetime:        5 * time.Minute,
	}, subs.reqs[0])
}

func TestServer_SubscribeFailureStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", graph.ErrAuth, http.StatusServiceUnavailable},
		{"remote", &graph.GraphError{StatusCode: 400, Err: graph.ErrBadRequest}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(testServerConfig(), &fakeSubscriber{err: tt.err}, &fakeSyncer{}, nil, nil, testLogger(t))

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subscribe", nil))

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestServer_WebhookRoute(t *testing.T) {
	subs := &fakeSubscriber{state: "SecretClientState"}
	syncer := &fakeSyncer{}
	srv := NewServer(testServerConfig(), subs, syncer, nil, nil, testLogger(t))
	h := srv.Handler()

	rec := post(t, h, "/webhook?validationToken=tok", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", rec.Body.String())

	rec = post(t, h, "/webhook", exampleBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), syncer.calls.Load())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_SubscriptionsAndStatus(t *testing.T) {
	subs := &fakeSubscriber{state: "s"}
	syncer := &fakeSyncer{hasCursor: true}
	view := mapView{"a": {ID: "a"}, "b": {ID: "b"}, "c": {ID: "c"}}
	srv := NewServer(testServerConfig(), subs, syncer, nil, view, testLogger(t))
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subscribe", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subscriptions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"s"`, "client state is never listed")

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "sub-1", list[0]["id"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.CursorPresent)
	assert.Equal(t, 1, status.Subscriptions)
	require.NotNil(t, status.Objects)
	assert.Equal(t, 3, *status.Objects)
	assert.Nil(t, status.LastSync, "no walk yet")
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	srv := NewServer(testServerConfig(), &fakeSubscriber{}, &fakeSyncer{}, nil, nil, testLogger(t))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- srv.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_DefaultWebhookPath(t *testing.T) {
	cfg := testServerConfig()
	cfg.WebhookPath = ""

	srv := NewServer(cfg, &fakeSubscriber{state: "s"}, &fakeSyncer{}, nil, nil, testLogger(t))

	rec := post(t, srv.Handler(), "/webhook?validationToken=x", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "x"))
}

func TestServer_Object(t *testing.T) {
	synced := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	view := mapView{"u1": {ID: "u1", Attributes: map[string]string{"displayName": "Ada"}, SyncedAt: synced}}
	h := NewServer(testServerConfig(), &fakeSubscriber{}, &fakeSyncer{}, nil, view, testLogger(t)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/objects/u1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var obj sync.Object
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obj))
	assert.Equal(t, view["u1"], obj)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/objects/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ObjectWithoutView(t *testing.T) {
	h := NewServer(testServerConfig(), &fakeSubscriber{}, &fakeSyncer{}, nil, nil, testLogger(t)).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/objects/u1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
