package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/graphsync/internal/graph"
	"github.com/tonimelisma/graphsync/internal/sync"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeSyncer counts syncs and returns a canned outcome.
type fakeSyncer struct {
	calls  atomic.Int32
	result sync.Result
	err    error

	mu        stdsync.Mutex
	ctxErr    error
	hasCursor bool
}

func (f *fakeSyncer) SyncFromCursor(ctx context.Context) (sync.Result, error) {
	f.calls.Add(1)

	f.mu.Lock()
	f.ctxErr = ctx.Err()
	f.mu.Unlock()

	return f.result, f.err
}

func (f *fakeSyncer) Cursor() (string, bool) {
	return "", f.hasCursor
}

func (f *fakeSyncer) LastResult() (sync.Result, error) {
	return f.result, f.err
}

func (f *fakeSyncer) Stats() sync.EngineStats {
	return sync.EngineStats{Walks: int64(f.calls.Load())}
}

// secretVerifier accepts exactly one client state.
type secretVerifier string

func (v secretVerifier) VerifyClientState(_, clientState string) bool {
	return clientState != "" && clientState == string(v)
}

const exampleBody = `{"value":[{"resource":"Users/123","clientState":"SecretClientState"}]}`

func post(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestDispatcher_ValidationEchoesToken(t *testing.T) {
	syncer := &fakeSyncer{}
	d := NewDispatcher(syncer, secretVerifier("SecretClientState"), testLogger(t))

	rec := post(t, d, "/webhook?validationToken=abc%20123", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc 123", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Zero(t, syncer.calls.Load())
	assert.Equal(t, int64(1), d.Stats().Validations)
}

func TestDispatcher_ValidationEmptyToken(t *testing.T) {
	syncer := &fakeSyncer{}
	d := NewDispatcher(syncer, secretVerifier("s"), testLogger(t))

	rec := post(t, d, "/webhook?validationToken=", exampleBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Zero(t, syncer.calls.Load(), "validation mode never syncs")
}

func TestDispatcher_NotificationTriggersOneSync(t *testing.T) {
	syncer := &fakeSyncer{result: sync.Result{ItemsProcessed: 7}}
	d := NewDispatcher(syncer, secretVerifier("SecretClientState"), testLogger(t))

	rec := post(t, d, "/webhook", exampleBody)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), syncer.calls.Load())

	var resp DeliveryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, DeliveryResponse{Accepted: 1, ItemsProcessed: 7}, resp)
}

func TestDispatcher_ManyItemsStillOneSync(t *testing.T) {
	syncer := &fakeSyncer{}
	d := NewDispatcher(syncer, secretVerifier("s"), testLogger(t))

	body := `{"value":[
		{"subscriptionId":"a","clientState":"s","resource":"Users/1","resourceData":{"id":"1"}},
		{"subscriptionId":"a","clientState":"s","resource":"Users/2","resourceData":{"id":"2"}},
		{"subscriptionId":"a","clientState":"wrong","resource":"Users/3"}
	]}`

	rec := post(t, d, "/webhook", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), syncer.calls.Load())

	var resp DeliveryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, 1, resp.Ignored)
}

func TestDispatcher_AllItemsIgnored(t *testing.T) {
	syncer := &fakeSyncer{}
	d := NewDispatcher(syncer, secretVerifier("s"), testLogger(t))

	rec := post(t, d, "/webhook", `{"value":[{"clientState":"forged"},{}]}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Zero(t, syncer.calls.Load())
	assert.Equal(t, int64(2), d.Stats().Ignored)
}

func TestDispatcher_EmptyCollection(t *testing.T) {
	syncer := &fakeSyncer{}
	d := NewDispatcher(syncer, secretVerifier("s"), testLogger(t))

	rec := post(t, d, "/webhook", `{"value":[]}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Zero(t, syncer.calls.Load())
}

func TestDispatcher_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"empty body", ""},
		{"truncated", `{"value":[`},
		{"no value array", `{"foo":1}`},
		{"value not array", `{"value":"x"}`},
		{"trailing garbage", `{"value":[]}xyz`},
		{"second document", `{"value":[]} {"value":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncer{}
			d := NewDispatcher(syncer, secretVerifier("s"), testLogger(t))

			rec := post(t, d, "/webhook", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, syncer.calls.Load())
			assert.Equal(t, int64(1), d.Stats().Malformed)
		})
	}
}

func TestDispatcher_OversizedBody(t *testing.T) {
	syncer := &fakeSyncer{}
	d := NewDispatcher(syncer, secretVerifier("s"), testLogger(t))

	body := `{"value":[{"clientState":"s","resource":"` + strings.Repeat("x", maxNotificationBytes) + `"}]}`
	rec := post(t, d, "/webhook", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, syncer.calls.Load())
}

func TestDispatcher_SyncFailureStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"remote failure", &graph.GraphError{StatusCode: 500, Err: graph.ErrServerError}, http.StatusBadGateway},
		{"auth failure", graph.ErrAuth, http.StatusServiceUnavailable},
		{"unauthorized", &graph.GraphError{StatusCode: 401, Err: graph.ErrUnauthorized}, http.StatusServiceUnavailable},
		{"other", errors.New("sink broke"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &fakeSyncer{err: tt.err}
			d := NewDispatcher(syncer, secretVerifier("SecretClientState"), testLogger(t))

			rec := post(t, d, "/webhook", exampleBody)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, int64(1), d.Stats().SyncFailures)
		})
	}
}

func TestDispatcher_SyncSurvivesClientCancel(t *testing.T) {
	syncer := &fakeSyncer{}
	d := NewDispatcher(syncer, secretVerifier("SecretClientState"), testLogger(t))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	req := httptest.NewRequestWithContext(ctx, http.MethodPost, "/webhook", strings.NewReader(exampleBody))
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)

	assert.Equal(t, int32(1), syncer.calls.Load())

	syncer.mu.Lock()
	defer syncer.mu.Unlock()

	assert.NoError(t, syncer.ctxErr, "sync context is detached from the request")
}

func TestDecodeNotifications(t *testing.T) {
	got, err := decodeNotifications(strings.NewReader(
		`{"value":[{"subscriptionId":"sub-1","clientState":"c","changeType":"updated",` +
			`"resource":"Users/9","tenantId":"t","resourceData":{"id":"9","@odata.type":"#Microsoft.Graph.User"}}]}`,
	))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, Notification{
		SubscriptionID: "sub-1",
		ClientState:    "c",
		ChangeType:     "updated",
		Resource:       "Users/9",
		TenantID:       "t",
		ResourceData:   ResourceData{ID: "9"},
	}, got[0])

	_, err = decodeNotifications(strings.NewReader("[]"))
	assert.ErrorIs(t, err, ErrMalformedNotification)

	_, err = decodeNotifications(strings.NewReader(`{"value":[]}xyz`))
	assert.ErrorIs(t, err, ErrMalformedNotification)

	got, err = decodeNotifications(strings.NewReader("{\"value\":[]}\n"))
	require.NoError(t, err, "trailing whitespace is fine")
	assert.Empty(t, got)
}
