package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/appknox/ak-translator/internal/language"
	"github.com/appknox/ak-translator/internal/metrics"
	"github.com/appknox/ak-translator/internal/orchestrator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConn struct {
	mu      sync.Mutex
	written []any
	fail    bool
	closed  atomic.Bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func TestRegistry_ConnectSendDisconnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := NewRegistry(nil, m)
	conn := &fakeConn{}

	r.Connect("a", conn)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnections))

	require.NoError(t, r.Send("a", map[string]string{"type": "pong"}))
	assert.Equal(t, 1, conn.count())

	assert.True(t, r.Disconnect("a"))
	assert.False(t, r.Disconnect("a"))
	assert.True(t, conn.closed.Load())
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WSConnections))
}

func TestRegistry_SendToUnknownClient(t *testing.T) {
	r := NewRegistry(nil, nil)

	err := r.Send("ghost", "hello")
	assert.ErrorIs(t, err, ErrClientNotConnected)
	assert.NoError(t, r.Notify(context.Background(), "ghost", orchestrator.Event{Type: orchestrator.EventPong}),
		"notifying a departed client is a no-op")
}

func TestRegistry_WriteFailureDisconnects(t *testing.T) {
	r := NewRegistry(nil, nil)
	conn := &fakeConn{fail: true}
	r.Connect("a", conn)

	err := r.Send("a", "hello")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrClientNotConnected)
	assert.Equal(t, 0, r.Count())
	assert.True(t, conn.closed.Load())
}

func TestRegistry_ReconnectReplacesConnection(t *testing.T) {
	r := NewRegistry(nil, nil)
	first, second := &fakeConn{}, &fakeConn{}

	r.Connect("a", first)
	r.Connect("a", second)
	assert.True(t, first.closed.Load())
	assert.Equal(t, 1, r.Count())

	r.detach("a", first)
	assert.Equal(t, 1, r.Count(), "a stale handler must not remove its successor")

	require.NoError(t, r.Send("a", "x"))
	assert.Equal(t, 1, second.count())
}

func TestRegistry_ClientsDropsFailedWriters(t *testing.T) {
	r := NewRegistry(nil, nil)
	assert.Empty(t, r.Clients())

	b, a, c := &fakeConn{}, &fakeConn{}, &fakeConn{fail: true}
	r.Connect("b", b)
	r.Connect("a", a)
	r.Connect("c", c)
	assert.Equal(t, []string{"a", "b", "c"}, r.Clients())

	assert.Error(t, r.Send("c", "x"))
	assert.Equal(t, []string{"a", "b"}, r.Clients())
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := NewRegistry(nil, nil)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := string(rune('a' + i%5))
			r.Connect(id, &fakeConn{})
			_ = r.Send(id, i)
			if i%3 == 0 {
				r.Disconnect(id)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Count(), 5)
}

// echoDispatcher pushes a started/completed pair through the registry.
type echoDispatcher struct {
	reg  *Registry
	jobs atomic.Int32
}

func (d *echoDispatcher) Dispatch(ctx context.Context, job orchestrator.Job) (orchestrator.Summary, error) {
	d.jobs.Add(1)
	_ = d.reg.Notify(ctx, job.ClientID, orchestrator.Event{Type: orchestrator.EventMultiStarted, JobID: job.ID, TotalLanguages: len(job.Languages)})
	_ = d.reg.Notify(ctx, job.ClientID, orchestrator.Event{Type: orchestrator.EventMultiCompleted, JobID: job.ID})
	return orchestrator.Summary{JobID: job.ID}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *Handler, *echoDispatcher) {
	t.Helper()
	set, err := language.NewSet([]string{"ja", "vi"})
	require.NoError(t, err)

	reg := NewRegistry(nil, nil)
	d := &echoDispatcher{reg: reg}
	h := NewHandler(reg, d, set, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeClient(w, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))
	return srv, h, d
}

func dial(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func read(t *testing.T, conn *websocket.Conn) orchestrator.Event {
	t.Helper()
	var ev orchestrator.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHandler_Ping(t *testing.T) {
	srv, h, _ := newTestServer(t)
	defer srv.Close()
	defer h.Wait()

	conn := dial(t, srv, "client_1")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, orchestrator.EventPong, read(t, conn).Type)
}

func TestHandler_TranslateMulti(t *testing.T) {
	srv, h, d := newTestServer(t)
	defer srv.Close()
	defer h.Wait()

	conn := dial(t, srv, "client_1")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   "translate_multi",
		"text":   map[string]string{"title": "Hello"},
		"job_id": "job_42",
	}))
	started := read(t, conn)
	assert.Equal(t, orchestrator.EventMultiStarted, started.Type)
	assert.Equal(t, "job_42", started.JobID)
	assert.Equal(t, 2, started.TotalLanguages)
	assert.Equal(t, orchestrator.EventMultiCompleted, read(t, conn).Type)
	assert.Equal(t, int32(1), d.jobs.Load())
}

func TestHandler_Errors(t *testing.T) {
	srv, h, d := newTestServer(t)
	defer srv.Close()
	defer h.Wait()

	conn := dial(t, srv, "client_1")
	defer conn.Close()

	tests := []struct {
		name, payload, want string
	}{
		{"invalid json", `{"type":`, "invalid message"},
		{"unknown type", `{"type": "dance"}`, "unknown message type"},
		{"missing text", `{"type": "translate_multi"}`, "text is required"},
		{"blank text", `{"type": "translate_multi", "text": "  "}`, "text is required"},
		{"bad language", `{"type": "translate_multi", "text": "hi", "languages": ["xx-unknown"]}`, "unsupported language"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)))
			ev := read(t, conn)
			assert.Equal(t, orchestrator.EventTranslationError, ev.Type)
			assert.Contains(t, ev.Error, tt.want)
		})
	}
	assert.Equal(t, int32(0), d.jobs.Load())
}

func TestHandler_DisconnectUnregisters(t *testing.T) {
	srv, h, _ := newTestServer(t)
	defer srv.Close()
	defer h.Wait()

	conn := dial(t, srv, "client_1")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	read(t, conn)
	assert.Equal(t, 1, h.registry.Count())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}
