package socket

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

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/scoresync/go/internal/messages"
	"github.com/mcdev12/scoresync/go/internal/outbox"
	"github.com/mcdev12/scoresync/go/internal/store"
)

var appID = uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")

type staticTokens struct {
	mu    sync.Mutex
	token string
	ready chan struct{}
}

func (s *staticTokens) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *staticTokens) WaitForToken(ctx context.Context, retry time.Duration) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.ready:
	}
	token, _ := s.Token()
	return token, nil
}

func (s *staticTokens) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	close(s.ready)
}

// scriptedServer accepts websocket connections and hands each one to the
// handler registered for its ordinal (1-based); later connections reuse
// the last handler.
type scriptedServer struct {
	t        *testing.T
	srv      *httptest.Server
	conns    atomic.Int32
	handlers []func(n int, conn *websocket.Conn)
}

func newScriptedServer(t *testing.T, handlers ...func(n int, conn *websocket.Conn)) *scriptedServer {
	s := &scriptedServer{t: t, handlers: handlers}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dressage/application/v2/judge-1/"+appID.String(), r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("tk"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := int(s.conns.Add(1))
		h := s.handlers[len(s.handlers)-1]
		if n <= len(s.handlers) {
			h = s.handlers[n-1]
		}
		h(n, conn)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *scriptedServer) resolver() URLResolver {
	base := "ws" + strings.TrimPrefix(s.srv.URL, "http")
	return func(token string) (string, error) {
		return ConnectionURL(base, "judge-1", appID, token)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryInterval = 50 * time.Millisecond
	cfg.WriteTimeout = time.Second
	return cfg
}

func readIDs(conn *websocket.Conn, out chan<- uuid.UUID) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg messages.OutboundMessage
		if err := msg.UnmarshalJSON(data); err != nil {
			continue
		}
		out <- msg.ID
	}
}

func TestManager_SendsQueuedAndReceives(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan uuid.UUID, 8)
	srv := newScriptedServer(t, func(n int, conn *websocket.Conn) {
		defer conn.Close()
		inbound := `{"id":"` + appID.String() + `","ver":2,"msg":{"Competition":"unsubscribe"}}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(inbound))
		readIDs(conn, received)
	})

	frames := make(chan []byte, 4)
	tokens := &staticTokens{token: "tok", ready: make(chan struct{})}
	m := NewManager(testConfig(), tokens, srv.resolver(), func(ctx context.Context, frame []byte) error {
		frames <- frame
		return nil
	})

	queued := messages.NewOutbound(messages.Subscribe{CompetitionID: "comp-1"})
	m.Resend([]messages.OutboundMessage{queued})
	assert.Equal(t, 1, m.Queued())

	go func() { _ = m.Run(ctx) }()

	select {
	case id := <-received:
		assert.Equal(t, queued.ID, id)
	case <-ctx.Done():
		t.Fatal("queued message never reached the server")
	}

	select {
	case frame := <-frames:
		msg, err := messages.DecodeInbound(frame)
		require.NoError(t, err)
		assert.IsType(t, messages.Unsubscribe{}, msg.Payload)
	case <-ctx.Done():
		t.Fatal("inbound frame never reached the handler")
	}

	assert.Eventually(t, func() bool { return m.State() == Connected }, time.Second, 10*time.Millisecond)
}

func TestManager_ReconnectReplaysOutboxExactlyOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	firstSession := make(chan uuid.UUID, 8)
	secondSession := make(chan uuid.UUID, 32)
	srv := newScriptedServer(t,
		func(n int, conn *websocket.Conn) {
			// Take one message and drop the connection without a close frame.
			_, data, err := conn.ReadMessage()
			if err == nil {
				var msg messages.OutboundMessage
				if msg.UnmarshalJSON(data) == nil {
					firstSession <- msg.ID
				}
			}
			_ = conn.UnderlyingConn().Close()
		},
		func(n int, conn *websocket.Conn) {
			defer conn.Close()
			readIDs(conn, secondSession)
		},
	)

	box, err := outbox.Load(ctx, store.NewMemory())
	require.NoError(t, err)

	tokens := &staticTokens{token: "tok", ready: make(chan struct{})}
	var m *Manager
	keepAlive := func() {
		outbox.NewKeepAlive(box, m, nil, clockwork.NewRealClock(), outbox.DefaultConfig()).Tick()
	}
	m = NewManager(testConfig(), tokens, srv.resolver(),
		func(ctx context.Context, frame []byte) error { return nil },
		WithTransform(box.Transform),
		WithOnConnect(keepAlive),
	)

	m.Send(messages.Mark{SheetID: "sheet-1", Number: 1})
	go func() { _ = m.Run(ctx) }()

	select {
	case <-firstSession:
	case <-ctx.Done():
		t.Fatal("first session never received a message")
	}

	// Outage: these are only recorded and queued.
	require.Eventually(t, func() bool { return m.State() != Connected }, 2*time.Second, 5*time.Millisecond)
	for n := uint16(2); n <= 4; n++ {
		m.Send(messages.Mark{SheetID: "sheet-1", Number: n})
	}

	pending := box.Pending()
	require.Len(t, pending, 4)

	seen := make(map[uuid.UUID]int)
	for len(seen) < len(pending) {
		select {
		case id := <-secondSession:
			seen[id]++
		case <-ctx.Done():
			t.Fatalf("only %d of %d messages replayed", len(seen), len(pending))
		}
	}

	// Give any duplicate a chance to show up.
	time.Sleep(100 * time.Millisecond)
	for drained := false; !drained; {
		select {
		case id := <-secondSession:
			seen[id]++
		default:
			drained = true
		}
	}

	for _, msg := range pending {
		assert.Equal(t, 1, seen[msg.ID], "message %s", msg.ID)
	}
	assert.Equal(t, int32(2), srv.conns.Load())
}

func TestManager_ResendDoesNotRecordAckedMessage(t *testing.T) {
	ctx := context.Background()
	box, err := outbox.Load(ctx, store.NewMemory())
	require.NoError(t, err)

	tokens := &staticTokens{token: "tok", ready: make(chan struct{})}
	m := NewManager(testConfig(), tokens, func(string) (string, error) { return "ws://unused", nil },
		func(ctx context.Context, frame []byte) error { return nil },
		WithTransform(box.Transform),
	)

	m.Send(messages.Mark{SheetID: "sheet-1", Number: 1})
	snapshot := box.Pending()
	require.Len(t, snapshot, 1)

	// The ack lands after the keep-alive took its snapshot.
	removed, err := box.Ack(ctx, snapshot[0].ID)
	require.NoError(t, err)
	require.True(t, removed)

	m.Resend(snapshot)
	assert.Zero(t, box.Len())
	assert.Equal(t, 1, m.Queued())
}

func TestManager_HandlerErrorForcesReconnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := newScriptedServer(t, func(n int, conn *websocket.Conn) {
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	tokens := &staticTokens{token: "tok", ready: make(chan struct{})}
	revoked := errors.New("revoked")
	m := NewManager(testConfig(), tokens, srv.resolver(), func(ctx context.Context, frame []byte) error {
		return revoked
	})
	go func() { _ = m.Run(ctx) }()

	assert.Eventually(t, func() bool { return srv.conns.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestManager_ReadTimeoutEndsSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := newScriptedServer(t, func(n int, conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	cfg := testConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	tokens := &staticTokens{token: "tok", ready: make(chan struct{})}
	m := NewManager(cfg, tokens, srv.resolver(), func(ctx context.Context, frame []byte) error { return nil })
	go func() { _ = m.Run(ctx) }()

	assert.Eventually(t, func() bool { return srv.conns.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestManager_WaitsForToken(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := newScriptedServer(t, func(n int, conn *websocket.Conn) {
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	tokens := &staticTokens{ready: make(chan struct{})}
	m := NewManager(testConfig(), tokens, srv.resolver(), func(ctx context.Context, frame []byte) error { return nil })
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, srv.conns.Load())
	assert.Equal(t, Disconnected, m.State())

	tokens.set("tok")
	assert.Eventually(t, func() bool { return srv.conns.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestQueue_DeduplicatesByID(t *testing.T) {
	q := newQueue()
	id := uuid.New()

	assert.True(t, q.push(frame{id: id, data: []byte("a")}))
	assert.False(t, q.push(frame{id: id, data: []byte("a")}))
	assert.True(t, q.push(frame{id: uuid.New(), data: []byte("b")}))

	batch := q.drain()
	require.Len(t, batch, 2)
	assert.Equal(t, id, batch[0].id)
	assert.Zero(t, q.len())

	q.push(frame{id: uuid.New(), data: []byte("c")})
	q.requeue(batch)
	again := q.drain()
	require.Len(t, again, 3)
	assert.Equal(t, "a", string(again[0].data))
	assert.Equal(t, "c", string(again[2].data))
}

func TestConnectionURL(t *testing.T) {
	u, err := ConnectionURL("wss://live.example.com/ws/", "judge-1", appID, "a b")
	require.NoError(t, err)
	assert.Equal(t, "wss://live.example.com/ws/dressage/application/v2/judge-1/"+appID.String()+"?tk=a+b", u)
	assert.Equal(t, "wss://live.example.com/ws/dressage/application/v2/judge-1/"+appID.String(), redact(u))

	_, err = ConnectionURL("wss://live.example.com/", "", appID, "tok")
	assert.ErrorIs(t, err, ErrNoIdentity)
}
