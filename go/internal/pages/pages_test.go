package pages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMirror struct {
	mu      sync.Mutex
	updates []Update
}

func (m *recordingMirror) Mirror(_ context.Context, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
	return nil
}

func (m *recordingMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.updates)
}

func startHub(t *testing.T, mirrors ...Mirror) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(DefaultConnectionConfig(), mirrors...)
	go hub.Start(ctx)

	mux := http.NewServeMux()
	NewWebSocketHandler(hub).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/pages?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) Update {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var u Update
	require.NoError(t, conn.ReadJSON(&u))
	return u
}

func TestHubDeliversToSubscribedLocation(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "location=total-score")

	require.Eventually(t, func() bool { return hub.Stats()[TotalScore] == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(Alerts, "ignored")
	hub.Publish(TotalScore, "68.250%")

	u := readUpdate(t, conn)
	assert.Equal(t, TotalScore, u.Location)
	assert.Equal(t, "68.250%", u.Content)
}

func TestHubReplaysLatestOnConnect(t *testing.T) {
	hub, srv := startHub(t)

	hub.Publish(HeaderTrend, "first")
	hub.Publish(HeaderTrend, "second")
	require.Eventually(t, func() bool {
		u, ok := hub.Latest(HeaderTrend)
		return ok && u.Content == "second"
	}, 2*time.Second, 10*time.Millisecond)

	conn := dial(t, srv, "location=header-trend")
	u := readUpdate(t, conn)
	assert.Equal(t, "second", u.Content)
}

func TestHubMirrorsEveryUpdate(t *testing.T) {
	mirror := &recordingMirror{}
	hub, _ := startHub(t, mirror)

	hub.Publish(Penalties, "Error 1")
	hub.Publish(StartList, "<ol></ol>")

	require.Eventually(t, func() bool { return mirror.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "location=alerts,lock")

	require.Eventually(t, func() bool { return hub.Stats()[Lock] == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return len(hub.Stats()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerRejectsUnknownLocation(t *testing.T) {
	_, srv := startHub(t)

	resp, err := http.Get(srv.URL + "/ws/pages?location=nowhere")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws/pages")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleLatest(t *testing.T) {
	hub, srv := startHub(t)

	resp, err := http.Get(srv.URL + "/pages/latest?location=alerts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	hub.Publish(Alerts, "Blood")
	require.Eventually(t, func() bool { _, ok := hub.Latest(Alerts); return ok }, 2*time.Second, 10*time.Millisecond)

	resp, err = http.Get(srv.URL + "/pages/latest?location=alerts")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var u Update
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&u))
	assert.Equal(t, "Blood", u.Content)
}

func TestParseLocations(t *testing.T) {
	locs, ok := parseLocations([]string{"alerts, total-score", "alerts"})
	require.True(t, ok)
	assert.Equal(t, []Location{Alerts, TotalScore}, locs)

	_, ok = parseLocations([]string{""})
	assert.False(t, ok)

	_, ok = parseLocations([]string{"alerts,bogus"})
	assert.False(t, ok)
}

func TestNATSMirror(t *testing.T) {
	url := os.Getenv("SCORESYNC_TEST_NATS_URL")
	if url == "" {
		t.Skip("SCORESYNC_TEST_NATS_URL not set")
	}
	ctx := context.Background()

	cfg := DefaultJetStreamConfig()
	cfg.URL = url
	cfg.StreamName = "JUDGE_PAGES_TEST"
	cfg.SubjectPrefix = "pagestest"

	m, err := NewNATSMirror(ctx, cfg)
	require.NoError(t, err)
	defer m.Close()

	u := Update{ID: uuid.New(), Location: TotalScore, Content: "70%", Timestamp: time.Now().UTC()}
	require.NoError(t, m.Mirror(ctx, u))

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()
	js, err := jetstream.New(nc)
	require.NoError(t, err)
	stream, err := js.Stream(ctx, cfg.StreamName)
	require.NoError(t, err)

	msg, err := stream.GetLastMsgForSubject(ctx, m.Subject(TotalScore))
	require.NoError(t, err)
	var got Update
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "70%", got.Content)
}
