package ws

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/identity"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/session"
)

type fakeRooms struct {
	mu           sync.Mutex
	listeners    map[string]session.Listener
	cursors      map[string]int64
	unsubscribed int
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{listeners: map[string]session.Listener{}, cursors: map[string]int64{}}
}

func (f *fakeRooms) Subscribe(roomID string, listener session.Listener, opts ...session.Option) (*session.Subscription, error) {
	sub := &session.Subscription{}
	for _, opt := range opts {
		opt(sub)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[roomID] = listener
	f.cursors[roomID] = sub.Cursor()
	return sub, nil
}

func (f *fakeRooms) Unsubscribe(sub *session.Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed++
}

func (f *fakeRooms) emit(roomID string, ev models.Event) bool {
	f.mu.Lock()
	l, ok := f.listeners[roomID]
	f.mu.Unlock()
	if ok {
		l(ev)
	}
	return ok
}

func (f *fakeRooms) unsubscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

func newWSServer(t *testing.T) (*httptest.Server, *Hub, *fakeRooms) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(zerolog.Nop())
	rooms := newFakeRooms()
	r := gin.New()
	r.Use(middleware.AuthMiddleware(identity.NewVerifier("secret")))
	r.GET("/ws/rooms/:room_id", NewRoomWebSocketHandler(hub, rooms, zerolog.Nop()).Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, hub, rooms
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestRoomSocketStreamsEvents(t *testing.T) {
	srv, hub, rooms := newWSServer(t)
	conn := dial(t, srv, "/ws/rooms/general?after=3")
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count("general") == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return rooms.emit("general", models.MessageEvent(models.Message{ID: 4, RoomID: "general", AuthorName: "alice", Text: "hi"}))
	}, time.Second, 5*time.Millisecond)
	rooms.emit("general", models.DisconnectedEvent("general"))

	rooms.mu.Lock()
	assert.Equal(t, int64(3), rooms.cursors["general"])
	rooms.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, int64(4), ev.Message.ID)
	assert.Equal(t, "hi", ev.Message.Text)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventDisconnected, ev.Type)
	assert.Equal(t, "general", ev.RoomID)
}

func TestRoomSocketCleanupOnClientClose(t *testing.T) {
	srv, hub, rooms := newWSServer(t)
	conn := dial(t, srv, "/ws/rooms/general")

	require.Eventually(t, func() bool { return hub.Count("general") == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	conn.Close()

	require.Eventually(t, func() bool {
		return hub.Count("general") == 0 && hub.Rooms() == 0 && rooms.unsubscribes() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHubCloseAllSendsGoingAway(t *testing.T) {
	srv, hub, _ := newWSServer(t)
	conn := dial(t, srv, "/ws/rooms/general")
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Count("general") == 1 }, time.Second, 5*time.Millisecond)
	hub.CloseAll("server shutdown")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestRoomSocketRejectsBadCursor(t *testing.T) {
	srv, _, _ := newWSServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/general?after=-1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestPeerOfferDropsSlowConsumer(t *testing.T) {
	p := newPeer(nil)
	for i := 0; i < sendBuffer; i++ {
		require.True(t, p.offer(models.DisconnectedEvent("general")))
	}
	assert.False(t, p.offer(models.DisconnectedEvent("general")))

	select {
	case <-p.done:
	default:
		t.Fatal("slow peer was not shut down")
	}
	assert.False(t, p.offer(models.DisconnectedEvent("general")))
}
