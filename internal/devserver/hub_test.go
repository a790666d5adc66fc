package devserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastagame/basta-client/internal"
)

// newFeedConnPair returns both ends of a live websocket: the server side (what
// the hub holds) and the client side (the peer).
func newFeedConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	accepted := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	peer, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	select {
	case conn := <-accepted:
		return conn, peer
	case <-time.After(time.Second):
		t.Fatal("server never accepted the websocket")
		return nil, nil
	}
}

// A subscriber that stops draining gets dropped by a publisher while other
// publishers may still hold a reference to it. Concurrent publishes against
// such a client must drop it cleanly, never panic.
func TestPublishDropsStalledSubscriber(t *testing.T) {
	h := NewHub()
	serverConn, _ := newFeedConnPair(t)

	// Registered by hand with a tiny queue and no pumps, so the queue fills
	// immediately and stays full.
	client := &feedClient{conn: serverConn, send: make(chan []byte, 1), done: make(chan struct{})}
	h.clients["room-1"] = map[*feedClient]bool{client: true}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				h.Publish("room-1", internal.ResourceRoom, internal.OpUpdate, map[string]string{"id": "room-1"})
			}
		}()
	}
	wg.Wait()

	select {
	case <-client.done:
	default:
		t.Fatal("stalled subscriber was never dropped")
	}
	h.mu.RLock()
	_, present := h.clients["room-1"]
	h.mu.RUnlock()
	assert.False(t, present, "emptied room should be removed from the hub")
}

func TestUnregisterClosesConnection(t *testing.T) {
	h := NewHub()
	serverConn, peer := newFeedConnPair(t)

	client := &feedClient{conn: serverConn, send: make(chan []byte, 1), done: make(chan struct{})}
	h.clients["room-1"] = map[*feedClient]bool{client: true}

	h.unregister("room-1", client)

	select {
	case <-client.done:
	default:
		t.Fatal("done should be closed on removal")
	}
	assert.Error(t, serverConn.WriteMessage(websocket.TextMessage, []byte("x")),
		"removed subscriber's connection should be closed")

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := peer.ReadMessage()
	assert.Error(t, err, "peer should observe the connection closing")

	// Repeated removal of the same client is a no-op.
	h.unregister("room-1", client)
}
