package devserver

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bastagame/basta-client/internal"
)

// Hub fans change-feed frames out to the websocket subscribers of each room.
// Delivery is best-effort: a slow client gets dropped rather than blocking
// the publishers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*feedClient]bool
}

// feedClient's send channel is never closed; publishers may hold a reference
// to a client that is being removed concurrently. Removal is signalled by
// closing done instead, which happens exactly once, under the hub lock.
type feedClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*feedClient]bool)}
}

// Register attaches a connection to a room's feed and services it until the
// peer goes away.
func (h *Hub) Register(roomId string, conn *websocket.Conn) {
	client := &feedClient{
		conn: conn,
		send: make(chan []byte, 32),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.clients[roomId] == nil {
		h.clients[roomId] = make(map[*feedClient]bool)
	}
	h.clients[roomId][client] = true
	h.mu.Unlock()
	log.Printf("[Hub] Subscriber joined feed for room %s", roomId)

	go h.writePump(roomId, client)
	go h.readPump(roomId, client)
}

// Publish encodes one change event and queues it for every subscriber of the
// room.
func (h *Hub) Publish(roomId string, resource internal.Resource, op internal.ChangeOp, data any) {
	frame, err := json.Marshal(internal.Envelope[any]{Resource: resource, Op: op, Data: data})
	if err != nil {
		log.Printf("[Hub] Failed to encode %s/%s event for room %s: %v", resource, op, roomId, err)
		return
	}

	h.mu.RLock()
	subscribers := make([]*feedClient, 0, len(h.clients[roomId]))
	for client := range h.clients[roomId] {
		subscribers = append(subscribers, client)
	}
	h.mu.RUnlock()

	for _, client := range subscribers {
		select {
		case <-client.done:
		case client.send <- frame:
		default:
			// Subscriber stopped draining; cut it loose.
			h.unregister(roomId, client)
		}
	}
}

func (h *Hub) writePump(roomId string, client *feedClient) {
	for {
		select {
		case <-client.done:
			return
		case frame := <-client.send:
			if err := client.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("[Hub] Write failed for room %s subscriber: %v", roomId, err)
				h.unregister(roomId, client)
				return
			}
		}
	}
}

// readPump discards inbound frames; the feed is server-to-client only. It
// exists to notice the peer closing.
func (h *Hub) readPump(roomId string, client *feedClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.unregister(roomId, client)
			return
		}
	}
}

// unregister removes a client and closes its connection. Map membership is
// the once-guard: whichever caller still finds the client registered closes
// done and the conn, every later call is a no-op.
func (h *Hub) unregister(roomId string, client *feedClient) {
	h.mu.Lock()
	if subscribers, ok := h.clients[roomId]; ok {
		if subscribers[client] {
			delete(subscribers, client)
			close(client.done)
			client.conn.Close()
		}
		if len(subscribers) == 0 {
			delete(h.clients, roomId)
		}
	}
	h.mu.Unlock()
}
