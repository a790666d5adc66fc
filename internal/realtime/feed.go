package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/bastagame/basta-client/internal"
)

// Handler consumes decoded change events. The coordinator's reconciliation
// methods satisfy it directly.
type Handler interface {
	ApplyParticipantEvent(internal.ParticipantEvent)
	ApplyRoomEvent(internal.RoomEvent)
}

// Subscriber reads the per-room change feed over a websocket. Delivery is
// best-effort, at-least-once, possibly out of order across ids and dropped on
// disconnect; dedup and idempotence live in the reconciliation layer, so the
// subscriber only decodes and dispatches.
type Subscriber struct {
	conn *websocket.Conn
	done chan struct{}
}

// FeedURL turns a service base URL into the room's feed endpoint.
func FeedURL(baseURL, roomId string) string {
	u := baseURL
	if strings.HasPrefix(u, "https://") {
		u = "wss://" + strings.TrimPrefix(u, "https://")
	} else if strings.HasPrefix(u, "http://") {
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return fmt.Sprintf("%s/ws/%s", u, url.PathEscape(roomId))
}

// Subscribe dials the feed for a room and starts dispatching events to the
// handler. The subscription ends when the context is cancelled, Close is
// called, or the connection drops; Done is closed in every case.
func Subscribe(ctx context.Context, baseURL, roomId string, h Handler) (*Subscriber, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, FeedURL(baseURL, roomId), nil)
	if err != nil {
		return nil, err
	}

	s := &Subscriber{conn: conn, done: make(chan struct{})}
	go s.readLoop(roomId, h)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Done is closed once the subscription has ended for any reason.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) Close() error {
	return s.conn.Close()
}

func (s *Subscriber) readLoop(roomId string, h Handler) {
	defer close(s.done)
	for {
		var frame internal.Envelope[json.RawMessage]
		if err := s.conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Feed] Room %s: read ended: %v", roomId, err)
			}
			return
		}
		dispatch(roomId, frame, h)
	}
}

func dispatch(roomId string, frame internal.Envelope[json.RawMessage], h Handler) {
	switch frame.Resource {
	case internal.ResourceParticipant:
		var patch internal.ParticipantPatch
		if err := json.Unmarshal(frame.Data, &patch); err != nil {
			log.Printf("[Feed] Room %s: malformed participant payload, skipping: %v", roomId, err)
			return
		}
		h.ApplyParticipantEvent(internal.ParticipantEvent{Op: frame.Op, Participant: patch})

	case internal.ResourceRoom:
		var patch internal.RoomPatch
		if err := json.Unmarshal(frame.Data, &patch); err != nil {
			log.Printf("[Feed] Room %s: malformed room payload, skipping: %v", roomId, err)
			return
		}
		h.ApplyRoomEvent(internal.RoomEvent{Op: frame.Op, Room: patch})

	default:
		log.Printf("[Feed] Room %s: unknown resource %q, skipping", roomId, frame.Resource)
	}
}
