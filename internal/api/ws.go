package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/reelkeep/reelkeep/internal/eventbus"
	"github.com/reelkeep/reelkeep/internal/models"
)

// wsWriteTimeout bounds a single frame write so one stalled client cannot
// hold its writer goroutine forever.
const wsWriteTimeout = 5 * time.Second

// wsSendBuffer is the per-client outbound queue depth. A client that falls
// further behind than this loses events rather than blocking the bus.
const wsSendBuffer = 64

// wsEnvelope is the frame shape pushed to connected clients.
type wsEnvelope struct {
	Type    models.EventType   `json:"type"`
	Payload models.DomainEvent `json:"payload"`
}

// WSHub broadcasts domain events to connected websocket clients. It sits
// on the receiving end of the event bus: progress and job-state events
// published anywhere in the process reach every connected client without
// the publishing component knowing the hub exists.
type WSHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWSHub creates an empty hub; clients join via HandleWS.
func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[*wsClient]struct{})}
}

// Subscriber is the event-bus surface the hub attaches to, satisfied by
// both eventbus.Bus and eventbus.PersistentBus.
type Subscriber interface {
	Subscribe(sample models.DomainEvent, handler eventbus.Handler)
}

var (
	_ Subscriber = (*eventbus.Bus)(nil)
	_ Subscriber = (*eventbus.PersistentBus)(nil)
)

// Attach subscribes the hub to the live-update event set: scan progress,
// scan completion and every subtitle job state change.
func (h *WSHub) Attach(bus Subscriber) {
	forward := func(event models.DomainEvent) error {
		h.broadcast(event)
		return nil
	}
	bus.Subscribe(models.ProgressUpdatedEvent{}, forward)
	bus.Subscribe(models.ScanCompletedEvent{}, forward)
	bus.Subscribe(models.SubtitleGenerationStartedEvent{}, forward)
	bus.Subscribe(models.SubtitleGenerationCompletedEvent{}, forward)
	bus.Subscribe(models.SubtitleGenerationFailedEvent{}, forward)
	bus.Subscribe(models.BackgroundScanStartedEvent{}, forward)
}

func (h *WSHub) broadcast(event models.DomainEvent) {
	data, err := json.Marshal(wsEnvelope{Type: event.EventType(), Payload: event})
	if err != nil {
		log.Printf("ws: marshal %s: %v", event.EventType(), err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client is not draining its queue; drop the frame. The
			// event log remains the source of truth for missed updates.
		}
	}
}

// clientCount reports how many clients are currently connected.
func (h *WSHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *WSHub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *WSHub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// HandleWS upgrades the request and streams broadcast frames until the
// client disconnects. The connection is write-only from the server side;
// CloseRead drains and discards anything the client sends and cancels the
// returned context when the read side fails.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("ws: accept: %v", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.add(client)
	defer func() {
		h.remove(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-client.send:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
