// Package notify implements the Notification bridge (C8, spec §4.8): a
// broadcast hub the engine pushes add/update/delete events and a
// coalesced "next start" signal through, to every connected subscriber
// (an admin UI, a companion mobile client). Adapted from the teacher's
// overseer websocket client, turned inside-out: instead of dialing out
// to a single upstream, the engine is itself the origin and this package
// fans a message out to however many websocket peers are attached.
package notify

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// EventType classifies a single pushed notification (spec §4.8).
type EventType string

const (
	EventAdd       EventType = "entry_add"
	EventUpdate    EventType = "entry_update"
	EventDelete    EventType = "entry_delete"
	EventNextStart EventType = "next_start"
)

// Message is the wire shape pushed to every connected peer.
type Message struct {
	Type EventType `json:"type"`
	UUID string    `json:"uuid,omitempty"`
	Data any       `json:"data,omitempty"`
	TS   time.Time `json:"ts"`
}

// Bus is the interface the engine depends on (spec §1 "notification bus
// transport lives outside this module" — the engine only needs this
// narrow publish surface).
type Bus interface {
	PublishAdd(uuid string, props map[string]any)
	PublishUpdate(uuid string, props map[string]any)
	PublishDelete(uuid string)
	// PublishNextStart schedules (or reschedules) a coalesced
	// "next recording starts at when" notification, debounced by the
	// configured coalesce window so a burst of reschedules during EPG
	// rebind only emits one message (spec §4.4 step 3, §4.8).
	PublishNextStart(when time.Time, title string)
}

// Hub is the gorilla/websocket-backed Bus implementation. Peers attach by
// upgrading an HTTP connection via ServeHTTP; every Publish* call fans
// out to all currently-attached peers.
type Hub struct {
	upgrader websocket.Upgrader
	coalesce time.Duration

	mu    sync.Mutex
	peers map[*websocket.Conn]struct{}

	nextMu    sync.Mutex
	nextTimer *time.Timer
	nextWhen  time.Time
	nextTitle string
}

// NewHub creates a Hub that coalesces next-start notifications within the
// given window.
func NewHub(coalesce time.Duration) *Hub {
	if coalesce <= 0 {
		coalesce = 5 * time.Second
	}
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		coalesce: coalesce,
		peers:    make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades an incoming request to a websocket peer and keeps it
// registered until it disconnects. Peers never send anything meaningful
// upstream; any inbound frame is read and discarded purely to detect
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("notify: upgrade: %v", err)
		return
	}

	h.mu.Lock()
	h.peers[conn] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.peers, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) broadcast(msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Printf("notify: marshal %s: %v", msg.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.peers {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			log.Printf("notify: write to peer: %v", err)
		}
	}
}

func (h *Hub) PublishAdd(uuid string, props map[string]any) {
	h.broadcast(Message{Type: EventAdd, UUID: uuid, Data: props, TS: time.Now()})
}

func (h *Hub) PublishUpdate(uuid string, props map[string]any) {
	h.broadcast(Message{Type: EventUpdate, UUID: uuid, Data: props, TS: time.Now()})
}

func (h *Hub) PublishDelete(uuid string) {
	h.broadcast(Message{Type: EventDelete, UUID: uuid, TS: time.Now()})
}

// PublishNextStart debounces: each call replaces the pending deadline
// rather than firing immediately, so a rapid sequence of reschedules
// (e.g. an EPG grabber rebinding many entries in one pass) emits a single
// notification once the dust settles.
func (h *Hub) PublishNextStart(when time.Time, title string) {
	h.nextMu.Lock()
	defer h.nextMu.Unlock()

	h.nextWhen = when
	h.nextTitle = title

	if h.nextTimer != nil {
		h.nextTimer.Stop()
	}
	h.nextTimer = time.AfterFunc(h.coalesce, func() {
		h.nextMu.Lock()
		when, title := h.nextWhen, h.nextTitle
		h.nextMu.Unlock()

		log.Printf("notify: next recording %q starts %s", title, humanize.Time(when))
		h.broadcast(Message{
			Type: EventNextStart,
			Data: map[string]any{"when": when, "title": title},
			TS:   time.Now(),
		})
	})
}

// Shutdown closes every attached peer. Safe to call from Run's ctx
// cancellation path.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.peers {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		delete(h.peers, conn)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
