// Package ws exposes the engine to remote owners and observers over
// websockets.
//
// Every connected client observes broadcast events. A client that
// identifies itself as an owner additionally receives draw solicitations
// and answers them; its responses are routed back into the loopback
// gateway. Slow clients are dropped instead of blocking the engine.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/rolloff/internal/domain/model"
	"github.com/okian/rolloff/internal/rolloff"
	"github.com/okian/rolloff/pkg/logger"
	"github.com/okian/rolloff/pkg/metrics"
)

// Default hub configuration constants.
const (
	defaultSendBuffer = 64
	readLimitBytes    = 4096
)

// Inbound message types.
const (
	msgHello  = "hello"
	msgDraw   = "draw"
	msgReject = "reject"
)

// Outbound message types.
const (
	msgEvent       = "event"
	msgDrawRequest = "draw.request"
)

// inboundMessage is what owners and observers send to the hub.
type inboundMessage struct {
	Type      string `json:"type"`
	Owner     string `json:"owner,omitempty"`
	ContestID string `json:"contest_id,omitempty"`
	EntityID  string `json:"entity_id,omitempty"`
	Faces     int    `json:"faces,omitempty"`
	Total     int    `json:"total,omitempty"`
}

// outboundMessage is what the hub sends to clients.
type outboundMessage struct {
	Type    string                `json:"type"`
	Request *rolloff.OwnerRequest `json:"request,omitempty"`
	Event   *rolloff.Event        `json:"event,omitempty"`
}

// client is one connected websocket.
type client struct {
	id    string
	owner model.OwnerRef
	conn  *websocket.Conn
	send  chan []byte
	once  sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub manages websocket clients: it fans out observer events, delivers
// draw solicitations to owners, and routes their answers back into the
// gateway.
type Hub struct {
	mu         sync.Mutex
	clients    map[string]*client
	owners     map[model.OwnerRef]*client
	gateway    *rolloff.LoopbackGateway
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     logger.Logger
}

// HubOption applies a configuration option to the Hub.
type HubOption func(*Hub)

// WithSendBuffer sets the per-client outbound buffer. A client whose
// buffer fills is dropped.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithHubLogger sets a custom logger for the hub.
func WithHubLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates a hub routing solicitations and events for the given
// gateway.
func NewHub(gateway *rolloff.LoopbackGateway, opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[string]*client),
		owners:     make(map[model.OwnerRef]*client),
		gateway:    gateway,
		sendBuffer: defaultSendBuffer,
		upgrader: websocket.Upgrader{
			// The daemon is origin-agnostic; auth lives in front of it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.Named("ws"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run consumes the gateway's owner requests until ctx is canceled. A
// request for an owner with no connected client fails immediately so the
// contest falls back without waiting out the timeout.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-h.gateway.Requests():
			if !ok {
				return
			}
			h.routeRequest(ctx, req)
		}
	}
}

// Deliver implements the event dispatcher's sink: it fans one engine event
// out to every connected client, best effort.
func (h *Hub) Deliver(ctx context.Context, ev rolloff.Event) {
	payload, err := json.Marshal(outboundMessage{Type: msgEvent, Event: &ev})
	if err != nil {
		h.logger.Error(ctx, "event marshal failed", logger.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow observer: drop the client, never block the engine.
			h.dropLocked(id)
			metrics.RecordWSClientDropped()
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket client. The owner query
// parameter (or a later hello message) registers the client as a remote
// owner.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	conn.SetReadLimit(readLimitBytes)

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	if owner := model.OwnerRef(r.URL.Query().Get("owner")); !owner.None() {
		c.owner = owner
		h.owners[owner] = c
	}
	metrics.UpdateWSClients(len(h.clients))
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) routeRequest(ctx context.Context, req rolloff.OwnerRequest) {
	h.mu.Lock()
	c, ok := h.owners[req.Owner]
	h.mu.Unlock()
	if !ok {
		h.gateway.Fail(req.ContestID, req.EntityID, rolloff.ErrOwnerUnreachable)
		return
	}

	payload, err := json.Marshal(outboundMessage{Type: msgDrawRequest, Request: &req})
	if err != nil {
		h.logger.Error(ctx, "request marshal failed", logger.Error(err))
		h.gateway.Fail(req.ContestID, req.EntityID, err)
		return
	}

	select {
	case c.send <- payload:
	default:
		h.mu.Lock()
		h.dropLocked(c.id)
		h.mu.Unlock()
		metrics.RecordWSClientDropped()
		h.gateway.Fail(req.ContestID, req.EntityID, rolloff.ErrOwnerUnreachable)
	}
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(c.id)
		h.mu.Unlock()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Debug(ctx, "ignoring malformed message",
				logger.String("clientID", c.id),
				logger.Error(err),
			)
			continue
		}
		h.handleMessage(c, msg)
	}
}

func (h *Hub) handleMessage(c *client, msg inboundMessage) {
	switch msg.Type {
	case msgHello:
		owner := model.OwnerRef(msg.Owner)
		if owner.None() {
			return
		}
		h.mu.Lock()
		c.owner = owner
		h.owners[owner] = c
		h.mu.Unlock()
	case msgDraw:
		h.gateway.Complete(msg.ContestID, model.EntityID(msg.EntityID), model.Draw{
			Faces: msg.Faces,
			Total: msg.Total,
		})
	case msgReject:
		h.gateway.Fail(msg.ContestID, model.EntityID(msg.EntityID), rolloff.ErrOwnerRejected)
	}
}

func (h *Hub) writePump(c *client) {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

// dropLocked must be called with h.mu held.
func (h *Hub) dropLocked(id string) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	if !c.owner.None() && h.owners[c.owner] == c {
		delete(h.owners, c.owner)
	}
	c.close()
	metrics.UpdateWSClients(len(h.clients))
}
