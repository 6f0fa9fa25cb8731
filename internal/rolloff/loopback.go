package rolloff

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/rolloff/internal/domain/model"
	"github.com/okian/rolloff/pkg/logger"
)

// Default loopback gateway configuration constants.
const (
	defaultRequestBuffer = 256
)

// EventSink receives broadcast events. Returns false when the event was
// dropped; the gateway logs drops and moves on.
type EventSink func(ctx context.Context, ev Event) bool

// solicitOutcome carries an owner's answer back to a waiting solicitation.
type solicitOutcome struct {
	draw model.Draw
	err  error
}

// LoopbackGateway is the in-process Gateway implementation. Owner
// solicitations surface on Requests and are completed by whatever transport
// adapter delivers them (the websocket hub in the daemon, a stub in tests);
// broadcasts flow into the configured event sink.
type LoopbackGateway struct {
	mu       sync.Mutex
	pending  map[string]chan solicitOutcome
	requests chan OwnerRequest
	sink     EventSink
	logger   logger.Logger
}

// OwnerRequest is a solicitation addressed to a specific remote owner.
type OwnerRequest struct {
	Owner model.OwnerRef `json:"owner"`
	SolicitRequest
}

// GatewayOption applies a configuration option to the LoopbackGateway.
type GatewayOption func(*LoopbackGateway)

// WithRequestBuffer sets the buffer of the outbound owner-request channel.
func WithRequestBuffer(n int) GatewayOption {
	return func(g *LoopbackGateway) {
		if n > 0 {
			g.requests = make(chan OwnerRequest, n)
		}
	}
}

// WithEventSink sets where broadcasts are delivered.
func WithEventSink(sink EventSink) GatewayOption {
	return func(g *LoopbackGateway) {
		if sink != nil {
			g.sink = sink
		}
	}
}

// WithGatewayLogger sets a custom logger for the gateway.
func WithGatewayLogger(l logger.Logger) GatewayOption {
	return func(g *LoopbackGateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewLoopbackGateway creates a loopback gateway with configuration options.
func NewLoopbackGateway(opts ...GatewayOption) *LoopbackGateway {
	g := &LoopbackGateway{
		pending:  make(map[string]chan solicitOutcome),
		requests: make(chan OwnerRequest, defaultRequestBuffer),
		logger:   logger.Named("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Requests exposes pending owner solicitations to the transport adapter.
func (g *LoopbackGateway) Requests() <-chan OwnerRequest {
	return g.requests
}

// SolicitDraw registers a pending solicitation, hands it to the transport,
// and waits for Complete, Fail, or the context deadline.
func (g *LoopbackGateway) SolicitDraw(ctx context.Context, owner model.OwnerRef, req SolicitRequest) (model.Draw, error) {
	key := solicitKey(req.ContestID, req.EntityID)
	ch := make(chan solicitOutcome, 1)

	g.mu.Lock()
	if _, exists := g.pending[key]; exists {
		g.mu.Unlock()
		return model.Draw{}, fmt.Errorf("%w: %s", ErrDuplicateSolicit, key)
	}
	g.pending[key] = ch
	g.mu.Unlock()

	select {
	case g.requests <- OwnerRequest{Owner: owner, SolicitRequest: req}:
	default:
		g.remove(key)
		return model.Draw{}, fmt.Errorf("%w: request channel full", ErrOwnerUnreachable)
	}

	select {
	case <-ctx.Done():
		g.remove(key)
		return model.Draw{}, ctx.Err()
	case out := <-ch:
		return out.draw, out.err
	}
}

// Complete delivers an owner's draw to the waiting solicitation. Returns
// false when nothing is waiting, e.g. the solicitation already timed out.
func (g *LoopbackGateway) Complete(contestID string, entityID model.EntityID, d model.Draw) bool {
	return g.finish(solicitKey(contestID, entityID), solicitOutcome{draw: d})
}

// Fail delivers a terminal failure (owner disconnected, rejected, not
// connected) to the waiting solicitation so it can fall back immediately
// instead of waiting out the full timeout.
func (g *LoopbackGateway) Fail(contestID string, entityID model.EntityID, err error) bool {
	if err == nil {
		err = ErrOwnerUnreachable
	}
	return g.finish(solicitKey(contestID, entityID), solicitOutcome{err: err})
}

// Broadcast forwards the event to the sink, logging drops.
func (g *LoopbackGateway) Broadcast(ctx context.Context, ev Event) {
	if g.sink == nil {
		return
	}
	if !g.sink(ctx, ev) {
		g.logger.Debug(ctx, "broadcast dropped",
			logger.String("event", string(ev.Name)),
			logger.String("contestID", ev.ContestID),
		)
	}
}

func (g *LoopbackGateway) finish(key string, out solicitOutcome) bool {
	g.mu.Lock()
	ch, ok := g.pending[key]
	if ok {
		delete(g.pending, key)
	}
	g.mu.Unlock()
	if !ok {
		return false
	}
	ch <- out
	return true
}

func (g *LoopbackGateway) remove(key string) {
	g.mu.Lock()
	delete(g.pending, key)
	g.mu.Unlock()
}

func solicitKey(contestID string, entityID model.EntityID) string {
	return contestID + "/" + string(entityID)
}
