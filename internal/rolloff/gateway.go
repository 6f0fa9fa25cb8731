package rolloff

import (
	"context"

	"github.com/okian/rolloff/internal/domain/model"
)

// SolicitRequest asks a remote owner to produce one draw for a contest.
type SolicitRequest struct {
	ContestID string         `json:"contest_id"`
	EntityID  model.EntityID `json:"entity_id"`
	Faces     int            `json:"faces"`
}

// Gateway abstracts the transport between the engine and its remote owners
// and observers.
type Gateway interface {
	// SolicitDraw asks owner for a draw on behalf of an entity. It must
	// never outlive ctx: when the context deadline passes or the owner is
	// unreachable, it returns an error and the caller substitutes a local
	// fallback draw.
	SolicitDraw(ctx context.Context, owner model.OwnerRef, req SolicitRequest) (model.Draw, error)

	// Broadcast fans an event out to observers, best effort. Individual
	// delivery failures never surface to the caller and must not block
	// contest resolution.
	Broadcast(ctx context.Context, ev Event)
}
