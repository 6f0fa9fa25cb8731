// Package model contains domain models passed between layers.
package model

// EntityID uniquely identifies a participant.
type EntityID string

// OwnerRef identifies the remote party authorized to supply draws on behalf
// of an entity. The empty ref means the entity has no remote owner and the
// engine draws locally for it.
type OwnerRef string

// None reports whether the ref points at no remote owner.
func (o OwnerRef) None() bool { return o == "" }

// Entity is a participant in a rolloff. The engine only reads Rank and
// Owner; on resolution it writes a new rank exactly once through the store.
type Entity struct {
	ID    EntityID `json:"id"`
	Name  string   `json:"name,omitempty"`
	Rank  *float64 `json:"rank,omitempty"` // nil until set by the caller
	Owner OwnerRef `json:"owner,omitempty"`
	Seed  float64  `json:"seed,omitempty"` // secondary attribute used for bracket seeding
}

// HasRank reports whether the entity's rank has been set.
func (e Entity) HasRank() bool { return e.Rank != nil }

// RankValue returns the rank, or 0 when unset. Callers must check HasRank
// first; rank 0 is a legal value.
func (e Entity) RankValue() float64 {
	if e.Rank == nil {
		return 0
	}
	return *e.Rank
}

// TieGroup is an ordered set of two or more entities sharing the same rank
// at detection time. It is immutable once constructed; a recursive tie
// produces a fresh group instead of mutating this one.
type TieGroup struct {
	Rank    float64  `json:"rank"`
	Members []Entity `json:"members"`
}

// Size returns the number of tied members.
func (g TieGroup) Size() int { return len(g.Members) }

// Draw is one random outcome: a die size and a total in [1, Faces].
type Draw struct {
	Faces int `json:"faces"`
	Total int `json:"total"`
}

// ContestResult pairs an entity with the draw it contributed to one contest.
type ContestResult struct {
	Entity   Entity `json:"entity"`
	Draw     Draw   `json:"draw"`
	Fallback bool   `json:"fallback,omitempty"` // drawn locally after a remote failure or timeout
}
