// Package bracket builds and advances seeded single-elimination brackets
// for tie groups of three or more entities.
//
// Construction is deterministic: the same entities in the same order with
// the same seed attribute always produce the same bracket and the same
// match identifiers, so matches can be correlated across the request and
// broadcast channels without a central sequence counter.
package bracket

import (
	"fmt"
	"sort"

	"github.com/okian/rolloff/internal/domain/model"
)

// Slot is one side of a match. It is either filled with an entity at build
// time or waits on the winner of an earlier match.
type Slot struct {
	Entity    *model.Entity `json:"entity,omitempty"`
	FromMatch string        `json:"from_match,omitempty"`
}

// Filled reports whether the slot holds an entity.
func (s Slot) Filled() bool { return s.Entity != nil }

// Match is one contest between two slots. Slot 2 may be unfilled pending an
// earlier round's winner; a match cannot resolve until both slots are
// filled, and its winner is always one of the two filled slots.
type Match struct {
	ID     string        `json:"id"`
	Round  int           `json:"round"`
	Index  int           `json:"index"`
	Slots  [2]Slot       `json:"slots"`
	Winner *model.Entity `json:"winner,omitempty"`
	Loser  *model.Entity `json:"loser,omitempty"`
}

// Ready reports whether the match has both slots filled and no result yet.
func (m *Match) Ready() bool {
	return m.Winner == nil && m.Slots[0].Filled() && m.Slots[1].Filled()
}

// Resolved reports whether the match has a recorded winner.
func (m *Match) Resolved() bool { return m.Winner != nil }

// Entrants returns the two entities of a ready or resolved match.
func (m *Match) Entrants() [2]model.Entity {
	return [2]model.Entity{*m.Slots[0].Entity, *m.Slots[1].Entity}
}

// Bracket is an ordered sequence of rounds, each an ordered sequence of
// matches. It is mutated in place as matches resolve and discarded once a
// final winner is produced.
type Bracket struct {
	BaseID string     `json:"base_id"`
	Rounds [][]*Match `json:"rounds"`
}

// node tracks what feeds a position while pairing up rounds: a concrete
// entity, the pending winner of a match, or a bye.
type node struct {
	entity    *model.Entity
	fromMatch string
	bye       bool
}

// Build constructs a bracket for the given entities.
//
// Entities are seeded ascending by their Seed attribute; ties in the seed
// attribute keep their original order (stable sort). Fields that are not a
// power of two receive byes at the tail, which collapse into an automatic
// advance rather than a placeholder match: for three entrants, round 0 is
// the two lowest seeds and round 1 pairs the third entrant against an
// unfilled slot fed by round 0's winner.
func Build(entities []model.Entity, baseID string) (*Bracket, error) {
	n := len(entities)
	if n < 2 {
		return nil, ErrTooFewEntrants
	}

	seeded := make([]model.Entity, n)
	copy(seeded, entities)
	sort.SliceStable(seeded, func(i, j int) bool { return seeded[i].Seed < seeded[j].Seed })

	size := 1
	for size < n {
		size *= 2
	}

	nodes := make([]node, size)
	for i := range nodes {
		if i < n {
			e := seeded[i]
			nodes[i] = node{entity: &e}
		} else {
			nodes[i] = node{bye: true}
		}
	}

	b := &Bracket{BaseID: baseID}
	for round := 0; len(nodes) > 1; round++ {
		var matches []*Match
		next := make([]node, 0, len(nodes)/2)
		for i := 0; i < len(nodes); i += 2 {
			a, c := nodes[i], nodes[i+1]
			if c.bye {
				// Odd field: the unmatched entity advances directly.
				next = append(next, a)
				continue
			}
			// A concrete entity always occupies slot 0 so that an entrant
			// waiting on an earlier match occupies the open slot.
			if a.entity == nil && c.entity != nil {
				a, c = c, a
			}
			m := &Match{
				ID:    fmt.Sprintf("%s-r%d-m%d", baseID, round, len(matches)),
				Round: round,
				Index: len(matches),
				Slots: [2]Slot{
					{Entity: a.entity, FromMatch: a.fromMatch},
					{Entity: c.entity, FromMatch: c.fromMatch},
				},
			}
			matches = append(matches, m)
			next = append(next, node{fromMatch: m.ID})
		}
		if len(matches) > 0 {
			b.Rounds = append(b.Rounds, matches)
		}
		nodes = next
	}
	return b, nil
}

// NextMatch returns the earliest match with both slots filled and no
// result, or nil when nothing is resolvable. Rounds are scanned in order,
// so a later round never starts before the matches feeding it complete.
func (b *Bracket) NextMatch() *Match {
	for _, round := range b.Rounds {
		for _, m := range round {
			if m.Ready() {
				return m
			}
		}
	}
	return nil
}

// Advance records the result of a match and fills any slot fed by it.
// The winner must be one of the match's two filled slots.
func (b *Bracket) Advance(matchID string, winner, loser model.Entity) error {
	m := b.match(matchID)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}
	if m.Resolved() {
		return fmt.Errorf("%w: %s", ErrAlreadyResolved, matchID)
	}
	if !m.Ready() {
		return fmt.Errorf("%w: %s", ErrMatchNotReady, matchID)
	}
	if m.Slots[0].Entity.ID != winner.ID && m.Slots[1].Entity.ID != winner.ID {
		return fmt.Errorf("%w: %s is not an entrant of %s", ErrNotEntrant, winner.ID, matchID)
	}

	w, l := winner, loser
	m.Winner = &w
	m.Loser = &l

	for _, round := range b.Rounds {
		for _, next := range round {
			for i := range next.Slots {
				if next.Slots[i].FromMatch == matchID && !next.Slots[i].Filled() {
					fed := winner
					next.Slots[i].Entity = &fed
				}
			}
		}
	}
	return nil
}

// Winner returns the overall bracket winner once the final match has
// resolved.
func (b *Bracket) Winner() (model.Entity, bool) {
	if len(b.Rounds) == 0 {
		return model.Entity{}, false
	}
	final := b.Rounds[len(b.Rounds)-1]
	last := final[len(final)-1]
	if !last.Resolved() {
		return model.Entity{}, false
	}
	return *last.Winner, true
}

// MatchCount returns the total number of matches in the bracket.
func (b *Bracket) MatchCount() int {
	n := 0
	for _, round := range b.Rounds {
		n += len(round)
	}
	return n
}

func (b *Bracket) match(id string) *Match {
	for _, round := range b.Rounds {
		for _, m := range round {
			if m.ID == id {
				return m
			}
		}
	}
	return nil
}
