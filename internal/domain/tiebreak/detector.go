// Package tiebreak detects tie groups among ranked entities.
//
// Detection is pure: it performs no mutation and no I/O, and may be re-run
// at any time. Equality of ranks is exact numeric equality; there is no
// epsilon.
package tiebreak

import (
	"sort"

	"github.com/okian/rolloff/internal/domain/model"
)

// Relevance filters which entities take part in detection. A nil predicate
// includes every entity.
type Relevance func(model.Entity) bool

// FindTieGroups partitions the relevant entities into groups sharing an
// identical rank.
//
// If any relevant entity has no rank yet, the set is not fully rolled and
// detection returns nil regardless of ties among the rest. Groups of size
// one are discarded. Multiple disjoint groups may be returned from one
// scan; they are ordered by rank descending so the output is deterministic
// for a given input. Member order inside a group follows input order.
func FindTieGroups(entities []model.Entity, relevant Relevance) []model.TieGroup {
	var pool []model.Entity
	for _, e := range entities {
		if relevant != nil && !relevant(e) {
			continue
		}
		if !e.HasRank() {
			return nil
		}
		pool = append(pool, e)
	}

	byRank := make(map[float64][]model.Entity)
	for _, e := range pool {
		byRank[e.RankValue()] = append(byRank[e.RankValue()], e)
	}

	var groups []model.TieGroup
	for rank, members := range byRank {
		if len(members) < 2 {
			continue
		}
		groups = append(groups, model.TieGroup{Rank: rank, Members: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Rank > groups[j].Rank })
	return groups
}
