package rolloff

import "github.com/okian/rolloff/internal/domain/model"

// EventName identifies the kind of observer event.
type EventName string

// Observer event names fanned out over the broadcast channel.
const (
	// EventTieDetected announces freshly detected tie groups. Emitted when
	// auto-resolution is off so an authority can confirm before starting.
	EventTieDetected EventName = "tie.detected"

	// EventContestResult is an intermediate update for one accepted draw,
	// keyed by contest id and entity id.
	EventContestResult EventName = "contest.result"

	// EventMatchComplete announces a resolved bracket match so observers
	// watching a live bracket can update independently of the
	// request/response channel.
	EventMatchComplete EventName = "match.complete"

	// EventWinner announces the terminal winner of a resolution and the
	// rank it was assigned.
	EventWinner EventName = "rolloff.winner"
)

// Event is the broadcast payload sent to observers. Delivery is best
// effort; fields not meaningful for a given event name are left zero.
type Event struct {
	Name         EventName        `json:"name"`
	CollectionID string           `json:"collection_id,omitempty"`
	ResolutionID string           `json:"resolution_id,omitempty"`
	ContestID    string           `json:"contest_id,omitempty"`
	BracketID    string           `json:"bracket_id,omitempty"`
	MatchID      string           `json:"match_id,omitempty"`
	EntityID     model.EntityID   `json:"entity_id,omitempty"`
	Total        int              `json:"total,omitempty"`
	Fallback     bool             `json:"fallback,omitempty"`
	WinnerID     model.EntityID   `json:"winner_id,omitempty"`
	LoserID      model.EntityID   `json:"loser_id,omitempty"`
	NewRank      float64          `json:"new_rank,omitempty"`
	Groups       []model.TieGroup `json:"groups,omitempty"`
}
