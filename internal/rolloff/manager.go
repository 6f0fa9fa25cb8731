package rolloff

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/rolloff/internal/domain/bracket"
	"github.com/okian/rolloff/internal/domain/draw"
	"github.com/okian/rolloff/internal/domain/model"
	"github.com/okian/rolloff/internal/domain/registry"
	"github.com/okian/rolloff/pkg/logger"
	"github.com/okian/rolloff/pkg/metrics"
)

// Default manager configuration constants.
const (
	// defaultRankEpsilon is added to the tied rank when applying the
	// winner: small enough not to collide with the next integer rank,
	// large enough to be a distinguishable float.
	defaultRankEpsilon = 0.01
)

// RankWriter applies the winner's new rank to the externally persisted
// entity record. It is the only mutation the engine performs, written
// exactly once per tie group.
type RankWriter interface {
	ApplyWinner(ctx context.Context, collectionID string, id model.EntityID, rank float64) error
}

// Manager coordinates tie group resolutions: it chooses the pair or
// bracket topology, drives the round sequence, applies the winner's new
// rank, and announces completion. Independent tie groups resolve fully in
// parallel; within one group rounds are strictly sequential.
type Manager struct {
	gateway  Gateway
	store    RankWriter
	runner   *ContestRunner
	registry *registry.Registry
	epsilon  float64
	logger   logger.Logger
	wg       sync.WaitGroup
}

// ManagerOption applies a configuration option to the Manager.
type ManagerOption func(*Manager)

// WithRankEpsilon sets the increment added to the tied rank for the winner.
func WithRankEpsilon(eps float64) ManagerOption {
	return func(m *Manager) {
		if eps > 0 && eps < 1 {
			m.epsilon = eps
		}
	}
}

// WithManagerLogger sets a custom logger for the manager.
func WithManagerLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithContestRunner replaces the manager's contest runner.
func WithContestRunner(r *ContestRunner) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.runner = r
		}
	}
}

// WithRegistry shares an externally owned resolution registry.
func WithRegistry(r *registry.Registry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// NewManager creates a rolloff manager with configuration options. The
// default contest runner uses a wall-clock-seeded local roller; tests
// usually inject a deterministic runner via WithContestRunner.
func NewManager(gw Gateway, store RankWriter, opts ...ManagerOption) *Manager {
	m := &Manager{
		gateway:  gw,
		store:    store,
		registry: registry.New(),
		epsilon:  defaultRankEpsilon,
		logger:   logger.Named("rolloff"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.runner == nil {
		m.runner = NewContestRunner(gw, draw.NewLocalRoller())
	}
	return m
}

// Registry exposes the manager's resolution registry so the detection
// layer can share its processed-collection marks.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// Resolve starts one resolution per tie group. Duplicate triggers for a
// group already in flight are dropped atomically. Each group resolves on
// its own goroutine; internal failures are caught per group, logged, and
// the group's resolution is abandoned without affecting the others.
func (m *Manager) Resolve(ctx context.Context, collectionID string, groups []model.TieGroup) {
	for _, group := range groups {
		rid := resolutionID(collectionID, group.Rank)
		if !m.registry.Begin(rid) {
			m.logger.Debug(ctx, "resolution already in flight",
				logger.String("resolutionID", rid),
			)
			continue
		}
		metrics.RecordResolutionStarted()
		metrics.UpdateActiveResolutions(m.registry.ActiveCount())

		m.wg.Add(1)
		go func(rid string, group model.TieGroup) {
			defer m.wg.Done()
			defer func() {
				if p := recover(); p != nil {
					m.logger.Error(ctx, "resolution abandoned",
						logger.String("resolutionID", rid),
						logger.Any("panic", p),
					)
					metrics.RecordResolutionAbandoned()
				}
				m.registry.End(rid)
				metrics.UpdateActiveResolutions(m.registry.ActiveCount())
			}()
			if err := m.resolveGroup(ctx, collectionID, rid, group); err != nil {
				m.logger.Error(ctx, "resolution abandoned",
					logger.String("resolutionID", rid),
					logger.Error(err),
				)
				metrics.RecordResolutionAbandoned()
			}
		}(rid, group)
	}
}

// ManualStart is the confirmation-gated entry point. An authority that
// held back automatic resolution starts it here; the path is identical to
// Resolve once invoked.
func (m *Manager) ManualStart(ctx context.Context, collectionID string, groups []model.TieGroup) {
	m.Resolve(ctx, collectionID, groups)
}

// Wait blocks until every in-flight resolution has finished. Used by
// shutdown and tests.
func (m *Manager) Wait() { m.wg.Wait() }

// resolveGroup runs a single tie group to its terminal winner: a direct
// pairwise contest for two entities, a seeded elimination bracket for
// three or more.
func (m *Manager) resolveGroup(ctx context.Context, collectionID, rid string, group model.TieGroup) error {
	start := time.Now()
	m.logger.Info(ctx, "resolving tie group",
		logger.String("resolutionID", rid),
		logger.Float64("rank", group.Rank),
		logger.Int("members", group.Size()),
	)

	var winner model.Entity
	switch {
	case group.Size() == 2:
		outcome, err := m.runner.Run(ctx, group.Members, rid+"-pair")
		if err != nil {
			return err
		}
		winner = outcome.Winner.Entity
	case group.Size() > 2:
		w, err := m.resolveBracket(ctx, rid, group)
		if err != nil {
			return err
		}
		winner = w
	default:
		return fmt.Errorf("%w: group of %d", ErrTooFewEntrants, group.Size())
	}

	newRank := group.Rank + m.epsilon
	if err := m.store.ApplyWinner(ctx, collectionID, winner.ID, newRank); err != nil {
		return fmt.Errorf("apply winner: %w", err)
	}

	m.gateway.Broadcast(ctx, Event{
		Name:         EventWinner,
		CollectionID: collectionID,
		ResolutionID: rid,
		WinnerID:     winner.ID,
		NewRank:      newRank,
	})
	metrics.RecordResolutionCompleted()
	m.logger.Info(ctx, "tie group resolved",
		logger.String("resolutionID", rid),
		logger.String("winnerID", string(winner.ID)),
		logger.Float64("newRank", newRank),
		logger.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// resolveBracket drives a bracket match by match. Each match result is
// recorded in place before the next round reads it, and announced so live
// bracket observers can follow along.
func (m *Manager) resolveBracket(ctx context.Context, rid string, group model.TieGroup) (model.Entity, error) {
	br, err := bracket.Build(group.Members, rid)
	if err != nil {
		return model.Entity{}, err
	}

	for match := br.NextMatch(); match != nil; match = br.NextMatch() {
		entrants := match.Entrants()
		outcome, err := m.runner.Run(ctx, entrants[:], match.ID)
		if err != nil {
			return model.Entity{}, err
		}
		loser := outcome.Losers[0].Entity
		if err := br.Advance(match.ID, outcome.Winner.Entity, loser); err != nil {
			return model.Entity{}, err
		}
		m.gateway.Broadcast(ctx, Event{
			Name:      EventMatchComplete,
			BracketID: rid,
			MatchID:   match.ID,
			WinnerID:  outcome.Winner.Entity.ID,
			LoserID:   loser.ID,
		})
	}

	winner, ok := br.Winner()
	if !ok {
		return model.Entity{}, ErrNoWinner
	}
	return winner, nil
}

// resolutionID derives a deterministic id from the collection and the tied
// rank so racing triggers for the same group collapse to one resolution.
func resolutionID(collectionID string, rank float64) string {
	return collectionID + ":" + strconv.FormatFloat(rank, 'g', -1, 64)
}
