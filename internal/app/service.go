// Package service provides the core business service that wires entity
// updates to tie detection and tie detection to rolloff resolution.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/rolloff/internal/adapters/events"
	"github.com/okian/rolloff/internal/adapters/repository"
	"github.com/okian/rolloff/internal/domain/draw"
	"github.com/okian/rolloff/internal/domain/model"
	"github.com/okian/rolloff/internal/domain/registry"
	"github.com/okian/rolloff/internal/domain/tiebreak"
	"github.com/okian/rolloff/internal/rolloff"
	"github.com/okian/rolloff/pkg/logger"
	"github.com/okian/rolloff/pkg/metrics"
)

// Service owns the detection-to-resolution pipeline for all collections.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    *repository.MemoryStore
	gateway  *rolloff.LoopbackGateway
	manager  *rolloff.Manager
	queue    *events.Queue
	registry *registry.Registry
	roller   draw.Roller

	// Configuration
	dieFaces       int
	solicitTimeout time.Duration
	settleDelay    time.Duration
	rankEpsilon    float64
	autoResolve    bool
	includeUnowned bool
	queueSize      int
	updateBuffer   int

	// Detected groups waiting for a manual start, by collection id.
	parked map[string][]model.TieGroup

	// Debounce timers per collection.
	timers map[string]*time.Timer

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDieFaces sets the die size used for contests.
func WithDieFaces(faces int) Option {
	return func(s *Service) {
		if faces >= draw.MinFaces {
			s.dieFaces = faces
		}
	}
}

// WithSolicitTimeout bounds how long a remote owner may take per draw.
func WithSolicitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.solicitTimeout = d
		}
	}
}

// WithSettleDelay sets the quiet period between an entity update and the
// detection scan it triggers.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.settleDelay = d
		}
	}
}

// WithRankEpsilon sets the increment added to the tied rank for a winner.
func WithRankEpsilon(eps float64) Option {
	return func(s *Service) {
		if eps > 0 && eps < 1 {
			s.rankEpsilon = eps
		}
	}
}

// WithAutoResolve controls whether detected ties resolve immediately or
// wait for a manual start.
func WithAutoResolve(auto bool) Option {
	return func(s *Service) {
		s.autoResolve = auto
	}
}

// WithIncludeUnowned includes entities without a remote owner in tie
// detection.
func WithIncludeUnowned(include bool) Option {
	return func(s *Service) {
		s.includeUnowned = include
	}
}

// WithEventQueueSize bounds the observer event queue.
func WithEventQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithUpdateBuffer bounds the store's update notification channel.
func WithUpdateBuffer(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.updateBuffer = n
		}
	}
}

// WithRoller replaces the local draw roller. Tests use deterministic
// rollers.
func WithRoller(r draw.Roller) Option {
	return func(s *Service) {
		if r != nil {
			s.roller = r
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dieFaces:       20,
		solicitTimeout: 30 * time.Second,
		settleDelay:    250 * time.Millisecond,
		rankEpsilon:    0.01,
		autoResolve:    true,
		includeUnowned: true,
		queueSize:      1024,
		updateBuffer:   256,
		parked:         make(map[string][]model.TieGroup),
		timers:         make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.roller == nil {
		s.roller = draw.NewLocalRoller()
	}

	s.logger.Info(ctx, "starting rolloff service...")

	s.store = repository.NewMemoryStore(
		repository.WithUpdateBuffer(s.updateBuffer),
	)
	s.queue = events.NewQueue(
		events.WithCapacity(s.queueSize),
	)
	s.registry = registry.New()
	s.gateway = rolloff.NewLoopbackGateway(
		rolloff.WithEventSink(s.queue.Publish),
	)
	runner := rolloff.NewContestRunner(s.gateway, s.roller,
		rolloff.WithDieFaces(s.dieFaces),
		rolloff.WithSolicitTimeout(s.solicitTimeout),
	)
	s.manager = rolloff.NewManager(s.gateway, s.store,
		rolloff.WithContestRunner(runner),
		rolloff.WithRankEpsilon(s.rankEpsilon),
		rolloff.WithRegistry(s.registry),
	)

	go s.watchUpdates()

	s.started = true
	s.logger.Info(ctx, "rolloff service started",
		logger.Int("dieFaces", s.dieFaces),
		logger.Duration("solicitTimeout", s.solicitTimeout),
		logger.Duration("settleDelay", s.settleDelay),
		logger.Bool("autoResolve", s.autoResolve),
	)
	return nil
}

// Stop gracefully shuts down the service, waiting for in-flight
// resolutions to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()

	s.logger.Info(context.Background(), "stopping rolloff service...")
	s.manager.Wait()
	_ = s.queue.Close()
	s.logger.Info(context.Background(), "rolloff service stopped")
}

// Gateway exposes the loopback gateway to the transport layer.
func (s *Service) Gateway() *rolloff.LoopbackGateway { return s.gateway }

// EventQueue exposes the observer event queue to the dispatcher.
func (s *Service) EventQueue() *events.Queue { return s.queue }

// AddEntity registers an entity in a collection.
func (s *Service) AddEntity(ctx context.Context, collectionID string, e model.Entity) error {
	return s.store.AddEntity(ctx, collectionID, e)
}

// SetRank sets an entity's rank.
func (s *Service) SetRank(ctx context.Context, collectionID string, id model.EntityID, rank float64) error {
	return s.store.SetRank(ctx, collectionID, id, rank)
}

// Entities returns a snapshot of a collection.
func (s *Service) Entities(ctx context.Context, collectionID string) ([]model.Entity, error) {
	return s.store.Entities(ctx, collectionID)
}

// StartCollection transitions a collection to started; detection never
// runs for it again.
func (s *Service) StartCollection(ctx context.Context, collectionID string) error {
	return s.store.Start(ctx, collectionID)
}

// DeleteCollection removes a collection and clears its processed mark,
// the only event that ever clears one.
func (s *Service) DeleteCollection(ctx context.Context, collectionID string) error {
	if err := s.store.Delete(ctx, collectionID); err != nil {
		return err
	}
	s.registry.Forget(collectionID)
	s.mu.Lock()
	delete(s.parked, collectionID)
	if t, ok := s.timers[collectionID]; ok {
		t.Stop()
		delete(s.timers, collectionID)
	}
	s.mu.Unlock()
	return nil
}

// StartResolution starts resolution of ties previously detected and
// parked for confirmation. Equivalent to the automatic path once invoked.
func (s *Service) StartResolution(ctx context.Context, collectionID string) error {
	s.mu.Lock()
	groups, ok := s.parked[collectionID]
	delete(s.parked, collectionID)
	s.mu.Unlock()
	if !ok {
		return ErrNoPendingTies
	}
	s.manager.ManualStart(ctx, collectionID, groups)
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"dieFaces":       s.dieFaces,
		"autoResolve":    s.autoResolve,
		"includeUnowned": s.includeUnowned,
	}
	if s.started {
		stats["activeResolutions"] = s.registry.ActiveCount()
		stats["eventQueueLength"] = s.queue.Len()
		stats["parkedCollections"] = len(s.parked)
	}
	return stats
}

// Wait blocks until all in-flight resolutions finish. Used by tests.
func (s *Service) Wait() { s.manager.Wait() }

// watchUpdates consumes store notifications and debounces them into
// detection scans: one scan per collection per quiet period.
func (s *Service) watchUpdates() {
	for {
		select {
		case <-s.stopCh:
			return
		case u, ok := <-s.store.Updates():
			if !ok {
				return
			}
			s.scheduleDetection(u.CollectionID)
		}
	}
}

func (s *Service) scheduleDetection(collectionID string) {
	if s.registry.Processed(collectionID) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if t, ok := s.timers[collectionID]; ok {
		t.Reset(s.settleDelay)
		return
	}
	s.timers[collectionID] = time.AfterFunc(s.settleDelay, func() {
		s.mu.Lock()
		delete(s.timers, collectionID)
		s.mu.Unlock()
		s.detect(collectionID)
	})
}

// detect runs one tie scan for a collection. It only acts while the
// collection is pending and marks the collection processed exactly once,
// when ties are found.
func (s *Service) detect(collectionID string) {
	ctx := context.Background()

	state, err := s.store.State(ctx, collectionID)
	if err != nil || state != repository.StatePending {
		return
	}

	entities, err := s.store.Entities(ctx, collectionID)
	if err != nil {
		return
	}

	relevant := tiebreak.Relevance(nil)
	if !s.includeUnowned {
		relevant = func(e model.Entity) bool { return !e.Owner.None() }
	}

	groups := tiebreak.FindTieGroups(entities, relevant)
	if len(groups) == 0 {
		return
	}
	if !s.registry.MarkProcessed(collectionID) {
		// A racing scan got here first.
		return
	}

	metrics.RecordTieGroupsDetected(len(groups))
	s.logger.Info(ctx, "tie groups detected",
		logger.String("collectionID", collectionID),
		logger.Int("groups", len(groups)),
	)
	s.gateway.Broadcast(ctx, rolloff.Event{
		Name:         rolloff.EventTieDetected,
		CollectionID: collectionID,
		Groups:       groups,
	})

	if s.autoResolve {
		s.manager.Resolve(ctx, collectionID, groups)
		return
	}
	s.mu.Lock()
	s.parked[collectionID] = groups
	s.mu.Unlock()
}
