package rolloff_test

import (
	"context"
	"sync"
	"testing"

	"github.com/okian/rolloff/internal/domain/model"
	"github.com/okian/rolloff/internal/domain/registry"
	rolloff "github.com/okian/rolloff/internal/rolloff"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeStore records winner applications.
type fakeStore struct {
	mu      sync.Mutex
	applied []appliedRank
	err     error
}

type appliedRank struct {
	collectionID string
	id           model.EntityID
	rank         float64
}

func (s *fakeStore) ApplyWinner(ctx context.Context, collectionID string, id model.EntityID, rank float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.applied = append(s.applied, appliedRank{collectionID: collectionID, id: id, rank: rank})
	return nil
}

func (s *fakeStore) all() []appliedRank {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]appliedRank, len(s.applied))
	copy(out, s.applied)
	return out
}

// sequenceRoller returns strictly increasing totals so no contest ever ties.
type sequenceRoller struct {
	mu sync.Mutex
	n  int
}

func (r *sequenceRoller) Roll(faces int) (model.Draw, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n++
	return model.Draw{Faces: faces, Total: r.n}, nil
}

func tiedGroup(rank float64, ids ...string) model.TieGroup {
	g := model.TieGroup{Rank: rank}
	for i, id := range ids {
		r := rank
		g.Members = append(g.Members, model.Entity{
			ID:   model.EntityID(id),
			Rank: &r,
			Seed: float64(i),
		})
	}
	return g
}

func memberIDs(g model.TieGroup) []model.EntityID {
	ids := make([]model.EntityID, 0, g.Size())
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

func newTestManager(gw *fakeGateway, store *fakeStore, opts ...rolloff.ManagerOption) *rolloff.Manager {
	runner := rolloff.NewContestRunner(gw, &sequenceRoller{})
	opts = append([]rolloff.ManagerOption{rolloff.WithContestRunner(runner)}, opts...)
	return rolloff.NewManager(gw, store, opts...)
}

func eventsNamed(events []rolloff.Event, name rolloff.EventName) []rolloff.Event {
	var out []rolloff.Event
	for _, ev := range events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestManagerResolve(t *testing.T) {
	ctx := context.Background()

	Convey("Given a rolloff manager", t, func() {
		Convey("When resolving a pair group", func() {
			gw := &fakeGateway{}
			store := &fakeStore{}
			m := newTestManager(gw, store)

			group := tiedGroup(5, "a", "b")
			m.Resolve(ctx, "col", []model.TieGroup{group})
			m.Wait()

			Convey("Then exactly one winner rank is applied", func() {
				applied := store.all()
				So(applied, ShouldHaveLength, 1)
				So(applied[0].collectionID, ShouldEqual, "col")
				So(applied[0].id, ShouldBeIn, memberIDs(group))
			})

			Convey("Then the new rank is the tied rank plus epsilon", func() {
				So(store.all()[0].rank, ShouldAlmostEqual, 5.01)
			})

			Convey("Then a winner event is broadcast", func() {
				winners := eventsNamed(gw.broadcasts(), rolloff.EventWinner)
				So(winners, ShouldHaveLength, 1)
				So(winners[0].CollectionID, ShouldEqual, "col")
				So(winners[0].NewRank, ShouldAlmostEqual, 5.01)
			})
		})

		Convey("When resolving with a custom epsilon", func() {
			gw := &fakeGateway{}
			store := &fakeStore{}
			m := newTestManager(gw, store, rolloff.WithRankEpsilon(0.5))

			m.Resolve(ctx, "col", []model.TieGroup{tiedGroup(7, "a", "b")})
			m.Wait()

			Convey("Then the configured epsilon is used", func() {
				So(store.all()[0].rank, ShouldAlmostEqual, 7.5)
			})
		})

		Convey("When resolving a group of three", func() {
			gw := &fakeGateway{}
			store := &fakeStore{}
			m := newTestManager(gw, store)

			group := tiedGroup(9, "a", "b", "c")
			m.Resolve(ctx, "col", []model.TieGroup{group})
			m.Wait()

			Convey("Then the bracket resolves to a single winner", func() {
				applied := store.all()
				So(applied, ShouldHaveLength, 1)
				So(applied[0].id, ShouldBeIn, memberIDs(group))
				So(applied[0].rank, ShouldAlmostEqual, 9.01)
			})

			Convey("Then each bracket match is announced", func() {
				matches := eventsNamed(gw.broadcasts(), rolloff.EventMatchComplete)
				So(matches, ShouldHaveLength, 2)
				So(matches[0].BracketID, ShouldEqual, "col:9")
			})
		})

		Convey("When resolving multiple groups at once", func() {
			gw := &fakeGateway{}
			store := &fakeStore{}
			m := newTestManager(gw, store)

			m.Resolve(ctx, "col", []model.TieGroup{
				tiedGroup(5, "a", "b"),
				tiedGroup(7, "c", "d", "e"),
			})
			m.Wait()

			Convey("Then every group gets its own winner", func() {
				So(store.all(), ShouldHaveLength, 2)
				winners := eventsNamed(gw.broadcasts(), rolloff.EventWinner)
				So(winners, ShouldHaveLength, 2)
			})
		})

		Convey("When a duplicate trigger races an in-flight resolution", func() {
			gw := &fakeGateway{}
			store := &fakeStore{}
			reg := registry.New()
			m := newTestManager(gw, store, rolloff.WithRegistry(reg))

			// Simulate the in-flight resolution holding the id.
			So(reg.Begin("col:5"), ShouldBeTrue)

			m.Resolve(ctx, "col", []model.TieGroup{tiedGroup(5, "a", "b")})
			m.Wait()

			Convey("Then the duplicate is dropped", func() {
				So(store.all(), ShouldBeEmpty)
			})

			Convey("Then releasing the id allows a fresh resolution", func() {
				reg.End("col:5")
				m.Resolve(ctx, "col", []model.TieGroup{tiedGroup(5, "a", "b")})
				m.Wait()
				So(store.all(), ShouldHaveLength, 1)
			})
		})

		Convey("When a group has fewer than two members", func() {
			gw := &fakeGateway{}
			store := &fakeStore{}
			m := newTestManager(gw, store)

			m.Resolve(ctx, "col", []model.TieGroup{tiedGroup(5, "a")})
			m.Wait()

			Convey("Then nothing is applied and no winner is announced", func() {
				So(store.all(), ShouldBeEmpty)
				So(eventsNamed(gw.broadcasts(), rolloff.EventWinner), ShouldBeEmpty)
			})
		})

		Convey("When applying the winner fails", func() {
			gw := &fakeGateway{}
			store := &fakeStore{err: context.Canceled}
			m := newTestManager(gw, store)

			m.Resolve(ctx, "col", []model.TieGroup{tiedGroup(5, "a", "b")})
			m.Wait()

			Convey("Then the resolution is abandoned without a winner event", func() {
				So(eventsNamed(gw.broadcasts(), rolloff.EventWinner), ShouldBeEmpty)
			})

			Convey("Then the registry slot is released", func() {
				So(m.Registry().ActiveCount(), ShouldEqual, 0)
			})
		})
	})
}
