package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	service "github.com/okian/rolloff/internal/app"
	"github.com/okian/rolloff/internal/domain/model"
	"github.com/okian/rolloff/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
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

func newTestService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithSettleDelay(10 * time.Millisecond),
		service.WithRoller(&sequenceRoller{}),
	}
	return service.New(append(base, opts...)...)
}

func addRanked(svc *service.Service, collectionID, id string, rank float64) error {
	r := rank
	return svc.AddEntity(context.Background(), collectionID, model.Entity{
		ID:   model.EntityID(id),
		Rank: &r,
	})
}

// waitForRank polls until some entity in the collection carries the target
// rank, or the deadline passes.
func waitForRank(svc *service.Service, collectionID string, rank float64, timeout time.Duration) (model.EntityID, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case <-deadline:
			return "", false
		default:
			entities, err := svc.Entities(context.Background(), collectionID)
			if err == nil {
				for _, e := range entities {
					if e.HasRank() && e.RankValue() == rank {
						return e.ID, true
					}
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestServiceAutoResolve(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service with auto-resolve", t, func() {
		svc := newTestService()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When two entities tie", func() {
			So(addRanked(svc, "col", "a", 5), ShouldBeNil)
			So(addRanked(svc, "col", "b", 5), ShouldBeNil)

			Convey("Then one of them ends up with the tied rank plus epsilon", func() {
				winner, ok := waitForRank(svc, "col", 5.01, 3*time.Second)
				So(ok, ShouldBeTrue)
				So(winner, ShouldBeIn, []model.EntityID{"a", "b"})

				svc.Wait()
				entities, err := svc.Entities(ctx, "col")
				So(err, ShouldBeNil)
				bumped := 0
				for _, e := range entities {
					if e.RankValue() == 5.01 {
						bumped++
					}
				}
				So(bumped, ShouldEqual, 1)
			})
		})

		Convey("When three entities tie", func() {
			So(addRanked(svc, "col3", "a", 7), ShouldBeNil)
			So(addRanked(svc, "col3", "b", 7), ShouldBeNil)
			So(addRanked(svc, "col3", "c", 7), ShouldBeNil)

			Convey("Then the bracket produces exactly one winner", func() {
				_, ok := waitForRank(svc, "col3", 7.01, 3*time.Second)
				So(ok, ShouldBeTrue)
			})
		})

		Convey("When a collection resolves once", func() {
			So(addRanked(svc, "once", "a", 5), ShouldBeNil)
			So(addRanked(svc, "once", "b", 5), ShouldBeNil)
			_, ok := waitForRank(svc, "once", 5.01, 3*time.Second)
			So(ok, ShouldBeTrue)
			svc.Wait()

			Convey("Then later updates never re-trigger detection", func() {
				So(svc.SetRank(ctx, "once", "a", 9), ShouldBeNil)
				So(svc.SetRank(ctx, "once", "b", 9), ShouldBeNil)

				_, again := waitForRank(svc, "once", 9.01, 200*time.Millisecond)
				So(again, ShouldBeFalse)
			})

			Convey("Then deleting the collection clears the mark", func() {
				So(svc.DeleteCollection(ctx, "once"), ShouldBeNil)

				So(addRanked(svc, "once", "x", 4), ShouldBeNil)
				So(addRanked(svc, "once", "y", 4), ShouldBeNil)

				_, resolved := waitForRank(svc, "once", 4.01, 3*time.Second)
				So(resolved, ShouldBeTrue)
			})
		})

		Convey("When an entity has no rank yet", func() {
			So(addRanked(svc, "partial", "a", 5), ShouldBeNil)
			So(addRanked(svc, "partial", "b", 5), ShouldBeNil)
			So(svc.AddEntity(ctx, "partial", model.Entity{ID: "c"}), ShouldBeNil)

			Convey("Then detection holds off until the set is fully ranked", func() {
				_, early := waitForRank(svc, "partial", 5.01, 200*time.Millisecond)
				So(early, ShouldBeFalse)

				So(svc.SetRank(ctx, "partial", "c", 1), ShouldBeNil)
				_, resolved := waitForRank(svc, "partial", 5.01, 3*time.Second)
				So(resolved, ShouldBeTrue)
			})
		})

		Convey("When a collection has already started", func() {
			So(svc.AddEntity(ctx, "locked", model.Entity{ID: "a"}), ShouldBeNil)
			So(svc.StartCollection(ctx, "locked"), ShouldBeNil)

			So(svc.SetRank(ctx, "locked", "a", 5), ShouldBeNil)
			So(addRanked(svc, "locked", "b", 5), ShouldBeNil)

			Convey("Then no resolution runs for it", func() {
				_, resolved := waitForRank(svc, "locked", 5.01, 200*time.Millisecond)
				So(resolved, ShouldBeFalse)
			})
		})
	})
}

func TestServiceManualResolve(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service with auto-resolve off", t, func() {
		svc := newTestService(service.WithAutoResolve(false))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When two entities tie", func() {
			So(addRanked(svc, "col", "a", 5), ShouldBeNil)
			So(addRanked(svc, "col", "b", 5), ShouldBeNil)

			Convey("Then nothing resolves until the manual start", func() {
				_, early := waitForRank(svc, "col", 5.01, 200*time.Millisecond)
				So(early, ShouldBeFalse)

				So(svc.StartResolution(ctx, "col"), ShouldBeNil)

				_, resolved := waitForRank(svc, "col", 5.01, 3*time.Second)
				So(resolved, ShouldBeTrue)
			})
		})

		Convey("When nothing is parked", func() {
			Convey("Then the manual start is refused", func() {
				So(svc.StartResolution(ctx, "empty"), ShouldWrap, service.ErrNoPendingTies)
			})
		})
	})
}

func TestServiceLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service", t, func() {
		Convey("When started twice", func() {
			svc := newTestService()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then the second start is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})
		})

		Convey("When stopped twice", func() {
			svc := newTestService()
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()

			Convey("Then the second stop is a no-op", func() {
				So(svc.Stop, ShouldNotPanic)
			})
		})

		Convey("When running", func() {
			svc := newTestService()
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then stats expose the live state", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats, ShouldContainKey, "activeResolutions")
				So(stats, ShouldContainKey, "eventQueueLength")
			})

			Convey("Then the gateway and queue are exposed for wiring", func() {
				So(svc.Gateway(), ShouldNotBeNil)
				So(svc.EventQueue(), ShouldNotBeNil)
			})
		})
	})
}
