package draw_test

import (
	"sync"
	"testing"

	draw "github.com/okian/rolloff/internal/domain/draw"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLocalRoller(t *testing.T) {
	Convey("Given a local roller", t, func() {
		Convey("When rolling with a valid die size", func() {
			r := draw.NewLocalRoller(draw.WithSeed(42))

			Convey("Then every total stays within [1, faces]", func() {
				for i := 0; i < 1000; i++ {
					d, err := r.Roll(20)
					So(err, ShouldBeNil)
					So(d.Faces, ShouldEqual, 20)
					So(d.Total, ShouldBeBetweenOrEqual, 1, 20)
				}
			})
		})

		Convey("When rolling with an invalid die size", func() {
			r := draw.NewLocalRoller()

			Convey("Then it should reject faces below the minimum", func() {
				_, err := r.Roll(1)
				So(err, ShouldWrap, draw.ErrInvalidFaces)

				_, err = r.Roll(0)
				So(err, ShouldWrap, draw.ErrInvalidFaces)
			})
		})

		Convey("When two rollers share a seed", func() {
			a := draw.NewLocalRoller(draw.WithSeed(7))
			b := draw.NewLocalRoller(draw.WithSeed(7))

			Convey("Then they should produce identical sequences", func() {
				for i := 0; i < 100; i++ {
					da, errA := a.Roll(6)
					db, errB := b.Roll(6)
					So(errA, ShouldBeNil)
					So(errB, ShouldBeNil)
					So(da.Total, ShouldEqual, db.Total)
				}
			})
		})

		Convey("When rolling concurrently", func() {
			r := draw.NewLocalRoller(draw.WithSeed(1))

			Convey("Then it should stay within bounds under contention", func() {
				var wg sync.WaitGroup
				results := make([]int, 64)
				for i := 0; i < 64; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						d, err := r.Roll(8)
						if err == nil {
							results[i] = d.Total
						}
					}(i)
				}
				wg.Wait()
				for _, total := range results {
					So(total, ShouldBeBetweenOrEqual, 1, 8)
				}
			})
		})
	})
}
