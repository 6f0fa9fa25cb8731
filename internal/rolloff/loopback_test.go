package rolloff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/rolloff/internal/domain/model"
	rolloff "github.com/okian/rolloff/internal/rolloff"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoopbackGateway(t *testing.T) {
	Convey("Given a loopback gateway", t, func() {
		Convey("When an owner completes a solicitation", func() {
			gw := rolloff.NewLoopbackGateway()

			// Transport side: answer the first surfaced request.
			go func() {
				req := <-gw.Requests()
				gw.Complete(req.ContestID, req.EntityID, model.Draw{Faces: req.Faces, Total: 17})
			}()

			d, err := gw.SolicitDraw(context.Background(), "o1", rolloff.SolicitRequest{
				ContestID: "c1", EntityID: "a", Faces: 20,
			})

			Convey("Then the draw flows back to the caller", func() {
				So(err, ShouldBeNil)
				So(d.Total, ShouldEqual, 17)
				So(d.Faces, ShouldEqual, 20)
			})
		})

		Convey("When an owner fails a solicitation", func() {
			gw := rolloff.NewLoopbackGateway()

			go func() {
				req := <-gw.Requests()
				gw.Fail(req.ContestID, req.EntityID, rolloff.ErrOwnerRejected)
			}()

			_, err := gw.SolicitDraw(context.Background(), "o1", rolloff.SolicitRequest{
				ContestID: "c1", EntityID: "a", Faces: 20,
			})

			Convey("Then the failure surfaces immediately", func() {
				So(err, ShouldWrap, rolloff.ErrOwnerRejected)
			})
		})

		Convey("When nobody answers before the deadline", func() {
			gw := rolloff.NewLoopbackGateway()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()

			_, err := gw.SolicitDraw(ctx, "o1", rolloff.SolicitRequest{
				ContestID: "c1", EntityID: "a", Faces: 20,
			})

			Convey("Then the context error is returned", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})

			Convey("Then a late answer finds nothing waiting", func() {
				So(gw.Complete("c1", "a", model.Draw{Faces: 20, Total: 5}), ShouldBeFalse)
			})
		})

		Convey("When the same solicitation is registered twice", func() {
			gw := rolloff.NewLoopbackGateway()

			started := make(chan struct{})
			go func() {
				close(started)
				_, _ = gw.SolicitDraw(context.Background(), "o1", rolloff.SolicitRequest{
					ContestID: "c1", EntityID: "a", Faces: 20,
				})
			}()
			<-started
			<-gw.Requests()

			_, err := gw.SolicitDraw(context.Background(), "o1", rolloff.SolicitRequest{
				ContestID: "c1", EntityID: "a", Faces: 20,
			})

			Convey("Then the duplicate is rejected", func() {
				So(err, ShouldWrap, rolloff.ErrDuplicateSolicit)
			})

			gw.Complete("c1", "a", model.Draw{Faces: 20, Total: 1})
		})

		Convey("When the request buffer is full", func() {
			gw := rolloff.NewLoopbackGateway(rolloff.WithRequestBuffer(1))

			go func() {
				_, _ = gw.SolicitDraw(context.Background(), "o1", rolloff.SolicitRequest{
					ContestID: "c1", EntityID: "a", Faces: 20,
				})
			}()
			// Wait for the first request to occupy the buffer.
			So(func() bool {
				deadline := time.After(time.Second)
				for {
					select {
					case <-deadline:
						return false
					default:
						if len(gw.Requests()) == 1 {
							return true
						}
						time.Sleep(time.Millisecond)
					}
				}
			}(), ShouldBeTrue)

			_, err := gw.SolicitDraw(context.Background(), "o2", rolloff.SolicitRequest{
				ContestID: "c2", EntityID: "b", Faces: 20,
			})

			Convey("Then the overflowing solicitation fails fast", func() {
				So(err, ShouldWrap, rolloff.ErrOwnerUnreachable)
			})

			gw.Complete("c1", "a", model.Draw{Faces: 20, Total: 1})
		})

		Convey("When broadcasting", func() {
			var got []rolloff.Event
			gw := rolloff.NewLoopbackGateway(
				rolloff.WithEventSink(func(ctx context.Context, ev rolloff.Event) bool {
					got = append(got, ev)
					return true
				}),
			)

			gw.Broadcast(context.Background(), rolloff.Event{Name: rolloff.EventTieDetected})

			Convey("Then the sink receives the event", func() {
				So(got, ShouldHaveLength, 1)
				So(got[0].Name, ShouldEqual, rolloff.EventTieDetected)
			})
		})

		Convey("When broadcasting without a sink", func() {
			gw := rolloff.NewLoopbackGateway()

			Convey("Then nothing panics", func() {
				So(func() {
					gw.Broadcast(context.Background(), rolloff.Event{Name: rolloff.EventWinner})
				}, ShouldNotPanic)
			})
		})
	})
}
