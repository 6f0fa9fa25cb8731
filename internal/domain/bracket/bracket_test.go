package bracket_test

import (
	"testing"

	bracket "github.com/okian/rolloff/internal/domain/bracket"
	"github.com/okian/rolloff/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func entity(id string, seed float64) model.Entity {
	return model.Entity{ID: model.EntityID(id), Seed: seed}
}

func TestBuild(t *testing.T) {
	Convey("Given entities to bracket", t, func() {
		Convey("When building with fewer than two entrants", func() {
			_, err := bracket.Build([]model.Entity{entity("a", 1)}, "base")

			Convey("Then construction fails", func() {
				So(err, ShouldWrap, bracket.ErrTooFewEntrants)
			})
		})

		Convey("When building with three entrants", func() {
			entities := []model.Entity{entity("c", 3), entity("a", 1), entity("b", 2)}
			b, err := bracket.Build(entities, "base")
			So(err, ShouldBeNil)

			Convey("Then the two lowest seeds play first", func() {
				So(b.Rounds, ShouldHaveLength, 2)
				So(b.Rounds[0], ShouldHaveLength, 1)
				first := b.Rounds[0][0]
				So(first.Slots[0].Entity.ID, ShouldEqual, model.EntityID("a"))
				So(first.Slots[1].Entity.ID, ShouldEqual, model.EntityID("b"))
			})

			Convey("Then the third entrant waits on the opener's winner", func() {
				final := b.Rounds[1][0]
				So(final.Slots[0].Entity.ID, ShouldEqual, model.EntityID("c"))
				So(final.Slots[1].Filled(), ShouldBeFalse)
				So(final.Slots[1].FromMatch, ShouldEqual, b.Rounds[0][0].ID)
			})

			Convey("Then the bracket holds exactly two matches", func() {
				So(b.MatchCount(), ShouldEqual, 2)
			})
		})

		Convey("When building with four entrants", func() {
			entities := []model.Entity{
				entity("a", 1), entity("b", 2), entity("c", 3), entity("d", 4),
			}
			b, err := bracket.Build(entities, "base")
			So(err, ShouldBeNil)

			Convey("Then both opening matches are ready", func() {
				So(b.Rounds, ShouldHaveLength, 2)
				So(b.Rounds[0], ShouldHaveLength, 2)
				So(b.Rounds[0][0].Ready(), ShouldBeTrue)
				So(b.Rounds[0][1].Ready(), ShouldBeTrue)
				So(b.MatchCount(), ShouldEqual, 3)
			})
		})

		Convey("When building with five entrants", func() {
			entities := []model.Entity{
				entity("a", 1), entity("b", 2), entity("c", 3),
				entity("d", 4), entity("e", 5),
			}
			b, err := bracket.Build(entities, "base")
			So(err, ShouldBeNil)

			Convey("Then byes collapse instead of producing placeholder matches", func() {
				So(b.MatchCount(), ShouldEqual, 4)
			})
		})

		Convey("When building twice from the same input", func() {
			entities := []model.Entity{entity("a", 1), entity("b", 2), entity("c", 3)}
			b1, err1 := bracket.Build(entities, "base")
			b2, err2 := bracket.Build(entities, "base")
			So(err1, ShouldBeNil)
			So(err2, ShouldBeNil)

			Convey("Then match identifiers are identical", func() {
				So(b1.Rounds[0][0].ID, ShouldEqual, b2.Rounds[0][0].ID)
				So(b1.Rounds[1][0].ID, ShouldEqual, b2.Rounds[1][0].ID)
			})
		})

		Convey("When seeds collide", func() {
			entities := []model.Entity{entity("x", 1), entity("y", 1), entity("z", 1)}
			b, err := bracket.Build(entities, "base")
			So(err, ShouldBeNil)

			Convey("Then input order breaks the tie", func() {
				So(b.Rounds[0][0].Slots[0].Entity.ID, ShouldEqual, model.EntityID("x"))
				So(b.Rounds[0][0].Slots[1].Entity.ID, ShouldEqual, model.EntityID("y"))
			})
		})
	})
}

func TestAdvance(t *testing.T) {
	Convey("Given a three-entrant bracket", t, func() {
		entities := []model.Entity{entity("a", 1), entity("b", 2), entity("c", 3)}
		b, err := bracket.Build(entities, "base")
		So(err, ShouldBeNil)

		Convey("When the opener resolves", func() {
			opener := b.NextMatch()
			So(opener, ShouldNotBeNil)
			err := b.Advance(opener.ID, entity("b", 2), entity("a", 1))
			So(err, ShouldBeNil)

			Convey("Then the winner fills the final's open slot", func() {
				final := b.NextMatch()
				So(final, ShouldNotBeNil)
				So(final.Round, ShouldEqual, 1)
				entrants := final.Entrants()
				So(entrants[0].ID, ShouldEqual, model.EntityID("c"))
				So(entrants[1].ID, ShouldEqual, model.EntityID("b"))
			})

			Convey("Then there is no overall winner yet", func() {
				_, ok := b.Winner()
				So(ok, ShouldBeFalse)
			})

			Convey("Then resolving it twice fails", func() {
				So(b.Advance(opener.ID, entity("b", 2), entity("a", 1)), ShouldWrap, bracket.ErrAlreadyResolved)
			})
		})

		Convey("When the full bracket plays out", func() {
			opener := b.NextMatch()
			So(b.Advance(opener.ID, entity("a", 1), entity("b", 2)), ShouldBeNil)
			final := b.NextMatch()
			So(b.Advance(final.ID, entity("c", 3), entity("a", 1)), ShouldBeNil)

			Convey("Then the overall winner is the final's winner", func() {
				winner, ok := b.Winner()
				So(ok, ShouldBeTrue)
				So(winner.ID, ShouldEqual, model.EntityID("c"))
			})

			Convey("Then no further match is resolvable", func() {
				So(b.NextMatch(), ShouldBeNil)
			})
		})

		Convey("When advancing an unknown match", func() {
			err := b.Advance("nope", entity("a", 1), entity("b", 2))

			Convey("Then it fails", func() {
				So(err, ShouldWrap, bracket.ErrUnknownMatch)
			})
		})

		Convey("When advancing a match that is not ready", func() {
			final := b.Rounds[1][0]
			err := b.Advance(final.ID, entity("c", 3), entity("a", 1))

			Convey("Then it fails", func() {
				So(err, ShouldWrap, bracket.ErrMatchNotReady)
			})
		})

		Convey("When the claimed winner is not an entrant", func() {
			opener := b.NextMatch()
			err := b.Advance(opener.ID, entity("c", 3), entity("a", 1))

			Convey("Then it fails", func() {
				So(err, ShouldWrap, bracket.ErrNotEntrant)
			})
		})
	})
}
