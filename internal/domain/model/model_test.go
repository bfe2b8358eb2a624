package model_test

import (
	"testing"
	"time"

	"github.com/okian/placebadge/internal/domain/geo"
	model "github.com/okian/placebadge/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestLocationReading(t *testing.T) {
	convey.Convey("Given a location reading", t, func() {
		at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
		r := model.NewLocationReading(37.422, -122.084, at, "network")

		convey.Convey("Then it carries the raw values", func() {
			convey.So(r.Coordinate, convey.ShouldResemble, geo.Coordinate{Lat: 37.422, Lon: -122.084})
			convey.So(r.Time, convey.ShouldEqual, at)
			convey.So(r.Provider, convey.ShouldEqual, "network")
		})

		convey.Convey("When computing its age", func() {
			convey.So(r.Age(at.Add(90*time.Second)), convey.ShouldEqual, 90*time.Second)

			convey.Convey("Then a reading from the future has a negative age", func() {
				convey.So(r.Age(at.Add(-time.Second)), convey.ShouldEqual, -time.Second)
			})
		})

		convey.Convey("When the coordinates are (0,0)", func() {
			zero := model.NewLocationReading(0, 0, at, "mock")
			convey.So(zero.Coordinate, convey.ShouldResemble, geo.Coordinate{})
		})
	})
}

func TestOutcomeString(t *testing.T) {
	convey.Convey("Given the trigger outcomes", t, func() {
		convey.So(model.OutcomeNoLocation.String(), convey.ShouldEqual, "no_location")
		convey.So(model.OutcomeAlreadyPresent.String(), convey.ShouldEqual, "already_present")
		convey.So(model.OutcomeFetchStarted.String(), convey.ShouldEqual, "fetch_started")
		convey.So(model.Outcome(42).String(), convey.ShouldEqual, "unknown")
		convey.So(model.OutcomeUnknown.String(), convey.ShouldEqual, "unknown")
		convey.So(model.Outcome(0), convey.ShouldEqual, model.OutcomeUnknown)
	})
}
