package config_test

import (
	"testing"

	config "github.com/okian/rolloff/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given default configuration", t, func() {
		cfg := config.New()

		Convey("Then defaults are sane", func() {
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.Addr, ShouldEqual, ":9090")
			So(cfg.DieFaces, ShouldEqual, 20)
			So(cfg.SolicitTimeoutMS, ShouldEqual, 30_000)
			So(cfg.SettleDelayMS, ShouldEqual, 250)
			So(cfg.RankEpsilon, ShouldAlmostEqual, 0.01)
			So(cfg.AutoResolve, ShouldBeTrue)
			So(cfg.IncludeUnowned, ShouldBeTrue)
			So(cfg.EventQueueSize, ShouldEqual, 1024)
			So(cfg.UpdateBufferSize, ShouldEqual, 256)
			So(cfg.WSSendBuffer, ShouldEqual, 64)
		})
	})
}
