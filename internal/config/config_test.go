package config_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/okian/scoreline/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
			convey.So(cfg.StoreConflictRetries, convey.ShouldEqual, 10)
			convey.So(cfg.LockTTLMS, convey.ShouldEqual, 5000)
			convey.So(cfg.LockMaxRetries, convey.ShouldEqual, 5)
			convey.So(cfg.LockBaseBackoffMS, convey.ShouldEqual, 50)
			convey.So(cfg.LockMaxJitterMS, convey.ShouldEqual, 25)
			convey.So(cfg.SimWorkers, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the lock policy is derived from the millisecond fields", func() {
			p := cfg.LockPolicy()
			convey.So(p.TTL, convey.ShouldEqual, 5*time.Second)
			convey.So(p.BaseDelay, convey.ShouldEqual, 50*time.Millisecond)
			convey.So(p.MaxJitter, convey.ShouldEqual, 25*time.Millisecond)
		})

		convey.Convey("Then the default rubric has the stock attributes", func() {
			convey.So(cfg.Rubric().IDs(), convey.ShouldResemble, []string{"aroma", "appearance", "flavor", "overall"})
		})
	})
}
