package main

import (
	"bytes"
	"testing"

	"github.com/okian/scoreline/pkg/metrics"
	"github.com/smartystreets/goconvey/convey"
)

func TestFlagHelpers(t *testing.T) {
	convey.Convey("Given flag overrides", t, func() {
		convey.Convey("When a string flag is empty", func() {
			v := "memory"
			override(&v, "")
			convey.So(v, convey.ShouldEqual, "memory")
		})

		convey.Convey("When a string flag is set", func() {
			v := "memory"
			override(&v, "sqlite")
			convey.So(v, convey.ShouldEqual, "sqlite")
		})

		convey.Convey("When an int flag is unset it falls back to config", func() {
			convey.So(pick(0, 8), convey.ShouldEqual, 8)
			convey.So(pick(3, 8), convey.ShouldEqual, 3)
		})
	})
}

func TestWriteMetrics(t *testing.T) {
	convey.Convey("Given recorded metrics", t, func() {
		metrics.RecordScoreOperation("submit", "ok")

		convey.Convey("Then they are written in the text exposition format", func() {
			var buf bytes.Buffer
			convey.So(writeMetrics(&buf), convey.ShouldBeNil)
			convey.So(buf.String(), convey.ShouldContainSubstring, "# TYPE scoreline_scores_")
		})
	})
}
