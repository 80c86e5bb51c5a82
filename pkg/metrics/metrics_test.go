package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			manager := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then it should be created and enabled", func() {
				So(manager, ShouldNotBeNil)
				So(manager.enabled, ShouldBeTrue)
				So(manager.namespace, ShouldEqual, "scoreline")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("engine"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithMetricsEnabled(false),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test")
				So(manager.subsystem, ShouldEqual, "engine")
				So(manager.histogramBuckets, ShouldResemble, []float64{1, 10})
				So(manager.enabled, ShouldBeFalse)
			})

			Convey("And collectors are registered on the given registry", func() {
				manager.lockAcquired.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording lock activity", func() {
			before := testutil.ToFloat64(globalManager.lockContention)
			RecordLockContention()
			RecordLockContention()

			Convey("Then the contention counter increases", func() {
				So(testutil.ToFloat64(globalManager.lockContention), ShouldEqual, before+2)
			})
		})

		Convey("When recording score operations", func() {
			before := testutil.ToFloat64(globalManager.scoreOperations.WithLabelValues("submit", "ok"))
			RecordScoreOperation("submit", "ok")

			So(testutil.ToFloat64(globalManager.scoreOperations.WithLabelValues("submit", "ok")), ShouldEqual, before+1)
		})

		Convey("When recording everything else", func() {
			So(func() {
				RecordValidationFailure("out_of_range")
				RecordTransactionLatency(12)
				RecordTransactionAttempts(2)
				RecordLockAcquired()
				RecordLockRetryExceeded()
				RecordLockReleased()
				RecordLockReleaseError()
				RecordLockBackoff(50)
				RecordStorageConflict()
				RecordStorageError()
				RecordStorageLatency("transaction", 3)
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				UpdateWorkerCount(4)
				RecordWorkerLatency(8)
				RecordWorkerError()
				RecordErrorByComponent("scoring", "storage")
			}, ShouldNotPanic)
		})

		Convey("When gauges are set", func() {
			UpdateQueueSize(42)
			So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 42)
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
