package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a manager on its own registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(
			WithNamespace("test"),
			WithSubsystem("unit"),
			WithMetricPrefix("x"),
			WithCustomLabels(map[string]string{"env": "test"}),
			WithPrometheusRegistry(registry),
		)
		m.jobsSubmitted.Inc()

		Convey("Then collectors are registered with the configured names", func() {
			families, err := registry.Gather()
			So(err, ShouldBeNil)
			names := make([]string, 0, len(families))
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(names, ShouldContain, "test_unit_x_jobs_submitted_total")
		})

		Convey("Then custom labels are attached", func() {
			families, err := registry.Gather()
			So(err, ShouldBeNil)
			for _, f := range families {
				if f.GetName() != "test_unit_x_jobs_submitted_total" {
					continue
				}
				labels := f.GetMetric()[0].GetLabel()
				So(labels, ShouldHaveLength, 1)
				So(labels[0].GetName(), ShouldEqual, "env")
				So(labels[0].GetValue(), ShouldEqual, "test")
			}
		})
	})

	Convey("Given a disabled manager", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(registry))

		Convey("Then collectors work but nothing is registered", func() {
			So(func() { m.jobsFailed.Inc() }, ShouldNotPanic)
			families, err := registry.Gather()
			So(err, ShouldBeNil)
			So(families, ShouldBeEmpty)
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When a job runs to completion", func() {
			before := testutil.ToFloat64(globalManager.jobsCompleted)
			RecordJobSubmitted()
			RecordJobStarted()
			RecordJobCompleted(2 * time.Second)

			Convey("Then the completed counter moves and nothing stays active", func() {
				So(testutil.ToFloat64(globalManager.jobsCompleted), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.jobsActive), ShouldEqual, 0)
			})
		})

		Convey("When points are awarded", func() {
			top := testutil.ToFloat64(globalManager.pointsAwarded.WithLabelValues("top"))
			RecordPoint("top")
			RecordPoint("top")
			RecordPoint("bottom")

			Convey("Then each winner has its own series", func() {
				So(testutil.ToFloat64(globalManager.pointsAwarded.WithLabelValues("top")), ShouldEqual, top+2)
			})
		})

		Convey("When queue gauges are set", func() {
			UpdateQueueCapacity(16)
			UpdateQueueSize(4)
			UpdateQueueUtilization(0.25)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 16)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.25)
			})
		})

		Convey("When stream clients come and go", func() {
			AddStreamClients(1)
			AddStreamClients(1)
			AddStreamClients(-2)
			So(testutil.ToFloat64(globalManager.streamClients), ShouldEqual, 0)
		})

		Convey("Then every recorder is safe to call", func() {
			So(func() {
				RecordJobStarted()
				RecordJobFailed(time.Second)
				RecordFrameProcessed(1.5)
				RecordBounce()
				RecordRally()
				UpdateStoreJobs(3)
				RecordStoreUpdateLatency(0.2)
				RecordStoreQueryLatency(0.1)
				RecordArchiveWrite(3)
				RecordArchiveLatency(1)
				RecordHTTPRequest("/api/status", "GET", "200")
				RecordHTTPRequestDuration("/api/status", "GET", "200", 1)
				RecordStreamFrame()
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueRejected()
				RecordQueueWait(4)
				UpdateWorkerCount(4)
				UpdateWorkerActiveCount(1)
				UpdateWorkerIdleCount(3)
				RecordWorkerProcessingLatency(1200)
				RecordWorkerError()
				RecordWorkerPanic()
				RecordErrorByComponent("pipeline", "source")
				RecordErrorByEndpoint("/api/upload", "POST", "backpressure")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordJobSubmitted()
		families, err := GetRegistry().Gather()
		So(err, ShouldBeNil)

		Convey("Then only pickle metrics are exposed", func() {
			So(families, ShouldNotBeEmpty)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "pickle_analytics_"), ShouldBeTrue)
			}
		})

		Convey("Then the refresh interval has a default", func() {
			So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given many goroutines recording", t, func() {
		before := testutil.ToFloat64(globalManager.framesProcessed)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordFrameProcessed(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then no increment is lost", func() {
			So(testutil.ToFloat64(globalManager.framesProcessed), ShouldEqual, before+1000)
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the global manager is reconfigured as disabled", t, func() {
		prev, prevRegistry := globalManager, customRegistry
		Reset(func() { globalManager, customRegistry = prev, prevRegistry })

		Configure(WithMetricsEnabled(false))
		RecordJobSubmitted()

		Convey("Then recording still works and nothing is exposed", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(families, ShouldBeEmpty)
		})
	})
}

// bucketCount returns how many buckets the named histogram exposes.
func bucketCount(t *testing.T, g prometheus.Gatherer, name string) int {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return len(f.GetMetric()[0].GetHistogram().GetBucket())
		}
	}
	t.Fatalf("histogram %s not found", name)
	return 0
}

func TestHistogramBuckets(t *testing.T) {
	Convey("Given a manager without bucket overrides", t, func() {
		registry := prometheus.NewRegistry()
		NewManager(WithPrometheusRegistry(registry))

		Convey("Then latency histograms use the millisecond defaults", func() {
			So(bucketCount(t, registry, "pickle_analytics_store_update_latency_milliseconds"), ShouldEqual, len(DefaultLatencyBuckets))
			So(bucketCount(t, registry, "pickle_analytics_queue_wait_milliseconds"), ShouldEqual, len(DefaultLatencyBuckets))
		})
	})

	Convey("Given a manager with custom latency buckets", t, func() {
		registry := prometheus.NewRegistry()
		buckets := []float64{2, 20, 200}
		NewManager(WithPrometheusRegistry(registry), WithHistogramBuckets(buckets))

		Convey("Then the shared latency histograms use them", func() {
			So(bucketCount(t, registry, "pickle_analytics_store_query_latency_milliseconds"), ShouldEqual, 3)
			So(bucketCount(t, registry, "pickle_analytics_archive_latency_milliseconds"), ShouldEqual, 3)
		})

		Convey("Then histograms with their own buckets keep them", func() {
			So(bucketCount(t, registry, "pickle_analytics_frame_latency_milliseconds"), ShouldEqual, 9)
		})
	})
}

func TestRefreshInterval(t *testing.T) {
	Convey("Given the global manager configured with a refresh interval", t, func() {
		prev, prevRegistry := globalManager, customRegistry
		Reset(func() { globalManager, customRegistry = prev, prevRegistry })

		Configure(WithRefreshInterval(250 * time.Millisecond))
		So(RefreshInterval(), ShouldEqual, 250*time.Millisecond)

		Convey("Then a non-positive interval keeps the default", func() {
			Configure(WithRefreshInterval(0))
			So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
		})
	})
}
