package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewDistributionMetrics(t *testing.T) {
	metrics := NewDistributionMetrics()

	if metrics == nil {
		t.Fatal("NewDistributionMetrics should not return nil")
	}

	if metrics.distributionsStarted == nil {
		t.Error("distributionsStarted counter should not be nil")
	}
	if metrics.distributionsSucceeded == nil {
		t.Error("distributionsSucceeded counter should not be nil")
	}
	if metrics.distributionsFailed == nil {
		t.Error("distributionsFailed counter should not be nil")
	}
	if metrics.distributionDuration == nil {
		t.Error("distributionDuration histogram should not be nil")
	}
	if metrics.componentDuration == nil {
		t.Error("componentDuration histogram vec should not be nil")
	}
	if metrics.migrationsTotal == nil {
		t.Error("migrationsTotal counter should not be nil")
	}
	if metrics.refundNotificationsTotal == nil {
		t.Error("refundNotificationsTotal counter should not be nil")
	}
	if metrics.refundsPropagatedTotal == nil {
		t.Error("refundsPropagatedTotal counter should not be nil")
	}
	if metrics.outboxEvents == nil {
		t.Error("outboxEvents counter should not be nil")
	}
	if metrics.activeDistributions == nil {
		t.Error("activeDistributions gauge should not be nil")
	}
}

func TestRecordDistributionStarted(t *testing.T) {
	reg := prometheus.NewRegistry()

	started := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_distributions_started_total", Help: "Test counter"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_active_distributions", Help: "Test gauge"})
	reg.MustRegister(started, active)

	metrics := &DistributionMetrics{distributionsStarted: started, activeDistributions: active}
	metrics.RecordDistributionStarted()

	metric := &dto.Metric{}
	if err := started.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1.0, got %f", metric.Counter.GetValue())
	}

	gaugeMetric := &dto.Metric{}
	if err := active.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gaugeMetric.Gauge.GetValue() != 1.0 {
		t.Errorf("expected active distributions 1.0, got %f", gaugeMetric.Gauge.GetValue())
	}
}

func TestRecordDistributionSucceededAndFailed(t *testing.T) {
	reg := prometheus.NewRegistry()

	succeeded := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_distributions_succeeded_total", Help: "Test counter"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_distributions_failed_total", Help: "Test counter"})
	reg.MustRegister(succeeded, failed)

	metrics := &DistributionMetrics{distributionsSucceeded: succeeded, distributionsFailed: failed}
	metrics.RecordDistributionSucceeded()
	metrics.RecordDistributionSucceeded()
	metrics.RecordDistributionFailed()

	succMetric := &dto.Metric{}
	if err := succeeded.Write(succMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if succMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 succeeded, got %f", succMetric.Counter.GetValue())
	}

	failMetric := &dto.Metric{}
	if err := failed.Write(failMetric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if failMetric.Counter.GetValue() != 1.0 {
		t.Errorf("expected 1 failed, got %f", failMetric.Counter.GetValue())
	}
}

func TestRecordDistributionDuration(t *testing.T) {
	reg := prometheus.NewRegistry()

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_distribution_duration_seconds",
		Help:    "Test histogram",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(duration)

	metrics := &DistributionMetrics{distributionDuration: duration}
	metrics.RecordDistributionDuration(100 * time.Millisecond)
	metrics.RecordDistributionDuration(400 * time.Millisecond)

	metric := &dto.Metric{}
	if err := duration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestRecordComponentDuration(t *testing.T) {
	reg := prometheus.NewRegistry()

	componentDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_component_duration_seconds",
		Help:    "Test histogram vec",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"component"})
	reg.MustRegister(componentDuration)

	metrics := &DistributionMetrics{componentDuration: componentDuration}
	metrics.RecordComponentDuration("scheduler", 50*time.Millisecond)
	metrics.RecordComponentDuration("reconciler", 25*time.Millisecond)

	schedulerMetric := &dto.Metric{}
	observer := componentDuration.WithLabelValues("scheduler")
	if err := observer.(prometheus.Histogram).Write(schedulerMetric); err != nil {
		t.Fatalf("failed to write scheduler metric: %v", err)
	}
	if schedulerMetric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 sample for scheduler, got %d", schedulerMetric.Histogram.GetSampleCount())
	}
}

func TestRecordAncillaryCounters(t *testing.T) {
	reg := prometheus.NewRegistry()

	migrations := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_migrations_total", Help: "Test counter"})
	refundNotifs := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_refund_notifications_total", Help: "Test counter"})
	refundsPropagated := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_refunds_propagated_total", Help: "Test counter"})
	outbox := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_outbox_events_total", Help: "Test counter"})
	reg.MustRegister(migrations, refundNotifs, refundsPropagated, outbox)

	metrics := &DistributionMetrics{
		migrationsTotal:          migrations,
		refundNotificationsTotal: refundNotifs,
		refundsPropagatedTotal:   refundsPropagated,
		outboxEvents:             outbox,
	}

	metrics.RecordMigration()
	metrics.RecordMigration()
	metrics.RecordRefundNotification()
	metrics.RecordRefundPropagated()
	metrics.RecordOutboxEvent()
	metrics.RecordOutboxEvent()
	metrics.RecordOutboxEvent()

	assertCounter := func(c prometheus.Counter, want float64) {
		t.Helper()
		metric := &dto.Metric{}
		if err := c.Write(metric); err != nil {
			t.Fatalf("failed to write metric: %v", err)
		}
		if metric.Counter.GetValue() != want {
			t.Errorf("expected %f, got %f", want, metric.Counter.GetValue())
		}
	}

	assertCounter(migrations, 2.0)
	assertCounter(refundNotifs, 1.0)
	assertCounter(refundsPropagated, 1.0)
	assertCounter(outbox, 3.0)
}

func TestDistributionInFlightLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()

	active := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_distribution_lifecycle_active", Help: "Test gauge"})
	started := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_distribution_lifecycle_started", Help: "Test counter"})
	succeeded := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_distribution_lifecycle_succeeded", Help: "Test counter"})
	reg.MustRegister(active, started, succeeded)

	metrics := &DistributionMetrics{activeDistributions: active, distributionsStarted: started, distributionsSucceeded: succeeded}

	metrics.RecordDistributionStarted()
	metrics.RecordDistributionStarted()
	metrics.RecordDistributionStarted()

	metrics.RecordDistributionSucceeded()
	metrics.RecordDistributionInFlightFinished()
	metrics.RecordDistributionSucceeded()
	metrics.RecordDistributionInFlightFinished()

	gaugeMetric := &dto.Metric{}
	if err := active.Write(gaugeMetric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if gaugeMetric.Gauge.GetValue() != 1.0 {
		t.Errorf("expected 1 active distribution, got %f", gaugeMetric.Gauge.GetValue())
	}

	startedMetric := &dto.Metric{}
	if err := started.Write(startedMetric); err != nil {
		t.Fatalf("failed to write started metric: %v", err)
	}
	if startedMetric.Counter.GetValue() != 3.0 {
		t.Errorf("expected 3 started, got %f", startedMetric.Counter.GetValue())
	}

	succeededMetric := &dto.Metric{}
	if err := succeeded.Write(succeededMetric); err != nil {
		t.Fatalf("failed to write succeeded metric: %v", err)
	}
	if succeededMetric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 succeeded, got %f", succeededMetric.Counter.GetValue())
	}
}
