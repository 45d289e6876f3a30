package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DistributionMetrics содержит метрики для движка распределения заказов:
// планировщика, оркестратора покупок, синхронизатора доступности,
// пропагатора возвратов и сервиса уведомлений.
type DistributionMetrics struct {
	// Счётчики операций распределения
	distributionsStarted   prometheus.Counter
	distributionsSucceeded prometheus.Counter
	distributionsFailed    prometheus.Counter

	// Гистограммы времени выполнения
	distributionDuration prometheus.Histogram
	componentDuration     *prometheus.HistogramVec

	// Счётчики смежных операций
	migrationsTotal          prometheus.Counter
	refundNotificationsTotal prometheus.Counter
	refundsPropagatedTotal   prometheus.Counter
	outboxEvents             prometheus.Counter

	// Gauge для активных операций распределения
	activeDistributions prometheus.Gauge
}

// NewDistributionMetrics создаёт новый экземпляр метрик движка распределения.
func NewDistributionMetrics() *DistributionMetrics {
	return newDistributionMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newDistributionMetricsWithRegisterer(registerer prometheus.Registerer) *DistributionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &DistributionMetrics{
		distributionsStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "distribution_runs_started_total",
			Help: "Total number of distribution scheduler invocations started",
		}),
		distributionsSucceeded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "distribution_runs_succeeded_total",
			Help: "Total number of distribution scheduler invocations that succeeded",
		}),
		distributionsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "distribution_runs_failed_total",
			Help: "Total number of distribution scheduler invocations that failed",
		}),
		distributionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "distribution_run_duration_seconds",
			Help:    "Duration of distribution scheduler invocations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		componentDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "distribution_component_duration_seconds",
			Help:    "Duration of individual distribution engine components in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"component"}),
		migrationsTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "distribution_order_migrations_total",
			Help: "Total number of open orders migrated to a substitute point of sale",
		}),
		refundNotificationsTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "distribution_refund_notifications_total",
			Help: "Total number of refund notifications emitted by the availability reconciler",
		}),
		refundsPropagatedTotal: registerCounter(registerer, prometheus.CounterOpts{
			Name: "distribution_refunds_propagated_total",
			Help: "Total number of refund propagations applied across main and distributed orders",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "distribution_outbox_events_total",
			Help: "Total number of change-feed events enqueued into the transactional outbox",
		}),
		activeDistributions: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "distribution_runs_active",
			Help: "Number of distribution scheduler invocations currently in flight",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordDistributionStarted увеличивает счётчик начатых распределений.
func (m *DistributionMetrics) RecordDistributionStarted() {
	m.distributionsStarted.Inc()
	m.RecordDistributionInFlightStarted()
}

// RecordDistributionSucceeded увеличивает счётчик успешных распределений.
func (m *DistributionMetrics) RecordDistributionSucceeded() {
	m.distributionsSucceeded.Inc()
}

// RecordDistributionFailed увеличивает счётчик неудачных распределений.
func (m *DistributionMetrics) RecordDistributionFailed() {
	m.distributionsFailed.Inc()
}

// RecordDistributionInFlightStarted увеличивает количество активных распределений.
func (m *DistributionMetrics) RecordDistributionInFlightStarted() {
	m.activeDistributions.Inc()
}

// RecordDistributionInFlightFinished уменьшает количество активных распределений.
func (m *DistributionMetrics) RecordDistributionInFlightFinished() {
	m.activeDistributions.Dec()
}

// RecordDistributionDuration записывает время выполнения распределения.
func (m *DistributionMetrics) RecordDistributionDuration(duration time.Duration) {
	m.distributionDuration.Observe(duration.Seconds())
}

// RecordComponentDuration записывает время выполнения отдельного компонента
// движка (scheduler, orchestrator, reconciler, refund, notification).
func (m *DistributionMetrics) RecordComponentDuration(component string, duration time.Duration) {
	m.componentDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// RecordMigration увеличивает счётчик миграций заказов на замещающую точку продаж.
func (m *DistributionMetrics) RecordMigration() {
	m.migrationsTotal.Inc()
}

// RecordRefundNotification увеличивает счётчик уведомлений о возврате.
func (m *DistributionMetrics) RecordRefundNotification() {
	m.refundNotificationsTotal.Inc()
}

// RecordRefundPropagated увеличивает счётчик распространённых возвратов.
func (m *DistributionMetrics) RecordRefundPropagated() {
	m.refundsPropagatedTotal.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий, поставленных в outbox.
func (m *DistributionMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
