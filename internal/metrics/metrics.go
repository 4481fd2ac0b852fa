// Package metrics holds the bot's Prometheus collectors and persists their
// counters across restarts.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "itslive"
	subsystem = "telegram_bot"
)

// Persister saves metric values between runs.
type Persister interface {
	SaveMetric(ctx context.Context, metricName string, value float64) error
	GetMetric(ctx context.Context, metricName string) (float64, error)
	SaveMetricWithLabels(ctx context.Context, metricName, labelKey, labelValue string, value float64) error
	GetMetricsWithLabels(ctx context.Context, metricName string) (map[string]map[string]float64, error)
}

type BotMetrics struct {
	CommandsProcessed prometheus.Counter
	AlertsFiredTotal  prometheus.Counter
	EventsReceived    *prometheus.CounterVec
	Notifications     *prometheus.CounterVec
	FeedConnected     prometheus.Gauge

	registry *prometheus.Registry
	mutex    sync.Mutex
}

func NewBotMetrics() *BotMetrics {
	m := &BotMetrics{
		CommandsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_processed",
			Help:      "The total number of processed commands",
		}),
		AlertsFiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "alerts_fired",
			Help:      "The total number of market cap alerts that fired",
		}),
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "events_received",
				Help:      "The total number of feed events received per event name",
			},
			[]string{"event"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "notifications",
				Help:      "Platform calls made for notifications per kind and result",
			},
			[]string{"kind", "result"},
		),
		FeedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "feed_connected",
			Help:      "1 while the livestream feed is connected",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.CommandsProcessed,
		m.AlertsFiredTotal,
		m.EventsReceived,
		m.Notifications,
		m.FeedConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *BotMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *BotMetrics) EventReceived(event string) {
	m.EventsReceived.WithLabelValues(event).Inc()
}

func (m *BotMetrics) AlertsFired(n int) {
	m.AlertsFiredTotal.Add(float64(n))
}

func (m *BotMetrics) Notification(kind, result string) {
	m.Notifications.WithLabelValues(kind, result).Inc()
}

func (m *BotMetrics) CommandProcessed() {
	m.CommandsProcessed.Inc()
}

func (m *BotMetrics) SetFeedConnected(connected bool) {
	if connected {
		m.FeedConnected.Set(1)
		return
	}
	m.FeedConnected.Set(0)
}

// Load adds the saved counter values to the collectors. It is meant to run once
// at startup, before anything is counted.
func (m *BotMetrics) Load(ctx context.Context, p Persister) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	commandsProcessed, err := p.GetMetric(ctx, "commands_processed")
	if err != nil {
		return err
	}
	alertsFired, err := p.GetMetric(ctx, "alerts_fired")
	if err != nil {
		return err
	}
	m.CommandsProcessed.Add(commandsProcessed)
	m.AlertsFiredTotal.Add(alertsFired)

	err = loadLabeledMetrics(ctx, p, "events_received", func(_, event string, value float64) {
		m.EventsReceived.WithLabelValues(event).Add(value)
	})
	if err != nil {
		return err
	}

	err = loadLabeledMetrics(ctx, p, "notifications", func(kind, result string, value float64) {
		m.Notifications.WithLabelValues(kind, result).Add(value)
	})
	if err != nil {
		return err
	}

	log.Info("Metrics loaded from database.")
	return nil
}

func loadLabeledMetrics(ctx context.Context, p Persister, metricName string, callback func(labelKey, labelValue string, value float64)) error {
	metricsWithLabels, err := p.GetMetricsWithLabels(ctx, metricName)
	if err != nil {
		return err
	}
	for labelKey, labelValues := range metricsWithLabels {
		for labelValue, value := range labelValues {
			callback(labelKey, labelValue, value)
		}
	}
	return nil
}

// Save writes the current counter values. Events are stored under the label key
// "event", notifications as kind=result pairs.
func (m *BotMetrics) Save(ctx context.Context, p Persister) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := p.SaveMetric(ctx, "commands_processed", GetMetricValue(m.CommandsProcessed)); err != nil {
		return err
	}
	if err := p.SaveMetric(ctx, "alerts_fired", GetMetricValue(m.AlertsFiredTotal)); err != nil {
		return err
	}

	for _, metric := range collect(m.EventsReceived) {
		labels := labelValues(metric)
		if err := p.SaveMetricWithLabels(ctx, "events_received", "event", labels["event"], metric.GetCounter().GetValue()); err != nil {
			return err
		}
	}

	for _, metric := range collect(m.Notifications) {
		labels := labelValues(metric)
		if err := p.SaveMetricWithLabels(ctx, "notifications", labels["kind"], labels["result"], metric.GetCounter().GetValue()); err != nil {
			return err
		}
	}

	log.Info("Metrics saved to database.")
	return nil
}

// collect reads every child of a collector.
func collect(c prometheus.Collector) []*dto.Metric {
	metricChan := make(chan prometheus.Metric)
	go func() {
		c.Collect(metricChan)
		close(metricChan)
	}()

	var out []*dto.Metric
	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.WithError(errors.WithStack(err)).Warn("Failed to read metric")
			continue
		}
		out = append(out, metricProto)
	}
	return out
}

func labelValues(metric *dto.Metric) map[string]string {
	labels := make(map[string]string, len(metric.GetLabel()))
	for _, label := range metric.GetLabel() {
		labels[label.GetName()] = label.GetValue()
	}
	return labels
}

// GetMetricValue reads the value of a single counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	for _, metricProto := range collect(metric) {
		if metricProto.Counter != nil {
			return metricProto.Counter.GetValue()
		}
		if metricProto.Gauge != nil {
			return metricProto.Gauge.GetValue()
		}
	}
	return 0
}
