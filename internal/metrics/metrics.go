package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mescon/Tickarr/internal/domain"
	"github.com/mescon/Tickarr/internal/eventbus"
	"github.com/mescon/Tickarr/internal/logger"
)

// MetricsService exposes Prometheus metrics for Tickarr
type MetricsService struct {
	eventBus eventbus.Publisher
	gatherer prometheus.Gatherer

	// Counters
	rendersTotal       *prometheus.CounterVec
	widgetEventsTotal  *prometheus.CounterVec
	eventsDropped      *prometheus.CounterVec
	countdownsFinished prometheus.Counter
	evictionsTotal     prometheus.Counter
}

// Gauges supplies the current values of the state gauges. Nil funcs are not registered.
type Gauges struct {
	Elements       func() int
	RunningWidgets func() int
}

// NewMetricsService creates the metrics and registers them with reg. A nil reg
// uses the default Prometheus registry.
func NewMetricsService(eb eventbus.Publisher, reg *prometheus.Registry, gauges Gauges) *MetricsService {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}

	m := &MetricsService{
		eventBus: eb,
		gatherer: gatherer,

		rendersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickarr_renders_total",
				Help: "Total number of texts rendered into display elements",
			},
			[]string{"element"},
		),

		widgetEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickarr_widget_events_total",
				Help: "Total number of widget lifecycle events by type",
			},
			[]string{"event_type"},
		),

		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickarr_events_dropped_total",
				Help: "Events dropped because a subscriber was too slow",
			},
			[]string{"event_type"},
		),

		countdownsFinished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tickarr_countdowns_finished_total",
				Help: "Total number of count-down widgets that reached zero",
			},
		),

		evictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tickarr_evictions_total",
				Help: "Total number of widgets evicted from their element by another widget",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.rendersTotal,
		m.widgetEventsTotal,
		m.eventsDropped,
		m.countdownsFinished,
		m.evictionsTotal,
	}
	if gauges.Elements != nil {
		collectors = append(collectors, gaugeFunc("tickarr_elements", "Number of display elements", gauges.Elements))
	}
	if gauges.RunningWidgets != nil {
		collectors = append(collectors, gaugeFunc("tickarr_running_widgets", "Number of widgets with an active update schedule", gauges.RunningWidgets))
	}
	registerer.MustRegister(collectors...)

	return m
}

func gaugeFunc(name, help string, value func() int) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 { return float64(value()) },
	)
}

// Start subscribes to widget events and updates metrics
func (m *MetricsService) Start() {
	for _, eventType := range domain.WidgetEventTypes {
		m.eventBus.Subscribe(eventType, m.handleWidgetEvent)
	}
	logger.Infof("Metrics service started")
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRender counts a text written into an element. It matches display.RenderFunc.
func (m *MetricsService) ObserveRender(elementID, _ string) {
	m.rendersTotal.WithLabelValues(elementID).Inc()
}

// ObserveDrop counts an event the bus could not deliver.
func (m *MetricsService) ObserveDrop(eventType domain.EventType) {
	m.eventsDropped.WithLabelValues(string(eventType)).Inc()
}

func (m *MetricsService) handleWidgetEvent(event domain.Event) {
	m.widgetEventsTotal.WithLabelValues(string(event.EventType)).Inc()

	switch event.EventType {
	case domain.CountdownFinished:
		m.countdownsFinished.Inc()
	case domain.WidgetEvicted:
		m.evictionsTotal.Inc()
	}
}
