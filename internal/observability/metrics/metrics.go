package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters for the booking transaction core.
type SchedulingMetrics struct {
	operationsTotal *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "scheduling",
			Name:      "operations_total",
			Help:      "Booking core operations by outcome",
		}, []string{"operation", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal)
	return m
}

func (m *SchedulingMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ResolverMetrics counts resolved intents and oracle fallbacks.
type ResolverMetrics struct {
	intentsTotal   *prometheus.CounterVec
	fallbacksTotal prometheus.Counter
}

func NewResolverMetrics(reg prometheus.Registerer) *ResolverMetrics {
	m := &ResolverMetrics{
		intentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "resolver",
			Name:      "intents_total",
			Help:      "Classified intents per dialogue turn",
		}, []string{"intent", "source"}),
		fallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "resolver",
			Name:      "oracle_fallbacks_total",
			Help:      "Turns where the NLU oracle failed and the deterministic parser took over",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.intentsTotal, m.fallbacksTotal)
	return m
}

func (m *ResolverMetrics) ObserveIntent(intent, source string) {
	if m == nil {
		return
	}
	m.intentsTotal.WithLabelValues(intent, source).Inc()
}

func (m *ResolverMetrics) ObserveOracleFallback() {
	if m == nil {
		return
	}
	m.fallbacksTotal.Inc()
}

// WaitlistMetrics counts reconciler runs and per-entry outcomes.
type WaitlistMetrics struct {
	runsTotal    prometheus.Counter
	entriesTotal *prometheus.CounterVec
}

func NewWaitlistMetrics(reg prometheus.Registerer) *WaitlistMetrics {
	m := &WaitlistMetrics{
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "waitlist",
			Name:      "runs_total",
			Help:      "Completed reconciler scans",
		}),
		entriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "waitlist",
			Name:      "entries_total",
			Help:      "Waitlist entries processed by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.entriesTotal)
	return m
}

func (m *WaitlistMetrics) ObserveRun() {
	if m == nil {
		return
	}
	m.runsTotal.Inc()
}

func (m *WaitlistMetrics) ObserveEntry(outcome string) {
	if m == nil {
		return
	}
	m.entriesTotal.WithLabelValues(outcome).Inc()
}
