package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/foundry/core/metrics"
)

// PromSink exposes run summaries as Prometheus metrics.
type PromSink struct {
	dispatchRuns *prometheus.CounterVec
	pinned       *prometheus.GaugeVec
	queueLatency *prometheus.HistogramVec
	pinChanges   *prometheus.CounterVec
	objective    *prometheus.GaugeVec
	lateDays     *prometheus.GaugeVec
	skipped      *prometheus.GaugeVec
}

var (
	_ coremetrics.PlanRunRecorder      = (*PromSink)(nil)
	_ coremetrics.QueuePublishRecorder = (*PromSink)(nil)
	_ coremetrics.PinChangeRecorder    = (*PromSink)(nil)
)

// NewPromSink registers the sink metrics on the default Prometheus registerer.
// Collectors are scraped from the API server's /metrics, or from a dedicated
// listener when cfg.PrometheusPort is set.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// register adds c to reg, reusing the collector already registered under
// the same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.dispatchRuns, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sink_dispatch_runs_total",
		Help: "Dispatch runs recorded by the metrics sink",
	}, []string{"process"})); err != nil {
		return nil, err
	}
	if s.pinned, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_pinned_jobs",
		Help: "Pinned rows placed by the last dispatch run",
	}, []string{"process"})); err != nil {
		return nil, err
	}
	if s.queueLatency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queue_publish_latency_seconds",
		Help:    "Time to hand a line queue to its terminal",
		Buckets: prometheus.DefBuckets,
	}, []string{"line_id", "ok"})); err != nil {
		return nil, err
	}
	if s.pinChanges, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pin_changes_total",
		Help: "Operator changes to pinned work",
	}, []string{"action"})); err != nil {
		return nil, err
	}
	if s.objective, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plan_objective",
		Help: "Objective of the last plan per scenario",
	}, []string{"scenario"})); err != nil {
		return nil, err
	}
	if s.lateDays, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plan_late_days",
		Help: "Total late workdays of the last plan per scenario",
	}, []string{"scenario"})); err != nil {
		return nil, err
	}
	if s.skipped, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "plan_skipped_orders",
		Help: "Orders left unfinished by the last plan per scenario",
	}, []string{"scenario"})); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PromSink) RecordDispatchRun(run coremetrics.DispatchRun) error {
	s.dispatchRuns.WithLabelValues(run.Process).Inc()
	s.pinned.WithLabelValues(run.Process).Set(float64(run.Pinned))
	return nil
}

func (s *PromSink) RecordPlanRun(run coremetrics.PlanRun) error {
	s.objective.WithLabelValues(run.Scenario).Set(float64(run.Objective))
	s.lateDays.WithLabelValues(run.Scenario).Set(float64(run.TotalLateDays))
	s.skipped.WithLabelValues(run.Scenario).Set(float64(run.Skipped))
	return nil
}

func (s *PromSink) RecordQueuePublish(ev coremetrics.QueuePublishEvent) error {
	s.queueLatency.WithLabelValues(ev.LineID, strconv.FormatBool(ev.Error == "")).Observe(ev.Latency.Seconds())
	return nil
}

func (s *PromSink) RecordPinChange(ev coremetrics.PinChangeEvent) error {
	s.pinChanges.WithLabelValues(ev.Action).Inc()
	return nil
}
