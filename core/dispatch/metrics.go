package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchDuration *prometheus.HistogramVec
	jobsAssigned     *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	lineLoad         *prometheus.GaugeVec
	publishSuccess   prometheus.Counter
	publishFailure   prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.GaugeVec, prometheus.Counter, prometheus.Counter) {
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_run_duration_seconds",
			Help:    "Duration of dispatch runs including queue publication",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"process"},
	)
	assigned := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_jobs_assigned_total",
			Help: "Number of jobs assigned to lines",
		},
		[]string{"process", "line"},
	)
	errs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_job_errors_total",
			Help: "Number of jobs that could not be assigned, by reason",
		},
		[]string{"process", "kind"},
	)
	load := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_line_load",
			Help: "Queued quantity per line after the last dispatch run",
		},
		[]string{"process", "line"},
	)
	suc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_queue_publish_success_total",
			Help: "Number of line queues published successfully",
		},
	)
	fail := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_queue_publish_failure_total",
			Help: "Number of failed line queue publications",
		},
	)
	return dur, assigned, errs, load, suc, fail
}

func init() {
	dispatchDuration, jobsAssigned, jobErrors, lineLoad, publishSuccess, publishFailure = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchDuration, jobsAssigned, jobErrors, lineLoad, publishSuccess, publishFailure)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispatchDuration, jobsAssigned, jobErrors, lineLoad, publishSuccess, publishFailure = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
