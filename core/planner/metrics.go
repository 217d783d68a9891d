package planner

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	planRuns     *prometheus.CounterVec
	planDuration *prometheus.HistogramVec
	moldsPlanned *prometheus.GaugeVec
	lateOrders   *prometheus.GaugeVec
	lpFallbacks  prometheus.Counter
)

func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.GaugeVec, *prometheus.GaugeVec, prometheus.Counter) {
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_runs_total",
			Help: "Number of planning runs by solver and final status",
		},
		[]string{"solver", "status"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planner_run_duration_seconds",
			Help:    "Duration of planning runs",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"scenario"},
	)
	molds := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "planner_molds_planned",
			Help: "Molds allocated by the last run of a scenario",
		},
		[]string{"scenario"},
	)
	late := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "planner_late_orders",
			Help: "Orders completing after their due day in the last run of a scenario",
		},
		[]string{"scenario"},
	)
	fb := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "planner_lp_fallbacks_total",
			Help: "Workdays the LP solver could not solve and allocated greedily",
		},
	)
	return runs, dur, molds, late, fb
}

func init() {
	planRuns, planDuration, moldsPlanned, lateOrders, lpFallbacks = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers planner metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(planRuns, planDuration, moldsPlanned, lateOrders, lpFallbacks)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	planRuns, planDuration, moldsPlanned, lateOrders, lpFallbacks = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
