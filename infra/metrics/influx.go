package metrics

import (
	"context"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/foundry/core/metrics"
	"github.com/kilianp07/foundry/infra/logger"
)

// InfluxSink writes run summaries to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(points ...*write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordDispatchRun writes one dispatch_run point and one line_load point
// per line, lines in name order.
func (s *InfluxSink) RecordDispatchRun(run coremetrics.DispatchRun) error {
	errs := 0
	for _, n := range run.Errors {
		errs += n
	}
	points := []*write.Point{write.NewPointWithMeasurement("dispatch_run").
		AddTag("process", run.Process).
		AddTag("run_id", run.RunID).
		AddField("jobs", run.Jobs).
		AddField("assigned", run.Assigned).
		AddField("pinned", run.Pinned).
		AddField("errors", errs).
		AddField("duration_ms", round3(float64(run.Duration)/float64(time.Millisecond))).
		SetTime(run.Time)}
	lines := make([]string, 0, len(run.LineLoads))
	for id := range run.LineLoads {
		lines = append(lines, id)
	}
	sort.Strings(lines)
	for _, id := range lines {
		points = append(points, write.NewPointWithMeasurement("line_load").
			AddTag("process", run.Process).
			AddTag("line_id", id).
			AddField("quantity", run.LineLoads[id]).
			SetTime(run.Time))
	}
	return s.write(points...)
}

// RecordPlanRun writes the outcome of a planner run.
func (s *InfluxSink) RecordPlanRun(run coremetrics.PlanRun) error {
	p := write.NewPointWithMeasurement("plan_run").
		AddTag("scenario", run.Scenario).
		AddTag("solver", run.Solver).
		AddTag("run_id", run.RunID).
		AddField("orders", run.Orders).
		AddField("completed", run.Completed).
		AddField("skipped", run.Skipped).
		AddField("errors", run.Errors).
		AddField("late_days", run.TotalLateDays).
		AddField("objective", run.Objective).
		AddField("molds", run.MoldsPlanned).
		AddField("horizon_exceeded", run.HorizonExceeded).
		AddField("timed_out", run.TimedOut).
		AddField("duration_ms", round3(float64(run.Duration)/float64(time.Millisecond))).
		SetTime(run.Time)
	return s.write(p)
}

// RecordQueuePublish records the delivery of a line queue.
func (s *InfluxSink) RecordQueuePublish(ev coremetrics.QueuePublishEvent) error {
	p := write.NewPointWithMeasurement("queue_publish").
		AddTag("process", ev.Process).
		AddTag("line_id", ev.LineID).
		AddField("size", ev.Size).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordPinChange records an operator change to pinned work.
func (s *InfluxSink) RecordPinChange(ev coremetrics.PinChangeEvent) error {
	p := write.NewPointWithMeasurement("pin_change").
		AddTag("action", ev.Action).
		AddTag("key", ev.Key)
	if ev.LineID != "" {
		p = p.AddTag("line_id", ev.LineID)
	}
	p = p.AddField("split_id", ev.SplitID).SetTime(ev.Time)
	return s.write(p)
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
