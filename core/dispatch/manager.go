package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/foundry/core/events"
	"github.com/kilianp07/foundry/core/logger"
	"github.com/kilianp07/foundry/core/metrics"
	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/core/monitoring"
	"github.com/kilianp07/foundry/core/runlog"
	"github.com/kilianp07/foundry/internal/eventbus"
)

// QueuePublisher delivers a line queue to the terminals of that line.
type QueuePublisher interface {
	PublishQueue(ctx context.Context, q Queue) error
}

// PinSource resolves the pinned rows of a process against its pending jobs.
type PinSource interface {
	Rows(ctx context.Context, process string, jobs []model.Job) ([]model.PinnedRow, error)
}

// Input is the snapshot a dispatch run works on. When Pinned is nil and a
// PinSource is configured, pinned rows are loaded from it.
type Input struct {
	Process string                `json:"process" yaml:"process"`
	Lines   []model.Line          `json:"lines" yaml:"lines"`
	Jobs    []model.Job           `json:"jobs" yaml:"jobs"`
	Parts   map[string]model.Part `json:"parts" yaml:"parts"`
	Pinned  []model.PinnedRow     `json:"pinned,omitempty" yaml:"pinned,omitempty"`
}

// Run is a completed dispatch run.
type Run struct {
	ID            string            `json:"id"`
	Process       string            `json:"process"`
	StartedAt     time.Time         `json:"started_at"`
	Duration      time.Duration     `json:"duration"`
	Result        Result            `json:"result"`
	PublishErrors map[string]string `json:"publish_errors,omitempty"`
}

// Manager runs the scheduler and hands its output to the outside world:
// queue publication, run log, metrics and events.
type Manager struct {
	cfg       Config
	publisher QueuePublisher
	pins      PinSource
	store     runlog.Store
	metrics   metrics.MetricsSink
	bus       eventbus.EventBus
	logger    logger.Logger
	mu        sync.Mutex
	last      map[string]Run
}

// NewManager creates a new manager. sink and bus may be nil.
func NewManager(cfg Config, sink metrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) *Manager {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Manager{cfg: cfg, metrics: sink, bus: bus, logger: log, last: make(map[string]Run)}
}

// SetPublisher configures where line queues are published.
func (m *Manager) SetPublisher(p QueuePublisher) {
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

// SetPinSource configures the registry pinned rows are read from.
func (m *Manager) SetPinSource(p PinSource) {
	m.mu.Lock()
	m.pins = p
	m.mu.Unlock()
}

// SetRunLog configures the store used to persist dispatch runs.
func (m *Manager) SetRunLog(store runlog.Store) {
	m.mu.Lock()
	m.store = store
	m.mu.Unlock()
}

// Last returns the most recent run of a process.
func (m *Manager) Last(process string) (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.last[process]
	return r, ok
}

// Dispatch schedules the input and publishes the resulting queues. Only a
// failure to load pinned rows aborts the run; per-job problems are part of
// the result and publication failures are reported in Run.PublishErrors.
func (m *Manager) Dispatch(ctx context.Context, in Input) (Run, error) {
	m.mu.Lock()
	pub, pinSrc, store := m.publisher, m.pins, m.store
	m.mu.Unlock()

	if in.Process == "" {
		in.Process = m.cfg.Process
	}
	in, dropped := scope(in)
	if dropped > 0 {
		m.logger.Warnf("dispatch %s: ignored %d jobs and lines of other processes", in.Process, dropped)
	}
	run := Run{ID: uuid.NewString(), Process: in.Process, StartedAt: time.Now()}
	pinned := in.Pinned
	if pinned == nil && pinSrc != nil {
		rows, err := pinSrc.Rows(ctx, in.Process, in.Jobs)
		if err != nil {
			err = fmt.Errorf("dispatch: load pinned rows: %w", err)
			monitoring.CaptureException(err, map[string]string{"process": in.Process})
			return run, err
		}
		pinned = rows
	}

	run.Result = Schedule(in.Lines, in.Jobs, in.Parts, pinned)
	m.logger.Infof("dispatched %d jobs of %s to %d lines, %d errors",
		run.Result.Assigned(), in.Process, len(run.Result.Queues), len(run.Result.Errors))

	if pub != nil && m.cfg.PublishQueues {
		run.PublishErrors = m.publishQueues(ctx, pub, run.Result.Queues)
	}
	run.Duration = time.Since(run.StartedAt)

	m.recordMetrics(run, len(in.Jobs), len(pinned))
	m.appendRunLog(ctx, store, run)
	if m.bus != nil {
		m.bus.Publish(events.DispatchEvent{
			RunID:    run.ID,
			Process:  run.Process,
			Assigned: run.Result.Assigned(),
			Errors:   len(run.Result.Errors),
			Duration: run.Duration,
		})
	}
	m.mu.Lock()
	m.last[run.Process] = run
	m.mu.Unlock()
	return run, nil
}

// scope stamps the input process on jobs and lines that carry none, so pin
// keys match, and leaves out jobs and lines of other processes. It reports how
// many entries were left out. An input without a process is returned as is.
func scope(in Input) (Input, int) {
	if in.Process == "" {
		return in, 0
	}
	dropped := 0
	jobs := make([]model.Job, 0, len(in.Jobs))
	for _, j := range in.Jobs {
		if j.Process == "" {
			j.Process = in.Process
		}
		if j.Process != in.Process {
			dropped++
			continue
		}
		jobs = append(jobs, j)
	}
	lines := make([]model.Line, 0, len(in.Lines))
	for _, l := range in.Lines {
		if l.Process == "" {
			l.Process = in.Process
		}
		if l.Process != in.Process {
			dropped++
			continue
		}
		lines = append(lines, l)
	}
	var pinned []model.PinnedRow
	if in.Pinned != nil {
		pinned = make([]model.PinnedRow, len(in.Pinned))
		for i, row := range in.Pinned {
			if row.Job.Process == "" {
				row.Job.Process = in.Process
			}
			pinned[i] = row
		}
	}
	in.Jobs, in.Lines, in.Pinned = jobs, lines, pinned
	return in, dropped
}

// publishQueues publishes the queues concurrently and collects failures by line.
func (m *Manager) publishQueues(ctx context.Context, pub QueuePublisher, queues []Queue) map[string]string {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs = make(map[string]string)
	)
	timeout := time.Duration(m.cfg.PublishTimeoutSeconds) * time.Second
	rec, recordPublish := m.metrics.(metrics.QueuePublishRecorder)
	for _, q := range queues {
		wg.Add(1)
		go func(q Queue) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			err := pub.PublishQueue(pctx, q)
			lat := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			ev := metrics.QueuePublishEvent{LineID: q.LineID, Process: q.Process, Size: len(q.Assignments), Latency: lat, Time: start}
			if err != nil {
				publishFailure.Inc()
				errs[q.LineID] = err.Error()
				ev.Error = err.Error()
				m.logger.Errorf("publish queue %s: %v", q.LineID, err)
			} else {
				publishSuccess.Inc()
			}
			if recordPublish {
				if rerr := rec.RecordQueuePublish(ev); rerr != nil {
					m.logger.Errorf("queue publish metrics error: %v", rerr)
				}
			}
			if m.bus != nil {
				m.bus.Publish(events.QueueEvent{LineID: q.LineID, Size: len(q.Assignments), Err: err})
			}
		}(q)
	}
	wg.Wait()
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// recordMetrics updates the collectors and the configured sink.
func (m *Manager) recordMetrics(run Run, jobs, pinned int) {
	dispatchDuration.WithLabelValues(run.Process).Observe(run.Duration.Seconds())
	loads := make(map[string]int, len(run.Result.Queues))
	for _, q := range run.Result.Queues {
		loads[q.LineID] = q.Load
		lineLoad.WithLabelValues(run.Process, q.LineID).Set(float64(q.Load))
		for _, a := range q.Assignments {
			if !a.Pinned {
				jobsAssigned.WithLabelValues(run.Process, q.LineID).Inc()
			}
		}
	}
	byKind := make(map[string]int)
	for kind, n := range run.Result.ErrorsByKind() {
		jobErrors.WithLabelValues(run.Process, string(kind)).Add(float64(n))
		byKind[string(kind)] = n
	}
	err := m.metrics.RecordDispatchRun(metrics.DispatchRun{
		RunID:     run.ID,
		Process:   run.Process,
		Jobs:      jobs,
		Assigned:  run.Result.Assigned(),
		Pinned:    pinned,
		Errors:    byKind,
		LineLoads: loads,
		Duration:  run.Duration,
		Time:      run.StartedAt,
	})
	if err != nil {
		m.logger.Errorf("metrics error: %v", err)
	}
}

func (m *Manager) appendRunLog(ctx context.Context, store runlog.Store, run Run) {
	if store == nil {
		return
	}
	payload, err := json.Marshal(run.Result)
	if err != nil {
		m.logger.Errorf("encode dispatch run %s: %v", run.ID, err)
		return
	}
	status := "completed"
	if len(run.PublishErrors) > 0 {
		status = "publish_failed"
	}
	rec := runlog.Record{
		ID:        run.ID,
		Kind:      runlog.KindDispatch,
		Scope:     run.Process,
		Timestamp: run.StartedAt,
		Duration:  run.Duration.Milliseconds(),
		Status:    status,
		Summary: map[string]int{
			"assigned": run.Result.Assigned(),
			"errors":   len(run.Result.Errors),
		},
		Payload: payload,
	}
	if err := store.Append(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Errorf("run log append: %v", err)
	}
}
