package planner

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
	"github.com/kilianp07/foundry/core/monitoring"
	"github.com/kilianp07/foundry/core/runlog"
	"github.com/kilianp07/foundry/internal/eventbus"
)

var (
	// ErrScenarioBusy is returned when a run for the scenario is already in flight.
	ErrScenarioBusy = errors.New("planner: scenario already has a run in flight")
	// ErrQueueFull is returned when no more runs can be queued.
	ErrQueueFull = errors.New("planner: run queue full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("planner: runner stopped")
)

// SnapshotSource loads the input of a scenario as of now.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context, scenario string) (Snapshot, error)
}

// ResultPublisher hands finished runs to downstream consumers.
type ResultPublisher interface {
	PublishPlan(ctx context.Context, st RunStatus) error
}

// Locker serialises runs of a scenario. Lock fails with ErrScenarioBusy rather
// than waiting when another holder exists.
type Locker interface {
	Lock(ctx context.Context, scenario string) (unlock func(), err error)
}

// MemoryLocker is a Locker for a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewMemoryLocker() *MemoryLocker { return &MemoryLocker{held: make(map[string]bool)} }

func (l *MemoryLocker) Lock(_ context.Context, scenario string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[scenario] {
		return nil, ErrScenarioBusy
	}
	l.held[scenario] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, scenario)
			l.mu.Unlock()
		})
	}, nil
}

// RunStatus is the state of a submitted planning run.
type RunStatus struct {
	ID          string            `json:"id"`
	Scenario    string            `json:"scenario"`
	Solver      string            `json:"solver"`
	Status      events.PlanStatus `json:"status"`
	SubmittedAt time.Time         `json:"submitted_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	Schedule    *Schedule         `json:"schedule,omitempty"`
}

// Done reports whether the run reached a final state.
func (s RunStatus) Done() bool {
	return s.Status == events.PlanCompleted || s.Status == events.PlanFailed
}

// Runner executes planning runs on a bounded worker pool, off the caller's
// path, with at most one run in flight per scenario.
type Runner struct {
	cfg    Config
	src    SnapshotSource
	solver Solver
	logger logger.Logger

	locker    Locker
	publisher ResultPublisher
	store     runlog.Store
	sink      metrics.MetricsSink
	bus       eventbus.EventBus

	queue    chan string
	mu       sync.Mutex
	runs     map[string]*RunStatus
	finished []string
	inflight map[string]string
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRunner builds a runner with the configured solver.
func NewRunner(cfg Config, src SnapshotSource, log logger.Logger) (*Runner, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	solver, err := NewSolver(cfg.Solver, cfg.SolverConf)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Runner{
		cfg:      cfg,
		src:      src,
		solver:   solver,
		logger:   log,
		locker:   NewMemoryLocker(),
		sink:     metrics.NopSink{},
		queue:    make(chan string, cfg.QueueSize),
		runs:     make(map[string]*RunStatus),
		inflight: make(map[string]string),
	}, nil
}

func (r *Runner) SetLocker(l Locker) {
	r.mu.Lock()
	r.locker = l
	r.mu.Unlock()
}

func (r *Runner) SetPublisher(p ResultPublisher) {
	r.mu.Lock()
	r.publisher = p
	r.mu.Unlock()
}

func (r *Runner) SetRunLog(s runlog.Store) {
	r.mu.Lock()
	r.store = s
	r.mu.Unlock()
}

func (r *Runner) SetSink(s metrics.MetricsSink) {
	r.mu.Lock()
	if s != nil {
		r.sink = s
	}
	r.mu.Unlock()
}

func (r *Runner) SetBus(b eventbus.EventBus) {
	r.mu.Lock()
	r.bus = b
	r.mu.Unlock()
}

// Start launches the workers. They stop when ctx is done or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	r.logger.Infof("planner runner started with %d workers, solver %s", r.cfg.Workers, r.solver.Name())
}

// Stop cancels running plans and waits for the workers to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			_ = r.execute(ctx, id)
		}
	}
}

// Submit queues a run of scenario and returns its initial status.
func (r *Runner) Submit(scenario string) (RunStatus, error) {
	st, err := r.register(scenario)
	if err != nil {
		return RunStatus{}, err
	}
	select {
	case r.queue <- st.ID:
	default:
		r.mu.Lock()
		delete(r.runs, st.ID)
		delete(r.inflight, scenario)
		r.mu.Unlock()
		return RunStatus{}, ErrQueueFull
	}
	r.publishEvent(st, nil)
	return st, nil
}

// RunSync runs scenario on the calling goroutine and returns its final status.
func (r *Runner) RunSync(ctx context.Context, scenario string) (RunStatus, error) {
	st, err := r.register(scenario)
	if err != nil {
		return RunStatus{}, err
	}
	err = r.execute(ctx, st.ID)
	final, _ := r.Status(st.ID)
	return final, err
}

func (r *Runner) register(scenario string) (RunStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return RunStatus{}, ErrStopped
	}
	if _, busy := r.inflight[scenario]; busy {
		return RunStatus{}, fmt.Errorf("%w: %s", ErrScenarioBusy, scenario)
	}
	st := &RunStatus{
		ID:          uuid.NewString(),
		Scenario:    scenario,
		Solver:      r.solver.Name(),
		Status:      events.PlanQueued,
		SubmittedAt: time.Now(),
	}
	r.runs[st.ID] = st
	r.inflight[scenario] = st.ID
	return *st, nil
}

// Status returns a copy of the run status.
func (r *Runner) Status(id string) (RunStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.runs[id]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

// InFlight returns the run id currently queued or running for scenario.
func (r *Runner) InFlight(scenario string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.inflight[scenario]
	return id, ok
}

func (r *Runner) update(id string, fn func(*RunStatus)) RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.runs[id]
	fn(st)
	if st.Done() {
		delete(r.inflight, st.Scenario)
		r.finished = append(r.finished, id)
		for len(r.finished) > r.cfg.KeepRuns {
			delete(r.runs, r.finished[0])
			r.finished = r.finished[1:]
		}
	}
	return *st
}

// execute runs one queued plan to completion and records its outcome. The
// returned error is also stored in the run status.
func (r *Runner) execute(ctx context.Context, id string) error {
	r.mu.Lock()
	locker, scenario := r.locker, r.runs[id].Scenario
	r.mu.Unlock()

	start := time.Now()
	st := r.update(id, func(s *RunStatus) {
		s.Status = events.PlanRunning
		s.StartedAt = &start
	})
	r.publishEvent(st, nil)

	sched, err := func() (*Schedule, error) {
		unlock, err := locker.Lock(ctx, scenario)
		if err != nil {
			return nil, err
		}
		defer unlock()
		return r.plan(ctx, scenario)
	}()

	end := time.Now()
	st = r.update(id, func(s *RunStatus) {
		s.FinishedAt = &end
		s.Schedule = sched
		if err != nil {
			s.Status = events.PlanFailed
			s.Error = err.Error()
			return
		}
		s.Status = events.PlanCompleted
	})
	if err != nil {
		r.logger.Errorf("plan %s for %s failed: %v", id, scenario, err)
		if !errors.Is(err, ErrScenarioBusy) {
			monitoring.CaptureException(err, map[string]string{"scenario": scenario, "run_id": id})
		}
	} else {
		r.logger.Infof("plan %s for %s: %d molds, %d skipped, objective %d",
			id, scenario, sched.MoldsPlanned(), sched.SkippedOrders, sched.Objective)
	}
	r.record(ctx, st, end.Sub(start))
	r.publishEvent(st, err)
	return err
}

// plan loads the snapshot and runs the solver, turning panics into errors.
func (r *Runner) plan(ctx context.Context, scenario string) (sched *Schedule, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = monitoring.CapturePanic(v, map[string]string{"scenario": scenario})
		}
	}()
	snap, err := r.src.LoadSnapshot(ctx, scenario)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", scenario, err)
	}
	if r.cfg.AutoHorizon && snap.MaxHorizonDays == 0 {
		if idx, ok := SuggestHorizon(snap.Orders, snap.Workdays); ok {
			snap.MaxHorizonDays = idx + 1
		}
	}
	return r.solver.Solve(ctx, snap, r.cfg.Options())
}

func (r *Runner) record(ctx context.Context, st RunStatus, dur time.Duration) {
	r.mu.Lock()
	store, sink, pub := r.store, r.sink, r.publisher
	r.mu.Unlock()

	planRuns.WithLabelValues(st.Solver, string(st.Status)).Inc()
	planDuration.WithLabelValues(st.Scenario).Observe(dur.Seconds())
	summary := map[string]int{}
	if s := st.Schedule; s != nil {
		moldsPlanned.WithLabelValues(st.Scenario).Set(float64(s.MoldsPlanned()))
		late := 0
		for _, l := range s.LateDays {
			if l > 0 {
				late++
			}
		}
		lateOrders.WithLabelValues(st.Scenario).Set(float64(late))
		summary = map[string]int{
			"molds":     s.MoldsPlanned(),
			"completed": len(s.CompletionDays),
			"skipped":   s.SkippedOrders,
			"errors":    len(s.Errors),
			"late_days": s.TotalLateDays(),
			"objective": s.Objective,
		}
		if rec, ok := sink.(metrics.PlanRunRecorder); ok {
			err := rec.RecordPlanRun(metrics.PlanRun{
				RunID:           st.ID,
				Scenario:        st.Scenario,
				Solver:          st.Solver,
				Orders:          len(s.CompletionDays) + len(s.UnfinishedOrders),
				Completed:       len(s.CompletionDays),
				Skipped:         s.SkippedOrders,
				Errors:          len(s.Errors),
				TotalLateDays:   s.TotalLateDays(),
				Objective:       s.Objective,
				MoldsPlanned:    s.MoldsPlanned(),
				HorizonExceeded: s.HorizonExceeded,
				TimedOut:        s.TimedOut,
				Duration:        dur,
				Time:            *st.StartedAt,
			})
			if err != nil {
				r.logger.Errorf("metrics error: %v", err)
			}
		}
	}

	if store != nil {
		var payload json.RawMessage
		if st.Schedule != nil {
			var err error
			if payload, err = json.Marshal(st.Schedule); err != nil {
				r.logger.Errorf("encode plan %s: %v", st.ID, err)
			}
		}
		rec := runlog.Record{
			ID:        st.ID,
			Kind:      runlog.KindPlan,
			Scope:     st.Scenario,
			Timestamp: *st.StartedAt,
			Duration:  dur.Milliseconds(),
			Status:    string(st.Status),
			Error:     st.Error,
			Summary:   summary,
			Payload:   payload,
		}
		if err := store.Append(context.WithoutCancel(ctx), rec); err != nil {
			r.logger.Errorf("run log append: %v", err)
		}
	}

	if pub != nil && st.Status == events.PlanCompleted {
		if err := pub.PublishPlan(context.WithoutCancel(ctx), st); err != nil {
			r.logger.Errorf("publish plan %s: %v", st.ID, err)
		}
	}
}

func (r *Runner) publishEvent(st RunStatus, err error) {
	r.mu.Lock()
	bus := r.bus
	r.mu.Unlock()
	if bus != nil {
		bus.Publish(events.PlanEvent{RunID: st.ID, Scenario: st.Scenario, Status: st.Status, Err: err})
	}
}
