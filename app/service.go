package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/foundry/api"
	dispatchapi "github.com/kilianp07/foundry/api/dispatch"
	pinsapi "github.com/kilianp07/foundry/api/pins"
	plansapi "github.com/kilianp07/foundry/api/plans"
	runsapi "github.com/kilianp07/foundry/api/runs"
	"github.com/kilianp07/foundry/app/plugins"
	"github.com/kilianp07/foundry/config"
	"github.com/kilianp07/foundry/core/dispatch"
	coremetrics "github.com/kilianp07/foundry/core/metrics"
	coremon "github.com/kilianp07/foundry/core/monitoring"
	"github.com/kilianp07/foundry/core/pins"
	"github.com/kilianp07/foundry/core/planner"
	"github.com/kilianp07/foundry/core/runlog"
	"github.com/kilianp07/foundry/core/snapshot"
	"github.com/kilianp07/foundry/infra/amqp"
	"github.com/kilianp07/foundry/infra/logger"
	inframetrics "github.com/kilianp07/foundry/infra/metrics"
	inframon "github.com/kilianp07/foundry/infra/monitoring"
	"github.com/kilianp07/foundry/infra/mqtt"
	"github.com/kilianp07/foundry/infra/postgres"
	"github.com/kilianp07/foundry/internal/eventbus"
)

// Service wires the dispatcher, the planner runner and the HTTP API.
type Service struct {
	cfg       *config.Config
	Dispatch  *dispatch.Manager
	Planner   *planner.Runner
	Pins      *pins.Service
	Snapshots *snapshot.FileSource
	RunLog    runlog.Store

	bus       *eventbus.TypedBus[eventbus.Event]
	collector *inframetrics.EventCollector
	log       logger.Logger
	closers   []func() error
}

// New creates a Service from the configuration. Optional integrations are
// enabled by their configuration: MQTT by mqtt.broker, RabbitMQ by amqp.url,
// Postgres by postgres.dsn and Sentry by sentry.dsn.
func New(ctx context.Context, cfg *config.Config) (_ *Service, err error) {
	logger.SetLevel(cfg.LogLevel)
	s := &Service{cfg: cfg, log: logger.New("service"), bus: eventbus.New()}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if s.collector, err = inframetrics.NewEventCollector(nil); err != nil {
		return nil, fmt.Errorf("event collector: %w", err)
	}

	if s.RunLog, err = runlog.Open(cfg.Logging.Options()); err != nil {
		return nil, fmt.Errorf("run log: %w", err)
	}
	s.closers = append(s.closers, s.RunLog.Close)

	var pool *pgxpool.Pool
	if cfg.Postgres.DSN != "" {
		if pool, err = postgres.NewPool(ctx, cfg.Postgres); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
	}
	deps := plugins.Deps{Config: cfg, Pool: pool}

	pinFactory, ok := plugins.PinStores[cfg.Pins.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown pins backend %q", cfg.Pins.Backend)
	}
	store, closeStore, err := pinFactory(deps)
	if err != nil {
		return nil, fmt.Errorf("pin store: %w", err)
	}
	s.closers = append(s.closers, closeStore)
	if s.Pins, err = pins.NewService(store, logger.New("pins"), s.bus, sink); err != nil {
		return nil, err
	}

	s.Dispatch = dispatch.NewManager(cfg.Dispatch, sink, s.bus, logger.New("dispatch"))
	s.Dispatch.SetPinSource(s.Pins)
	s.Dispatch.SetRunLog(s.RunLog)
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewQueuePublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
		s.closers = append(s.closers, func() error { pub.Disconnect(); return nil })
		s.Dispatch.SetPublisher(pub)
	}

	s.Snapshots = snapshot.NewFileSource(cfg.Snapshots.Dir)
	lockerName := "memory"
	if pool != nil {
		s.Snapshots.SetResourceProvider(postgres.NewResourceStore(pool))
		lockerName = "postgres"
	}
	if s.Planner, err = planner.NewRunner(cfg.Planner, s.Snapshots, logger.New("planner")); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	locker, err := plugins.Lockers[lockerName](deps)
	if err != nil {
		return nil, err
	}
	s.Planner.SetLocker(locker)
	s.Planner.SetRunLog(s.RunLog)
	s.Planner.SetSink(sink)
	s.Planner.SetBus(s.bus)
	if cfg.AMQP.URL != "" {
		pub, err := amqp.Dial(cfg.AMQP, logger.New("amqp"))
		if err != nil {
			return nil, fmt.Errorf("amqp: %w", err)
		}
		s.closers = append(s.closers, pub.Close)
		s.Planner.SetPublisher(pub)
	}
	return s, nil
}

// Handler returns the HTTP routes of the service.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	plans := plansapi.NewHandler(s.Planner)
	mux.Handle("/api/plans", plans)
	mux.Handle("/api/plans/", plans)
	mux.Handle("/api/runs", runsapi.NewLogHandler(s.RunLog))
	pinH := pinsapi.NewHandler(s.Pins)
	mux.Handle("/api/pins", pinH)
	mux.Handle("/api/pins/", pinH)
	disp := dispatchapi.NewHandler(s.Dispatch)
	mux.Handle("/api/dispatch", disp)
	mux.Handle("/api/dispatch/", disp)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return api.RequireToken(s.cfg.HTTP.Token, mux)
}

// Run starts the workers, the re-planning schedule and the HTTP server, and
// blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.collector.Start(ctx, s.bus)
	s.Planner.Start(ctx)
	defer s.Planner.Stop()

	sched, err := NewReplanner(s.cfg.Planner, s.Planner, s.log)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	servers := []*http.Server{{Addr: s.cfg.HTTP.Addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}}
	if port := s.cfg.Metrics.PrometheusPort; port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 10 * time.Second})
	}
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			s.log.Infof("http server listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs := []error{runErr}
	for _, srv := range servers {
		errs = append(errs, srv.Shutdown(shutdownCtx))
	}
	return errors.Join(errs...)
}

// Close releases resources held by the service, most recent first.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if s.bus != nil {
		s.bus.Close()
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
