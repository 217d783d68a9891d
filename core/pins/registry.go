package pins

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/foundry/core/events"
	"github.com/kilianp07/foundry/core/logger"
	"github.com/kilianp07/foundry/core/metrics"
	"github.com/kilianp07/foundry/core/model"
	"github.com/kilianp07/foundry/internal/eventbus"
)

// Store persists splits. Apply must run op as one atomic read-modify-write
// on the key and return ErrConflict rather than overwrite a concurrent change.
type Store interface {
	Apply(ctx context.Context, key model.PinKey, op Op) ([]model.PinnedSplit, error)
	Get(ctx context.Context, key model.PinKey) ([]model.PinnedSplit, error)
	// List returns the splits of a process, or of all processes when process
	// is empty, ordered by key and split id.
	List(ctx context.Context, process string) ([]model.PinnedSplit, error)
}

// Registry is the operator-facing set of pin operations.
type Registry interface {
	Mark(ctx context.Context, key model.PinKey, lineID string, qty int) (model.PinnedSplit, error)
	Unmark(ctx context.Context, key model.PinKey) error
	Move(ctx context.Context, key model.PinKey, splitID int, lineID string) (model.PinnedSplit, error)
	CreateBalancedSplit(ctx context.Context, key model.PinKey, total int) ([]model.PinnedSplit, error)
	SyncLots(ctx context.Context, key model.PinKey, lots []string) ([]model.PinnedSplit, error)
	Get(ctx context.Context, key model.PinKey) ([]model.PinnedSplit, error)
	List(ctx context.Context, process string) ([]model.PinnedSplit, error)
}

// Service implements Registry on top of a Store.
type Service struct {
	store Store
	log   logger.Logger
	bus   eventbus.EventBus
	sink  metrics.MetricsSink
	now   func() time.Time
}

var _ Registry = (*Service)(nil)

// NewService wires a registry. bus and sink may be nil.
func NewService(store Store, log logger.Logger, bus eventbus.EventBus, sink metrics.MetricsSink) (*Service, error) {
	if store == nil {
		return nil, errors.New("pins: nil store")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Service{store: store, log: log, bus: bus, sink: sink, now: time.Now}, nil
}

type expectedVersionKey struct{}

// WithExpectedVersion guards every mutation made with ctx: it fails with
// ErrConflict unless the key's highest split version is still v. An unpinned
// key has version 0.
func WithExpectedVersion(ctx context.Context, v int64) context.Context {
	return context.WithValue(ctx, expectedVersionKey{}, v)
}

// ExpectedVersion returns the version set by WithExpectedVersion.
func ExpectedVersion(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(expectedVersionKey{}).(int64)
	return v, ok
}

func (s *Service) apply(ctx context.Context, action string, key model.PinKey, op Op) ([]model.PinnedSplit, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if v, ok := ExpectedVersion(ctx); ok {
		op = ExpectVersion(v, op)
	}
	splits, err := s.store.Apply(ctx, key, op)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.log.Warnf("pin %s on %s lost a concurrent update: %v", action, key, err)
		}
		return nil, err
	}
	s.log.Infof("pin %s applied to %s (%d splits)", action, key, len(splits))
	for _, sp := range splits {
		s.emit(action, key, sp.SplitID, sp.LineID)
	}
	if len(splits) == 0 {
		s.emit(action, key, 0, "")
	}
	return splits, nil
}

func (s *Service) emit(action string, key model.PinKey, splitID int, lineID string) {
	if s.bus != nil {
		s.bus.Publish(events.PinEvent{Action: action, Key: key, SplitID: splitID, LineID: lineID})
	}
	if rec, ok := s.sink.(metrics.PinChangeRecorder); ok {
		ev := metrics.PinChangeEvent{Action: action, Key: key.String(), SplitID: splitID, LineID: lineID, Time: s.now()}
		if err := rec.RecordPinChange(ev); err != nil {
			s.log.Errorf("pin metrics error: %v", err)
		}
	}
}

// Mark pins the key to a line. qty 0 resolves to the job's remaining quantity.
func (s *Service) Mark(ctx context.Context, key model.PinKey, lineID string, qty int) (model.PinnedSplit, error) {
	if lineID == "" {
		return model.PinnedSplit{}, ErrLineRequired
	}
	splits, err := s.apply(ctx, "mark", key, MarkOp(key, lineID, qty))
	if err != nil {
		return model.PinnedSplit{}, err
	}
	return splits[0], nil
}

// Unmark releases the key.
func (s *Service) Unmark(ctx context.Context, key model.PinKey) error {
	_, err := s.apply(ctx, "unmark", key, UnmarkOp())
	return err
}

// Move moves a split to another line.
func (s *Service) Move(ctx context.Context, key model.PinKey, splitID int, lineID string) (model.PinnedSplit, error) {
	if lineID == "" {
		return model.PinnedSplit{}, ErrLineRequired
	}
	splits, err := s.apply(ctx, "move", key, MoveOp(splitID, lineID))
	if err != nil {
		return model.PinnedSplit{}, err
	}
	for _, sp := range splits {
		if sp.SplitID == splitID {
			return sp, nil
		}
	}
	return model.PinnedSplit{}, ErrNotFound
}

// CreateBalancedSplit splits a pinned key in two balanced halves. total is
// only read for auto pins; see SplitOp.
func (s *Service) CreateBalancedSplit(ctx context.Context, key model.PinKey, total int) ([]model.PinnedSplit, error) {
	return s.apply(ctx, "split", key, SplitOp(total))
}

// SyncLots reconciles the key's lots with those currently reported.
func (s *Service) SyncLots(ctx context.Context, key model.PinKey, lots []string) ([]model.PinnedSplit, error) {
	return s.apply(ctx, "sync_lots", key, SyncLotsOp(lots))
}

// Get returns the splits of one key, or ErrNotFound when it is not pinned.
func (s *Service) Get(ctx context.Context, key model.PinKey) ([]model.PinnedSplit, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, key)
}

// List returns the splits of a process.
func (s *Service) List(ctx context.Context, process string) ([]model.PinnedSplit, error) {
	return s.store.List(ctx, process)
}

// Rows loads the process splits and resolves them against jobs.
func (s *Service) Rows(ctx context.Context, process string, jobs []model.Job) ([]model.PinnedRow, error) {
	splits, err := s.store.List(ctx, process)
	if err != nil {
		return nil, err
	}
	rows, orphans := Resolve(splits, jobs)
	if len(orphans) > 0 {
		s.log.Warnf("%d pinned splits of %s have no pending job", len(orphans), process)
	}
	return rows, nil
}
