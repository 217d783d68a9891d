package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kilianp07/foundry/core/model"
)

var (
	// ErrMissingResources is returned when the scenario has no resource configuration.
	ErrMissingResources = errors.New("planner: missing resource configuration")
	// ErrInvalidResources is returned when a capacity is not usable.
	ErrInvalidResources = errors.New("planner: invalid resource configuration")
	// ErrInvalidCalendar is returned for empty or non-increasing workday calendars.
	ErrInvalidCalendar = errors.New("planner: invalid workday calendar")
)

const hoursPerDay = 24

// hoursToDays converts process hours to whole workdays, rounding up.
func hoursToDays(h float64) int {
	if h <= 0 {
		return 0
	}
	return int(math.Ceil(h/hoursPerDay - 1e-9))
}

// coolingDays is the number of workdays a flask stays busy after pouring.
func coolingDays(p model.PlannerPart) int {
	d := hoursToDays(p.CoolingHours)
	if d < 1 {
		return 1
	}
	return d
}

var thousand = decimal.NewFromInt(1000)

// tonsPerMold is the poured weight of one mold in tonnes.
func tonsPerMold(p model.PlannerPart) decimal.Decimal {
	return decimal.NewFromFloat(p.NetWeightKg).Mul(decimal.NewFromInt(int64(p.PiecesPerMold))).Div(thousand)
}

type orderState struct {
	order     model.PlannerOrder
	part      model.PlannerPart
	rank      int
	cool      int
	tons      decimal.Decimal
	hasDue    bool
	dueIdx    int
	remaining int
	molds     map[int]int
}

// ledger tracks every capacity consumed so far in a run.
type ledger struct {
	horizon   int
	moldCap   int
	partCap   int
	moldsUsed []int
	partUsed  []map[string]int
	flaskCap  map[string]int
	flaskOcc  map[string][]int
	tonsCap   decimal.Decimal
	tonsUsed  []decimal.Decimal
}

func newLedger(res model.PlannerResource, horizon, maxCool int, init InitialConditions) *ledger {
	l := &ledger{
		horizon:   horizon,
		moldCap:   res.MoldsPerDay,
		partCap:   res.SamePartPerDay,
		moldsUsed: make([]int, horizon),
		partUsed:  make([]map[string]int, horizon),
		flaskCap:  res.FlaskCapacity,
		flaskOcc:  make(map[string][]int, len(res.FlaskCapacity)),
		tonsCap:   decimal.NewFromFloat(res.PourTonsPerDay),
		tonsUsed:  make([]decimal.Decimal, horizon),
	}
	span := horizon + maxCool + 1
	for typ := range res.FlaskCapacity {
		l.flaskOcc[typ] = make([]int, span)
	}
	for _, r := range init.FlaskInUse {
		occ, ok := l.flaskOcc[r.FlaskType]
		if !ok {
			continue
		}
		for d := 0; d < r.ReleaseDay && d < span; d++ {
			occ[d] += r.Count
		}
	}
	for d := range l.partUsed {
		l.partUsed[d] = make(map[string]int)
	}
	for d, tons := range init.PourLoadTons {
		if d >= 0 && d < horizon {
			l.tonsUsed[d] = l.tonsUsed[d].Add(decimal.NewFromFloat(tons))
		}
	}
	return l
}

func (l *ledger) moldsLeft(d int) int { return l.moldCap - l.moldsUsed[d] }

func (l *ledger) partLeft(part string, d int) int { return l.partCap - l.partUsed[d][part] }

func (l *ledger) tonsLeft(d int) decimal.Decimal { return l.tonsCap.Sub(l.tonsUsed[d]) }

// flaskFree is the number of flasks of typ free on every day of [d, d+cool).
func (l *ledger) flaskFree(typ string, d, cool int) int {
	occ := l.flaskOcc[typ]
	busy := 0
	for e := d; e < d+cool && e < len(occ); e++ {
		if occ[e] > busy {
			busy = occ[e]
		}
	}
	return l.flaskCap[typ] - busy
}

// tonsFit is the number of molds weighing tons each that fit in left.
func tonsFit(left, tons decimal.Decimal, limit int) int {
	if tons.IsZero() {
		return limit
	}
	if !left.IsPositive() {
		return 0
	}
	k := left.Div(tons).Floor().IntPart()
	for k > 0 && tons.Mul(decimal.NewFromInt(k)).GreaterThan(left) {
		k--
	}
	if k > int64(limit) {
		return limit
	}
	return int(k)
}

// available is the largest quantity of o that every cap admits on day d.
func (l *ledger) available(o *orderState, d int) int {
	qty := o.remaining
	qty = min(qty, l.moldsLeft(d))
	qty = min(qty, l.partLeft(o.part.PartID, d))
	qty = min(qty, l.flaskFree(o.part.FlaskType, d, o.cool))
	if qty <= 0 {
		return 0
	}
	return tonsFit(l.tonsLeft(d), o.tons, qty)
}

// commit books qty molds of o on day d. Callers pass at most available(o, d).
func (l *ledger) commit(o *orderState, d, qty int) {
	if qty <= 0 {
		return
	}
	l.moldsUsed[d] += qty
	l.partUsed[d][o.part.PartID] += qty
	occ := l.flaskOcc[o.part.FlaskType]
	for e := d; e < d+o.cool && e < len(occ); e++ {
		occ[e] += qty
	}
	l.tonsUsed[d] = l.tonsUsed[d].Add(o.tons.Mul(decimal.NewFromInt(int64(qty))))
	o.remaining -= qty
	o.molds[d] += qty
}

// budget enforces Options across a run.
type budget struct {
	ctx      context.Context
	deadline time.Time
	maxIter  int
	iter     int
}

func newBudget(ctx context.Context, opts Options) *budget {
	b := &budget{ctx: ctx, maxIter: opts.MaxIterations}
	if opts.Timeout > 0 {
		b.deadline = time.Now().Add(opts.Timeout)
	}
	return b
}

// exhausted reports whether the run must stop now.
func (b *budget) exhausted() bool {
	if b.ctx.Err() != nil {
		return true
	}
	if !b.deadline.IsZero() && time.Now().After(b.deadline) {
		return true
	}
	return b.maxIter > 0 && b.iter >= b.maxIter
}

// tick consumes one iteration and reports whether it was allowed.
func (b *budget) tick() bool {
	if b.exhausted() {
		return false
	}
	b.iter++
	return true
}

// run is the mutable state of one planning invocation.
type run struct {
	snap    Snapshot
	horizon int
	orders  []*orderState
	led     *ledger
	sched   *Schedule
	budget  *budget
}

// prepare validates the snapshot, collects per-order errors and sorts the
// plannable orders. Only configuration problems are returned as errors.
//
//gocyclo:ignore
func prepare(ctx context.Context, snap Snapshot, opts Options, solver string) (*run, error) {
	if snap.Resources == nil {
		return nil, fmt.Errorf("%w for scenario %q", ErrMissingResources, snap.Scenario)
	}
	if err := snap.Resources.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResources, err)
	}
	if len(snap.Workdays) == 0 {
		return nil, fmt.Errorf("%w: no workdays", ErrInvalidCalendar)
	}
	if err := snap.Workdays.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCalendar, err)
	}
	horizon := len(snap.Workdays)
	if snap.MaxHorizonDays > 0 && snap.MaxHorizonDays < horizon {
		horizon = snap.MaxHorizonDays
	}
	r := &run{snap: snap, horizon: horizon, sched: newSchedule(solver, horizon), budget: newBudget(ctx, opts)}

	loaded := make(map[string]bool, len(snap.Initial.PatternsLoaded))
	for _, p := range snap.Initial.PatternsLoaded {
		loaded[p] = true
	}
	seen := make(map[string]bool, len(snap.Orders))
	maxCool := 1
	for _, o := range snap.Orders {
		fail := func(kind ErrorKind, format string, args ...any) {
			r.sched.Errors = append(r.sched.Errors, OrderError{OrderID: o.OrderID, Kind: kind, Detail: fmt.Sprintf(format, args...)})
		}
		if seen[o.OrderID] {
			fail(ErrDuplicateOrder, "order listed more than once")
			continue
		}
		seen[o.OrderID] = true
		if o.RemainingMolds < 0 {
			fail(ErrNegativeQuantity, "remaining molds %d", o.RemainingMolds)
			continue
		}
		part, ok := snap.Parts[o.PartID]
		if !ok {
			fail(ErrUnknownPart, "part %q", o.PartID)
			continue
		}
		if err := part.Validate(); err != nil {
			fail(ErrInvalidPart, "%v", err)
			continue
		}
		if _, ok := snap.Resources.FlaskCapacity[part.FlaskType]; !ok {
			fail(ErrMissingFlaskCapacity, "flask type %q", part.FlaskType)
			continue
		}
		if o.DueDate != nil && !snap.AsOf.IsZero() && model.Day(*o.DueDate).Before(model.Day(snap.AsOf)) {
			fail(ErrDueBeforeAsOf, "due %s before %s", o.DueDate.Format(time.DateOnly), snap.AsOf.Format(time.DateOnly))
			continue
		}
		if o.RemainingMolds == 0 {
			continue
		}
		st := &orderState{
			order:     o,
			part:      part,
			cool:      coolingDays(part),
			tons:      tonsPerMold(part),
			remaining: o.RemainingMolds,
			molds:     make(map[int]int),
		}
		if o.DueDate != nil {
			st.hasDue = true
			st.dueIdx = snap.Workdays.IndexOnOrAfter(*o.DueDate)
		}
		maxCool = max(maxCool, st.cool)
		r.orders = append(r.orders, st)
	}
	sort.SliceStable(r.orders, func(i, j int) bool {
		a, b := r.orders[i], r.orders[j]
		if a.order.Priority != b.order.Priority {
			return a.order.Priority < b.order.Priority
		}
		if a.hasDue != b.hasDue {
			return a.hasDue
		}
		if a.hasDue && !a.order.DueDate.Equal(*b.order.DueDate) {
			return a.order.DueDate.Before(*b.order.DueDate)
		}
		if la, lb := loaded[a.part.PartID], loaded[b.part.PartID]; la != lb {
			return la
		}
		return a.order.OrderID < b.order.OrderID
	})
	for i, o := range r.orders {
		o.rank = i
	}
	r.led = newLedger(*snap.Resources, horizon, maxCool, snap.Initial)
	return r, nil
}

// active returns orders with molds left, in rank order.
func (r *run) active() []*orderState {
	var out []*orderState
	for _, o := range r.orders {
		if o.remaining > 0 {
			out = append(out, o)
		}
	}
	return out
}

// greedyDay molds as much as possible on day d, most urgent order first. It
// returns false when the budget ran out.
func (r *run) greedyDay(d int) bool {
	for _, o := range r.orders {
		if o.remaining == 0 {
			continue
		}
		if r.led.moldsLeft(d) <= 0 {
			return true
		}
		if !r.budget.tick() {
			return false
		}
		r.led.commit(o, d, r.led.available(o, d))
	}
	return true
}
