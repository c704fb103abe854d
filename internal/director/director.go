package director

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cueworks/stagehand/internal/expr"
	"github.com/cueworks/stagehand/internal/rng"
	"github.com/cueworks/stagehand/internal/script"
	"github.com/cueworks/stagehand/internal/scripting"
	"github.com/cueworks/stagehand/internal/vars"
)

// ErrListNotFound is returned when a list ID resolves to nothing.
var ErrListNotFound = errors.New("list not found")

// ErrEmptyList is returned when a list has no entry node to run.
var ErrEmptyList = errors.New("list has no actions")

// ErrRunNotFound is returned when a run ID resolves to nothing.
var ErrRunNotFound = errors.New("run not found")

// ErrNotSkippable is returned by Skip for lists that forbid fast-forward.
var ErrNotSkippable = errors.New("list is not skippable")

// ErrRunExists is returned when restoring a snapshot whose run ID is live.
var ErrRunExists = errors.New("run already exists")

// Options tunes a Director. The zero value is usable; every field has a
// default applied by New.
type Options struct {
	// TickInterval is the frame length used by Loop. Default 100ms.
	TickInterval time.Duration
	// ChainBudget caps how many nodes one branch may complete in one tick
	// before yielding. Default 256.
	ChainBudget int
	// MaxBranches caps live branches per run. Default 64.
	MaxBranches int
	// MaxRuns caps the run table, counting finished runs not yet swept.
	// Default 128.
	MaxRuns int
	// MaxNesting caps list.run depth. Default 8.
	MaxNesting int
	// RetainFinished keeps terminal runs visible for this long before the
	// sweeper drops them. Negative keeps them forever. Default 5m.
	RetainFinished time.Duration
	// ExprTimeout bounds each JavaScript evaluation. Default 100ms.
	ExprTimeout time.Duration
	// Seed selects a deterministic random source when non-zero.
	Seed int64
	// Vars is the variable board. A fresh board is created when nil.
	Vars *vars.Board
	// Registry supplies the action kinds. DefaultRegistry when nil.
	Registry *Registry
	// Lua enables the lua.hook kind and stage.* modules. Optional.
	Lua *scripting.Manager
	// Store archives run state transitions. Optional.
	Store RunStore
	// StoreTimeout bounds each archive write. Default 3s.
	StoreTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = 100 * time.Millisecond
	}
	if o.ChainBudget <= 0 {
		o.ChainBudget = 256
	}
	if o.MaxBranches <= 0 {
		o.MaxBranches = 64
	}
	if o.MaxRuns <= 0 {
		o.MaxRuns = 128
	}
	if o.MaxNesting <= 0 {
		o.MaxNesting = 8
	}
	if o.RetainFinished == 0 {
		o.RetainFinished = 5 * time.Minute
	}
	if o.ExprTimeout <= 0 {
		o.ExprTimeout = 100 * time.Millisecond
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 3 * time.Second
	}
	return o
}

// Director owns every live run and advances them one cooperative tick at a
// time. Stepping is single-threaded; the lock makes the run table safe for
// concurrent observation and control from console and feed goroutines.
type Director struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*Run
	order []uuid.UUID
	// pendingRecs collects archive records under mu, written after unlock.
	pendingRecs []RunRecord

	queueMu sync.Mutex
	queue   []Event

	subscribers map[chan<- Event]struct{}

	tick atomic.Uint64

	lib   *script.Library
	env   *Env
	cfg   runConfig
	opts  Options
	store RunStore
	log   *zap.Logger
}

// New creates a Director over the given library.
//
// Precondition: lib and logger must be non-nil.
// Postcondition: Returns a non-nil Director with no runs; Loop or Step may
// be called immediately.
func New(lib *script.Library, opts Options, logger *zap.Logger) *Director {
	if lib == nil {
		panic("director: New requires a non-nil library")
	}
	if logger == nil {
		panic("director: New requires a non-nil logger")
	}
	opts = opts.withDefaults()

	board := opts.Vars
	if board == nil {
		board = vars.NewBoard()
	}
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	var src rng.Source
	if opts.Seed != 0 {
		src = rng.NewSeededSource(opts.Seed)
	} else {
		src = rng.NewCryptoSource()
	}

	d := &Director{
		runs:        make(map[uuid.UUID]*Run),
		subscribers: make(map[chan<- Event]struct{}),
		lib:         lib,
		opts:        opts,
		store:       opts.Store,
		log:         logger,
		cfg: runConfig{
			chainBudget: opts.ChainBudget,
			maxBranches: opts.MaxBranches,
			maxNesting:  opts.MaxNesting,
		},
	}
	d.env = &Env{
		Lib:  lib,
		Vars: board,
		Expr: expr.New(opts.ExprTimeout),
		Lua:  opts.Lua,
		Rand: src,
		Reg:  reg,
		Log:  logger,
	}
	if opts.Lua != nil {
		d.wireLua(opts.Lua, board, src)
	}
	return d
}

// wireLua connects the stage.* Lua modules to the board and event queue.
func (d *Director) wireLua(m *scripting.Manager, board *vars.Board, src rng.Source) {
	m.GetVar = func(name string) (any, bool) {
		v, ok := board.Get(name)
		if !ok {
			return nil, false
		}
		return v.Export(), true
	}
	m.SetVar = func(name string, value any) error {
		v, err := vars.FromAny(value)
		if err != nil {
			return err
		}
		board.Set(name, v)
		d.queueEvent(Event{
			Tick:   d.tick.Load(),
			Time:   time.Now(),
			Kind:   EventVarChanged,
			Detail: name + "=" + v.String(),
		})
		return nil
	}
	m.Emit = func(event, detail string) {
		if detail != "" {
			event = event + ": " + detail
		}
		d.queueEvent(Event{
			Tick:   d.tick.Load(),
			Time:   time.Now(),
			Kind:   EventCustom,
			Detail: event,
		})
	}
	m.Random = func(n int) int {
		return src.Intn(n)
	}
}

// Start launches a new run of the named list. The run takes its first step
// on the next tick.
//
// Postcondition: Returns the new run's ID, or ErrListNotFound / ErrEmptyList.
func (d *Director) Start(listID string) (uuid.UUID, error) {
	d.mu.Lock()
	r, err := d.createRunLocked(listID)
	recs := d.drainRecsLocked()
	d.mu.Unlock()
	d.flush(recs)
	if err != nil {
		return uuid.Nil, err
	}
	return r.id, nil
}

// createRunLocked builds and registers a run. Caller holds d.mu.
func (d *Director) createRunLocked(listID string) (*Run, error) {
	if len(d.runs) >= d.opts.MaxRuns {
		return nil, fmt.Errorf("run table is full (%d runs)", d.opts.MaxRuns)
	}
	list, ok := d.lib.GetList(listID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrListNotFound, listID)
	}
	if list.Entry() == nil {
		return nil, fmt.Errorf("%w: %q", ErrEmptyList, listID)
	}

	r := newRun(uuid.New(), list, d.env, d.cfg, d.queueEvent, d.spawnDetached, d.log)
	d.runs[r.id] = r
	d.order = append(d.order, r.id)
	d.queueEvent(Event{
		Tick: d.tick.Load(),
		Time: time.Now(),
		Kind: EventRunStarted,
		Run:  r.id,
		List: listID,
	})
	d.pendingRecs = append(d.pendingRecs, recordOf(r))
	return r, nil
}

// spawnDetached launches a run from a runlist ending or a detached list.run.
// It is only ever called from inside Step, which already holds d.mu.
func (d *Director) spawnDetached(listID string) error {
	_, err := d.createRunLocked(listID)
	return err
}

// Pause suspends a running run. Its branches keep their in-flight node
// state and resume exactly where they stopped.
func (d *Director) Pause(id uuid.UUID) error {
	return d.transition(id, EventRunPaused, func(r *Run) error {
		if r.status != StatusRunning {
			return fmt.Errorf("run %s is %s, not running", id, r.status)
		}
		r.status = StatusPaused
		return nil
	})
}

// Resume continues a paused run. A breakpoint that caused the pause does
// not fire again.
func (d *Director) Resume(id uuid.UUID) error {
	return d.transition(id, EventRunResumed, func(r *Run) error {
		if r.status != StatusPaused {
			return fmt.Errorf("run %s is %s, not paused", id, r.status)
		}
		r.status = StatusRunning
		return nil
	})
}

// StopRun halts a run for good, leaving its cursors visible for inspection.
func (d *Director) StopRun(id uuid.UUID) error {
	return d.transition(id, EventRunStopped, func(r *Run) error {
		if r.status.Terminal() {
			return fmt.Errorf("run %s is already %s", id, r.status)
		}
		r.status = StatusStopped
		r.skipping = false
		r.finishedAt = time.Now()
		return nil
	})
}

// Skip fast-forwards a skippable run: on its next tick every branch runs to
// completion, waits collapse, and breakpoints are ignored. Skipping a paused
// run resumes it.
//
// Postcondition: Returns ErrNotSkippable for lists that forbid skipping, nil
// when the run is already being skipped.
func (d *Director) Skip(id uuid.UUID) error {
	d.mu.Lock()
	r, ok := d.runs[id]
	if !ok {
		d.mu.Unlock()
		return ErrRunNotFound
	}
	if r.status.Terminal() {
		d.mu.Unlock()
		return fmt.Errorf("run %s is already %s", id, r.status)
	}
	if !r.list.Skippable {
		d.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotSkippable, r.list.ID)
	}
	if r.skipping {
		d.mu.Unlock()
		return nil
	}
	r.skipping = true
	statusChanged := false
	if r.status == StatusPaused {
		r.status = StatusRunning
		statusChanged = true
	}
	d.queueEvent(Event{
		Tick: d.tick.Load(),
		Time: time.Now(),
		Kind: EventRunSkipping,
		Run:  r.id,
		List: r.list.ID,
	})
	if statusChanged {
		d.pendingRecs = append(d.pendingRecs, recordOf(r))
	}
	recs := d.drainRecsLocked()
	d.mu.Unlock()
	d.flush(recs)
	return nil
}

// transition applies a status change under the lock, queues its event, and
// flushes events and archive records after unlock.
func (d *Director) transition(id uuid.UUID, kind EventKind, apply func(*Run) error) error {
	d.mu.Lock()
	r, ok := d.runs[id]
	if !ok {
		d.mu.Unlock()
		return ErrRunNotFound
	}
	if err := apply(r); err != nil {
		d.mu.Unlock()
		return err
	}
	d.queueEvent(Event{
		Tick: d.tick.Load(),
		Time: time.Now(),
		Kind: kind,
		Run:  r.id,
		List: r.list.ID,
	})
	d.pendingRecs = append(d.pendingRecs, recordOf(r))
	recs := d.drainRecsLocked()
	d.mu.Unlock()
	d.flush(recs)
	return nil
}

// Step advances every running run by one tick of length dt. Runs spawned
// during the tick take their first step on the next one.
func (d *Director) Step(dt time.Duration) {
	d.mu.Lock()
	tick := d.tick.Add(1)
	ids := append([]uuid.UUID(nil), d.order...)
	for _, id := range ids {
		r, ok := d.runs[id]
		if !ok {
			continue
		}
		before := r.status
		r.step(tick, dt)
		if r.status != before {
			d.pendingRecs = append(d.pendingRecs, recordOf(r))
		}
	}
	d.sweepLocked()
	recs := d.drainRecsLocked()
	d.mu.Unlock()
	d.flush(recs)
}

// Loop drives Step from a ticker until ctx is cancelled. It is the body of
// the daemon's engine service; embedding hosts may ignore it and call Step
// from their own frame loop.
func (d *Director) Loop(ctx context.Context) error {
	ticker := time.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Step(d.opts.TickInterval)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sweepLocked drops terminal runs older than the retention window.
func (d *Director) sweepLocked() {
	if d.opts.RetainFinished < 0 {
		return
	}
	cutoff := time.Now().Add(-d.opts.RetainFinished)
	keep := d.order[:0]
	for _, id := range d.order {
		r := d.runs[id]
		if r != nil && r.status.Terminal() && !r.finishedAt.IsZero() && r.finishedAt.Before(cutoff) {
			delete(d.runs, id)
			continue
		}
		keep = append(keep, id)
	}
	d.order = keep
}

// forgetLocked removes one run from the tables regardless of status.
func (d *Director) forgetLocked(id uuid.UUID) {
	delete(d.runs, id)
	for i, other := range d.order {
		if other == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Subscribe registers ch to receive every published event. If ch is full an
// event is dropped for that subscriber rather than blocking the tick.
//
// Precondition: ch must not be nil.
func (d *Director) Subscribe(ch chan<- Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[ch] = struct{}{}
}

// Unsubscribe removes ch from the subscriber list.
func (d *Director) Unsubscribe(ch chan<- Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subscribers, ch)
}

// queueEvent appends ev to the outgoing queue. Safe to call with d.mu held;
// the queue has its own lock so node callbacks can emit mid-step.
func (d *Director) queueEvent(ev Event) {
	d.queueMu.Lock()
	d.queue = append(d.queue, ev)
	d.queueMu.Unlock()
}

func (d *Director) drainRecsLocked() []RunRecord {
	recs := d.pendingRecs
	d.pendingRecs = nil
	return recs
}

// flush publishes queued events to subscribers and writes archive records.
// Must be called without d.mu held.
func (d *Director) flush(recs []RunRecord) {
	d.queueMu.Lock()
	evs := d.queue
	d.queue = nil
	d.queueMu.Unlock()

	if len(evs) > 0 {
		d.mu.RLock()
		subs := make([]chan<- Event, 0, len(d.subscribers))
		for ch := range d.subscribers {
			subs = append(subs, ch)
		}
		d.mu.RUnlock()
		for _, ev := range evs {
			for _, ch := range subs {
				select {
				case ch <- ev:
				default:
				}
			}
		}
	}

	if d.store != nil && len(recs) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.StoreTimeout)
		defer cancel()
		for _, rec := range recs {
			if err := d.store.UpsertRun(ctx, rec); err != nil {
				d.log.Warn("run archive write failed",
					zap.String("run", rec.ID.String()),
					zap.Error(err),
				)
			}
		}
	}
}

// RunView is a read-only snapshot of one run for console and feed display.
type RunView struct {
	ID         uuid.UUID `json:"id"`
	ListID     string    `json:"list_id"`
	Status     Status    `json:"status"`
	Skipping   bool      `json:"skipping,omitempty"`
	Cursors    []string  `json:"cursors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

func viewOf(r *Run) RunView {
	return RunView{
		ID:         r.id,
		ListID:     r.list.ID,
		Status:     r.status,
		Skipping:   r.skipping,
		Cursors:    r.cursors(),
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
}

// Runs returns a view of every run in creation order.
func (d *Director) Runs() []RunView {
	d.mu.RLock()
	defer d.mu.RUnlock()
	views := make([]RunView, 0, len(d.order))
	for _, id := range d.order {
		if r, ok := d.runs[id]; ok {
			views = append(views, viewOf(r))
		}
	}
	return views
}

// GetRun returns a view of one run.
//
// Postcondition: Returns (view, true) if found, or (zero, false).
func (d *Director) GetRun(id uuid.UUID) (RunView, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.runs[id]
	if !ok {
		return RunView{}, false
	}
	return viewOf(r), true
}

// Vars returns the shared variable board.
func (d *Director) Vars() *vars.Board { return d.env.Vars }

// Registry returns the kind registry.
func (d *Director) Registry() *Registry { return d.env.Reg }

// Library returns the list library.
func (d *Director) Library() *script.Library { return d.lib }

// Tick returns the number of ticks stepped so far.
func (d *Director) Tick() uint64 { return d.tick.Load() }
