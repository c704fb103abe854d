package director

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cueworks/stagehand/internal/script"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
	StatusStopped  Status = "stopped"
)

// Terminal reports whether the run can never step again.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusStopped
}

// branch is one live cursor inside a run. A run starts with a single branch
// on node 0; parallel nodes add more.
type branch struct {
	// idx is the node's position at the last resolve. When the node is
	// deleted between ticks the index alone picks its successor.
	idx int
	// nodeID tracks the node across reorders.
	nodeID string
	// exec is the live node instance, built on entry, nil before the
	// branch first steps the node.
	exec Exec
	// wait is the remaining suspension requested by the last step.
	wait time.Duration
	// bpDone records that this node's breakpoint already fired, so
	// resuming does not trip it again.
	bpDone bool
	// done marks the branch for removal at the end of the tick.
	done bool
}

// runConfig carries the per-run limits down from the director options.
type runConfig struct {
	chainBudget int
	maxBranches int
	maxNesting  int
}

// Run is one execution of a list. All stepping happens on the director's
// tick goroutine; the director's lock guards concurrent observation.
type Run struct {
	id       uuid.UUID
	list     *script.List
	status   Status
	skipping bool
	// nested is true for list.run children. Nested runs never trip
	// breakpoints and share the parent's run ID in events.
	nested bool
	depth  int

	branches []*branch
	cfg      runConfig
	env      *Env
	emit     func(Event)
	// spawn launches a detached run of another list. Nil disables the
	// runlist ending and detached list.run.
	spawn func(listID string) error
	log   *zap.Logger

	startedAt  time.Time
	finishedAt time.Time
}

// newRun creates a run positioned at the list's entry node.
//
// Precondition: list must be non-empty and valid; env, emit and log must be
// non-nil.
// Postcondition: Returns a StatusRunning run whose single branch is at node 0.
func newRun(id uuid.UUID, list *script.List, env *Env, cfg runConfig, emit func(Event), spawn func(string) error, log *zap.Logger) *Run {
	r := &Run{
		id:        id,
		list:      list,
		status:    StatusRunning,
		cfg:       cfg,
		env:       env,
		emit:      emit,
		spawn:     spawn,
		log:       log,
		startedAt: time.Now(),
	}
	entry := list.Entry()
	r.branches = []*branch{{idx: 0, nodeID: entry.ID}}
	return r
}

// step advances every live branch by one tick. Branches spawned by parallel
// nodes during this tick are stepped in the same tick, after the branch that
// spawned them.
func (r *Run) step(tick uint64, dt time.Duration) {
	if r.status != StatusRunning {
		return
	}
	for i := 0; i < len(r.branches); i++ {
		b := r.branches[i]
		if b.done {
			continue
		}
		r.stepBranch(b, tick, dt)
		if r.status != StatusRunning {
			break
		}
	}
	r.reap(tick)
}

// stepBranch chains the branch through nodes until it yields, finishes, or
// exhausts its chain budget for this tick.
func (r *Run) stepBranch(b *branch, tick uint64, dt time.Duration) {
	budget := r.cfg.chainBudget
	for {
		node, ok := r.resolve(b)
		if !ok {
			b.done = true
			return
		}

		if node.Breakpoint && !b.bpDone && !r.skipping && !r.nested {
			b.bpDone = true
			r.status = StatusPaused
			r.emitEvent(tick, EventBreakpointHit, node.ID, node.Comment)
			return
		}

		if !node.Enabled {
			if !r.advance(b, b.idx+1) {
				b.done = true
				return
			}
			budget--
			if budget <= 0 {
				r.yieldBudget(b, tick, node.ID)
				return
			}
			continue
		}

		if b.exec == nil {
			def, found := r.env.Reg.Lookup(node.Kind)
			if !found {
				r.log.Warn("unknown action kind, stopping branch",
					zap.String("list", r.list.ID),
					zap.String("node", node.ID),
					zap.String("kind", node.Kind),
				)
				b.done = true
				return
			}
			exec, err := def.Build(r.list, node, r.env)
			if err != nil {
				r.log.Warn("action refused its parameters, stopping branch",
					zap.String("list", r.list.ID),
					zap.String("node", node.ID),
					zap.String("kind", node.Kind),
					zap.Error(err),
				)
				b.done = true
				return
			}
			b.exec = exec
			r.emitEvent(tick, EventNodeStarted, node.ID, node.Kind)
		}

		if b.wait > 0 && !r.skipping {
			b.wait -= dt
			if b.wait > 0 {
				return
			}
			b.wait = 0
		}

		tc := &StepContext{
			Run:         r.id,
			List:        r.list.ID,
			Node:        node.ID,
			Tick:        tick,
			Dt:          dt,
			FastForward: r.skipping,
			Emit: func(kind EventKind, detail string) {
				r.emitEvent(tick, kind, node.ID, detail)
			},
			run: r,
		}
		out, err := b.exec.Step(tc)
		if err != nil {
			r.log.Warn("action failed, stopping branch",
				zap.String("list", r.list.ID),
				zap.String("node", node.ID),
				zap.String("kind", node.Kind),
				zap.Error(err),
			)
			b.done = true
			return
		}
		if !out.Done {
			if !r.skipping {
				b.wait = out.Wait
				return
			}
			// Fast-forward forces completion through the first exit.
			out = Outcome{Done: true}
		}

		r.emitEvent(tick, EventNodeFinished, node.ID, node.Kind)

		if out.FanOut {
			r.fanOut(b, node, out.Exit, tick)
		}

		end, found := node.EndingFor(out.Exit)
		if !found {
			r.log.Warn("exit has no ending, stopping branch",
				zap.String("list", r.list.ID),
				zap.String("node", node.ID),
				zap.Int("exit", out.Exit),
				zap.Int("endings", len(node.Endings)),
			)
			b.done = true
			return
		}
		if !r.follow(b, end) {
			b.done = true
			return
		}

		budget--
		if budget <= 0 {
			r.yieldBudget(b, tick, node.ID)
			return
		}
	}
}

// resolve returns the branch's current node, repairing the cursor if the
// graph changed between ticks. A reordered node is followed by ID; a deleted
// node's successor takes its place and starts fresh.
func (r *Run) resolve(b *branch) (*script.Action, bool) {
	if idx := r.list.IndexOf(b.nodeID); idx >= 0 {
		b.idx = idx
		return r.list.Nodes[idx], true
	}
	if b.idx < r.list.Len() {
		node := r.list.Nodes[b.idx]
		b.nodeID = node.ID
		b.exec = nil
		b.wait = 0
		b.bpDone = false
		return node, true
	}
	return nil, false
}

// advance moves the branch cursor to idx and resets per-node state.
//
// Postcondition: Returns false when idx is past the end of the list, which
// finishes the branch.
func (r *Run) advance(b *branch, idx int) bool {
	if idx < 0 || idx >= r.list.Len() {
		return false
	}
	b.idx = idx
	b.nodeID = r.list.Nodes[idx].ID
	b.exec = nil
	b.wait = 0
	b.bpDone = false
	return true
}

// follow applies an ending to the branch cursor.
//
// Postcondition: Returns false when the branch is finished. Broken endings
// downgrade to stop with a warning, never an error.
func (r *Run) follow(b *branch, end script.Ending) bool {
	switch end.Policy {
	case script.PolicyContinue:
		return r.advance(b, b.idx+1)
	case script.PolicyStop:
		return false
	case script.PolicySkip:
		idx := r.list.IndexOf(end.Target)
		if idx < 0 {
			r.log.Warn("skip target is gone, stopping branch",
				zap.String("list", r.list.ID),
				zap.String("target", end.Target),
			)
			return false
		}
		return r.advance(b, idx)
	case script.PolicyRunList:
		if r.spawn == nil {
			r.log.Warn("runlist ending with no spawner, stopping branch",
				zap.String("list", r.list.ID),
				zap.String("child", end.List),
			)
			return false
		}
		if err := r.spawn(end.List); err != nil {
			r.log.Warn("runlist ending failed to launch",
				zap.String("list", r.list.ID),
				zap.String("child", end.List),
				zap.Error(err),
			)
		}
		return false
	default:
		r.log.Warn("unknown ending policy, stopping branch",
			zap.String("list", r.list.ID),
			zap.Int("policy", int(end.Policy)),
		)
		return false
	}
}

// fanOut spawns one branch per ending other than taken. Spawned branches are
// appended to the run and stepped later in the same tick.
func (r *Run) fanOut(b *branch, node *script.Action, taken int, tick uint64) {
	for i, end := range node.Endings {
		if i == taken {
			continue
		}
		if r.liveBranches() >= r.cfg.maxBranches {
			r.log.Warn("branch limit reached, dropping parallel ending",
				zap.String("list", r.list.ID),
				zap.String("node", node.ID),
				zap.Int("limit", r.cfg.maxBranches),
			)
			return
		}
		nb := &branch{idx: b.idx, nodeID: b.nodeID}
		if r.follow(nb, end) {
			r.branches = append(r.branches, nb)
		}
	}
}

// yieldBudget ends the branch's turn for this tick. During a skip the budget
// trip means a cycle the fast-forward can never finish, so the branch stops.
func (r *Run) yieldBudget(b *branch, tick uint64, nodeID string) {
	if r.skipping {
		r.log.Warn("chain budget exhausted during skip, stopping branch",
			zap.String("list", r.list.ID),
			zap.String("node", nodeID),
			zap.Int("budget", r.cfg.chainBudget),
		)
		b.done = true
		return
	}
	r.log.Warn("chain budget exhausted, yielding branch until next tick",
		zap.String("list", r.list.ID),
		zap.String("node", nodeID),
		zap.Int("budget", r.cfg.chainBudget),
	)
}

// reap drops finished branches and completes the run when none remain.
func (r *Run) reap(tick uint64) {
	live := r.branches[:0]
	for _, b := range r.branches {
		if !b.done {
			live = append(live, b)
		}
	}
	r.branches = live
	if r.status == StatusRunning && len(r.branches) == 0 {
		r.status = StatusFinished
		r.skipping = false
		r.finishedAt = time.Now()
		r.emitEvent(tick, EventRunFinished, "", "")
	}
}

// liveBranches counts branches not yet marked done.
func (r *Run) liveBranches() int {
	n := 0
	for _, b := range r.branches {
		if !b.done {
			n++
		}
	}
	return n
}

// cursors returns the node IDs of live branches, in branch order.
func (r *Run) cursors() []string {
	out := make([]string, 0, len(r.branches))
	for _, b := range r.branches {
		if !b.done {
			out = append(out, b.nodeID)
		}
	}
	return out
}

func (r *Run) emitEvent(tick uint64, kind EventKind, nodeID, detail string) {
	if r.emit == nil {
		return
	}
	r.emit(Event{
		Tick:   tick,
		Time:   time.Now(),
		Kind:   kind,
		Run:    r.id,
		List:   r.list.ID,
		Node:   nodeID,
		Detail: detail,
	})
}
