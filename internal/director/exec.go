package director

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cueworks/stagehand/internal/expr"
	"github.com/cueworks/stagehand/internal/rng"
	"github.com/cueworks/stagehand/internal/script"
	"github.com/cueworks/stagehand/internal/scripting"
	"github.com/cueworks/stagehand/internal/vars"
)

// Env bundles the engine services an action kind may use. Build functions
// receive it once per node instance; kinds must not retain it past Close.
type Env struct {
	// Lib resolves list references for list.run and runlist endings.
	Lib *script.Library
	// Vars is the shared variable board.
	Vars *vars.Board
	// Expr evaluates JavaScript expressions for check.expr and var.set.
	Expr *expr.Evaluator
	// Lua dispatches hooks for lua.hook. May be nil when scripting is off.
	Lua *scripting.Manager
	// Rand drives check.random.
	Rand rng.Source
	// Reg is the kind registry, used when a kind builds nested runs.
	Reg *Registry
	// Log is the engine logger.
	Log *zap.Logger
}

// Outcome reports the result of one Step call.
type Outcome struct {
	// Done is true when the node has finished and Exit selects its ending.
	// False means the node is still running and will be stepped again.
	Done bool
	// Exit is the index into the node's endings, valid only when Done.
	Exit int
	// Wait suspends the branch for the given duration before the next Step.
	// Only meaningful when Done is false. Zero means next tick.
	Wait time.Duration
	// FanOut spawns one extra branch per ending other than Exit. The
	// current branch follows ending Exit.
	FanOut bool
}

// StepContext carries per-invocation state into an Exec.
type StepContext struct {
	// Run is the ID of the owning run.
	Run uuid.UUID
	// List is the ID of the list being executed.
	List string
	// Node is the ID of the node being stepped.
	Node string
	// Tick is the engine tick counter at this step.
	Tick uint64
	// Dt is the tick duration.
	Dt time.Duration
	// FastForward is true while the run is being skipped. Kinds may finish
	// instantly; any node still running after its step is forced complete.
	FastForward bool
	// Emit publishes an event attributed to this run and node.
	Emit func(kind EventKind, detail string)

	// run lets built-in kinds reach the owning run for spawning.
	run *Run
}

// Exec is one live node instance inside a branch. A fresh Exec is built
// every time a branch enters a node, so implementations may keep state
// across ticks without resetting it.
type Exec interface {
	// Step advances the node by one tick.
	Step(tc *StepContext) (Outcome, error)
}

// execFunc adapts a stateless function to the Exec interface.
type execFunc func(tc *StepContext) (Outcome, error)

func (f execFunc) Step(tc *StepContext) (Outcome, error) { return f(tc) }

// doneOutcome is the common single-exit completion.
func doneOutcome() Outcome { return Outcome{Done: true} }
