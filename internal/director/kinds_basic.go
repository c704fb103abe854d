package director

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cueworks/stagehand/internal/script"
)

func commentDefinition() Definition {
	return Definition{
		Kind:     "comment",
		MinExits: 1,
		MaxExits: 1,
		Doc:      "annotation node, completes immediately",
		Build: func(_ *script.List, _ *script.Action, _ *Env) (Exec, error) {
			return execFunc(func(_ *StepContext) (Outcome, error) {
				return doneOutcome(), nil
			}), nil
		},
	}
}

// waitExec suspends its branch for a wall-clock duration or a tick count.
type waitExec struct {
	duration time.Duration
	ticks    int
	started  bool
	left     int
}

func (w *waitExec) Step(tc *StepContext) (Outcome, error) {
	if tc.FastForward {
		return doneOutcome(), nil
	}
	if w.ticks > 0 {
		if !w.started {
			w.started = true
			w.left = w.ticks
		}
		if w.left <= 0 {
			return doneOutcome(), nil
		}
		w.left--
		return Outcome{}, nil
	}
	if !w.started {
		w.started = true
		return Outcome{Wait: w.duration}, nil
	}
	return doneOutcome(), nil
}

func waitDefinition() Definition {
	return Definition{
		Kind:     "wait",
		MinExits: 1,
		MaxExits: 1,
		Doc:      "suspends the branch; params: duration (e.g. 1500ms) or ticks (int), default 1s",
		Build: func(_ *script.List, node *script.Action, _ *Env) (Exec, error) {
			w := &waitExec{duration: time.Second}
			if s := node.Param("ticks"); s != "" {
				n, err := strconv.Atoi(s)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("bad ticks value %q", s)
				}
				w.ticks = n
				w.duration = 0
			} else if s := node.Param("duration"); s != "" {
				dur, err := time.ParseDuration(s)
				if err != nil {
					return nil, fmt.Errorf("bad duration value %q: %w", s, err)
				}
				if dur < 0 {
					return nil, fmt.Errorf("negative duration %q", s)
				}
				w.duration = dur
			}
			return w, nil
		},
	}
}

// sayExec publishes a dialogue line and optionally holds the branch while
// the line stays on screen.
type sayExec struct {
	text     string
	duration time.Duration
	spoken   bool
}

func (s *sayExec) Step(tc *StepContext) (Outcome, error) {
	if !s.spoken {
		s.spoken = true
		tc.Emit(EventLine, s.text)
		if s.duration > 0 && !tc.FastForward {
			return Outcome{Wait: s.duration}, nil
		}
	}
	return doneOutcome(), nil
}

func sayDefinition() Definition {
	return Definition{
		Kind:     "dialogue.say",
		MinExits: 1,
		MaxExits: 1,
		Doc:      "publishes a dialogue line; params: speaker, line, duration (optional hold)",
		Build: func(_ *script.List, node *script.Action, _ *Env) (Exec, error) {
			line := node.Param("line")
			if line == "" {
				return nil, fmt.Errorf("dialogue.say needs a line param")
			}
			text := line
			if speaker := node.Param("speaker"); speaker != "" {
				text = speaker + ": " + line
			}
			s := &sayExec{text: text}
			if ds := node.Param("duration"); ds != "" {
				dur, err := time.ParseDuration(ds)
				if err != nil {
					return nil, fmt.Errorf("bad duration value %q: %w", ds, err)
				}
				s.duration = dur
			}
			return s, nil
		},
	}
}

func emitDefinition() Definition {
	return Definition{
		Kind:     "emit",
		MinExits: 1,
		MaxExits: 1,
		Doc:      "publishes a custom event; params: event (name), detail (optional)",
		Build: func(_ *script.List, node *script.Action, _ *Env) (Exec, error) {
			name := node.Param("event")
			if name == "" {
				return nil, fmt.Errorf("emit needs an event param")
			}
			detail := name
			if extra := node.Param("detail"); extra != "" {
				detail = name + ": " + extra
			}
			return execFunc(func(tc *StepContext) (Outcome, error) {
				tc.Emit(EventCustom, detail)
				return doneOutcome(), nil
			}), nil
		},
	}
}
