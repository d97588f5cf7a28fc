package bridge

import "fmt"

// Action is a request the consumer submits through a Handle.
type Action uint8

// Supported actions. The zero value is deliberately invalid.
const (
	ActionStartStageA Action = iota + 1
	ActionStartStageB
	ActionCleanup
)

var actionNames = map[Action]string{
	ActionStartStageA: "start_stage_a",
	ActionStartStageB: "start_stage_b",
	ActionCleanup:     "cleanup",
}

// String returns the wire name of the action.
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Valid reports whether a is one of the declared actions.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// ParseAction resolves a wire name such as "start_stage_a".
func ParseAction(name string) (Action, error) {
	for action, n := range actionNames {
		if n == name {
			return action, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// Stage identifies a unit of background work.
type Stage uint8

// Stages run by the worker.
const (
	StageA Stage = iota + 1
	StageB
	StageCleanup
)

// String returns the short stage label used in logs and metrics.
func (s Stage) String() string {
	switch s {
	case StageA:
		return "a"
	case StageB:
		return "b"
	case StageCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// stage maps an action onto the stage it runs.
func (a Action) stage() Stage {
	switch a {
	case ActionStartStageA:
		return StageA
	case ActionStartStageB:
		return StageB
	case ActionCleanup:
		return StageCleanup
	default:
		return 0
	}
}

// ParseStage resolves a stage label ("a", "b" or "cleanup").
func ParseStage(label string) (Stage, error) {
	for _, s := range []Stage{StageA, StageB, StageCleanup} {
		if s.String() == label {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", label)
}
