package synth

import "sync/atomic"

// State tracks a session through its lifecycle. Aborted is terminal and
// reachable from any non-terminal state.
type State int32

const (
	StateCreated State = iota
	StateValidating
	StateGenerating
	StateAssembling
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateValidating:
		return "validating"
	case StateGenerating:
		return "generating"
	case StateAssembling:
		return "assembling"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool { return s == StateCompleted || s == StateAborted }

type stateTracker struct {
	v atomic.Int32
}

func (t *stateTracker) get() State { return State(t.v.Load()) }

func (t *stateTracker) set(s State) {
	// Terminal states stick; a late transition must not resurrect a
	// session that already aborted.
	for {
		cur := State(t.v.Load())
		if cur.Terminal() {
			return
		}
		if t.v.CompareAndSwap(int32(cur), int32(s)) {
			return
		}
	}
}
