package fsm

import (
	"context"

	"github.com/looplab/fsm"
)

// WrapEvent adapts a callback that returns an error to fsm.Callback.
// A non-nil error is stored on the event and returned by FSM.Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// Enter returns the callback key run when the machine enters state.
func Enter[S ~string](state S) string {
	return "enter_" + string(state)
}

// Arg returns the i-th argument passed to FSM.Event when it has type T.
func Arg[T any](event *fsm.Event, i int) (T, bool) {
	var zero T
	if event == nil || i < 0 || i >= len(event.Args) {
		return zero, false
	}
	v, ok := event.Args[i].(T)
	return v, ok
}
