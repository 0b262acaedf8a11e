package upgrade

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/agentupgrade/internal/pkg/util/fsm"
	"github.com/autopeer-io/agentupgrade/pkg/log"
)

// State is the lifecycle state of one upgrade attempt.
type State string

const (
	StateValidated            State = "validated"
	StateDispatched           State = "dispatched"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateConfirmed            State = "confirmed"
	StateFinalized            State = "finalized"
	StateTimedOut             State = "timed_out"
	StateAborted              State = "aborted"
)

// IsTerminal reports whether no further transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateFinalized || s == StateAborted
}

const (
	EventDispatch = "dispatch"
	EventAwait    = "await"
	EventConfirm  = "confirm"
	EventFinalize = "finalize"
	EventTimeout  = "timeout"
	EventAbort    = "abort"
	// EventFail moves any non-terminal attempt to aborted.
	EventFail = "fail"
)

type attemptMachine struct {
	*fsm.FSM

	logger  log.Logger
	history []State

	// onTerminal is called once when the attempt reaches a terminal state.
	onTerminal func(from, to State)
}

func newAttemptMachine(logger log.Logger, onTerminal func(from, to State)) *attemptMachine {
	m := &attemptMachine{
		logger:     logger,
		history:    []State{StateValidated},
		onTerminal: onTerminal,
	}

	events := fsm.Events{
		{Name: EventDispatch, Src: []string{string(StateValidated)}, Dst: string(StateDispatched)},
		{Name: EventAwait, Src: []string{string(StateDispatched)}, Dst: string(StateAwaitingConfirmation)},
		{Name: EventConfirm, Src: []string{string(StateAwaitingConfirmation)}, Dst: string(StateConfirmed)},
		{Name: EventFinalize, Src: []string{string(StateConfirmed)}, Dst: string(StateFinalized)},
		{Name: EventTimeout, Src: []string{string(StateAwaitingConfirmation)}, Dst: string(StateTimedOut)},
		{Name: EventAbort, Src: []string{string(StateTimedOut)}, Dst: string(StateAborted)},

		{Name: EventFail, Src: []string{
			string(StateValidated),
			string(StateDispatched),
			string(StateAwaitingConfirmation),
			string(StateConfirmed),
			string(StateTimedOut),
		}, Dst: string(StateAborted)},
	}

	callbacks := fsm.Callbacks{
		"enter_state":                 fsmutil.WrapEvent(m.actionEnterState),
		fsmutil.Enter(StateFinalized): fsmutil.WrapEvent(m.actionEnterTerminal),
		fsmutil.Enter(StateAborted):   fsmutil.WrapEvent(m.actionEnterTerminal),
	}

	m.FSM = fsm.NewFSM(string(StateValidated), events, callbacks)
	return m
}

func (m *attemptMachine) state() State {
	return State(m.Current())
}

// fire runs event, rejecting it as an internal error when the current state
// does not allow it. Cancellation of ctx does not stop the transition.
func (m *attemptMachine) fire(ctx context.Context, event string, args ...any) error {
	if !m.Can(event) {
		return ErrInternal.With(fmt.Sprintf("cannot %s an attempt in state %s", event, m.Current()))
	}
	if err := m.Event(context.WithoutCancel(ctx), event, args...); err != nil {
		return ErrInternal.Wrap(err)
	}
	return nil
}

// require fails with an internal error unless event is allowed now.
func (m *attemptMachine) require(event string) error {
	if !m.Can(event) {
		return ErrInternal.With(fmt.Sprintf("cannot %s an attempt in state %s", event, m.Current()))
	}
	return nil
}

// fail aborts the attempt if it is not already terminal.
func (m *attemptMachine) fail(ctx context.Context, cause error) {
	if !m.Can(EventFail) {
		return
	}
	if err := m.fire(ctx, EventFail, cause); err != nil {
		m.logger.Error(err, "Failed to abort upgrade attempt")
	}
}

func (m *attemptMachine) actionEnterState(ctx context.Context, e *fsm.Event) error {
	m.history = append(m.history, State(e.Dst))
	m.logger.Debug("Upgrade attempt transition", "event", e.Event, "from", e.Src, "to", e.Dst)
	return nil
}

func (m *attemptMachine) actionEnterTerminal(ctx context.Context, e *fsm.Event) error {
	if cause, ok := fsmutil.Arg[error](e, 0); ok && cause != nil {
		m.logger.Debug("Upgrade attempt aborted", "cause", cause.Error())
	}
	if m.onTerminal != nil {
		m.onTerminal(State(e.Src), State(e.Dst))
	}
	return nil
}
