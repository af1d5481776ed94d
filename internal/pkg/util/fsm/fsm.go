package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to fsm.Callback; a returned
// error is stored on the event and surfaces from FSM.Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// IsNoTransition reports whether err only says the machine is already in
// the requested state or the event is not valid from the current one.
func IsNoTransition(err error) bool {
	if err == nil {
		return false
	}
	var noTransition fsm.NoTransitionError
	var invalid fsm.InvalidEventError
	return errors.As(err, &noTransition) || errors.As(err, &invalid)
}

// ErrorArg returns the first error found in the event arguments.
func ErrorArg(e *fsm.Event) error {
	for _, a := range e.Args {
		if err, ok := a.(error); ok {
			return err
		}
	}
	return nil
}
